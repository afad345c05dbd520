package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/certkeeper/internal/common"
)

// Verification steps, in chain order.
const (
	StepUUIDLookup        = "uuid_lookup"
	StepCertificateLookup = "certificate_lookup"
	StepConfigLookup      = "config_lookup"
	StepEventLookup       = "event_lookup"
	StepComplete          = "complete"
)

// VerificationResult is returned verbatim by the public verify endpoint.
type VerificationResult struct {
	Success bool              `json:"success"`
	Step    string            `json:"step"`
	Message string            `json:"message"`
	Error   string            `json:"error,omitempty"`
	Data    *VerificationData `json:"data,omitempty"`
}

type VerificationData struct {
	UUID                     string    `json:"uuid"`
	Organisation             string    `json:"organisation"`
	IssuerName               string    `json:"issuerName"`
	EventName                string    `json:"eventName"`
	EventDate                time.Time `json:"eventDate"`
	CertificateGeneratedDate time.Time `json:"certificateGeneratedDate"`
	CertificateID            string    `json:"certificateId"`
	VerificationID           string    `json:"verificationId"`
	IsValid                  bool      `json:"isValid"`
	VerifiedAt               time.Time `json:"verifiedAt"`
}

// VerificationService resolves a public uuid through token, generation,
// config and event. It only reads.
type VerificationService struct {
	deps Deps
	now  func() time.Time
}

func NewVerificationService(deps Deps) *VerificationService {
	return &VerificationService{deps: deps, now: time.Now}
}

// Verify walks the chain and stops at the first missing link. A missing
// link is a result with Success false; only infrastructure failures are
// returned as errors.
func (s *VerificationService) Verify(ctx context.Context, id string) (*VerificationResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return failed(StepUUIDLookup, "Verification ID is required", "missing uuid"), nil
	}

	db := s.deps.Runner.Conn()
	rm := s.deps.RepoManager

	token, err := rm.Tokens(db).GetByUUID(ctx, id)
	if r, err := stepResult(err, StepUUIDLookup, "Certificate not found", "no verification record for this uuid"); r != nil || err != nil {
		return r, err
	}

	gen, err := rm.Generations(db).GetByID(ctx, token.GenerationID)
	if r, err := stepResult(err, StepCertificateLookup, "Certificate record not found", "generation record is missing"); r != nil || err != nil {
		return r, err
	}

	cfg, err := rm.Configs(db).GetByID(ctx, gen.ConfigID)
	if r, err := stepResult(err, StepConfigLookup, "Certificate configuration not found", "template configuration is missing"); r != nil || err != nil {
		return r, err
	}

	event, err := rm.Events(db).GetByID(ctx, cfg.EventID)
	if r, err := stepResult(err, StepEventLookup, "Event not found", "event is missing"); r != nil || err != nil {
		return r, err
	}

	return &VerificationResult{
		Success: true,
		Step:    StepComplete,
		Message: "Certificate verified successfully",
		Data: &VerificationData{
			UUID:                     token.UUID,
			Organisation:             event.Organisation,
			IssuerName:               event.IssuerName,
			EventName:                event.Name,
			EventDate:                event.Date,
			CertificateGeneratedDate: gen.CreatedAt,
			CertificateID:            cfg.ID,
			VerificationID:           gen.ID,
			IsValid:                  true,
			VerifiedAt:               s.now().UTC(),
		},
	}, nil
}

// stepResult turns a lookup error into a failed result (not found) or a
// returned error (anything else). Both are nil when the lookup succeeded.
func stepResult(err error, step, msg, detail string) (*VerificationResult, error) {
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, common.ErrorNotFound):
		return failed(step, msg, detail), nil
	default:
		return nil, fmt.Errorf("verify %s: %w", step, err)
	}
}

func failed(step, msg, detail string) *VerificationResult {
	return &VerificationResult{Step: step, Message: msg, Error: detail}
}

package services

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/certkeeper/internal/common"
	"github.com/dmitrijs2005/certkeeper/internal/compositor"
	"github.com/dmitrijs2005/certkeeper/internal/cryptox"
	"github.com/dmitrijs2005/certkeeper/internal/fields"
	"github.com/dmitrijs2005/certkeeper/internal/filex"
	"github.com/dmitrijs2005/certkeeper/internal/logging"
	"github.com/dmitrijs2005/certkeeper/internal/server/models"
	"github.com/google/uuid"
)

// MinPasswordLength applies to the password that seals a recipient list.
const MinPasswordLength = 6

// FallbackWarning is reported when certificates are plain template copies.
const FallbackWarning = "template image could not be decoded; certificates are unstyled copies of the template"

// TemplateSource loads template bytes from a config's image path.
type TemplateSource interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// GenerateRequest asks for one archive of certificates. A non-empty
// Password also stores the batch.
type GenerateRequest struct {
	CertificateID string             `json:"certificateId"`
	Recipients    []models.Recipient `json:"recipients"`
	Password      string             `json:"password,omitempty"`
	FallbackToRaw bool               `json:"fallbackToRaw,omitempty"`
}

// SampleRequest renders one certificate without storing anything.
type SampleRequest struct {
	CertificateID string           `json:"certificateId"`
	Recipient     models.Recipient `json:"recipient"`
}

// StoreRequest is the body of storeGenerated.
type StoreRequest struct {
	CertificateID string             `json:"certificateId"`
	Recipients    []models.Recipient `json:"recipients"`
	GeneratedBy   string             `json:"generatedBy,omitempty"`
	Password      string             `json:"password"`
}

// StoreSummary never carries recipients.
type StoreSummary struct {
	ID            string    `json:"id"`
	NoOfRecipient int       `json:"noOfRecipient"`
	Rank          bool      `json:"rank"`
	Date          time.Time `json:"date"`
	Encrypted     bool      `json:"encrypted"`
	Tokens        int       `json:"verificationTokens"`
	FailedTokens  int       `json:"failedVerificationTokens,omitempty"`
}

// BatchResult is a rendered batch.
type BatchResult struct {
	Archive    []byte
	Files      []string
	Warnings   []string
	Generation *StoreSummary
}

// GenerationSummary is a list entry. Recipients is only filled after a
// successful decrypt.
type GenerationSummary struct {
	ID            string             `json:"id"`
	CertificateID string             `json:"certificateId"`
	EventName     string             `json:"eventName"`
	NoOfRecipient int                `json:"noOfRecipient"`
	Rank          bool               `json:"rank"`
	GeneratedBy   string             `json:"generatedBy"`
	Date          time.Time          `json:"date"`
	Encrypted     bool               `json:"encrypted"`
	Recipients    []models.Recipient `json:"recipients"`
}

type ListResult struct {
	models.Page[GenerationSummary]
	RequiresDecryption bool   `json:"requiresDecryption"`
	Message            string `json:"message,omitempty"`
}

type DecryptionStats struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

type DecryptResult struct {
	models.Page[GenerationSummary]
	Decryption DecryptionStats `json:"decryption"`
}

// GenerationService renders certificate batches and keeps their encrypted
// recipient lists.
type GenerationService struct {
	deps          Deps
	templates     TemplateSource
	compositor    *compositor.Compositor
	publicBaseURL string
	log           logging.Logger
}

func NewGenerationService(deps Deps, templates TemplateSource, c *compositor.Compositor, publicBaseURL string) *GenerationService {
	return &GenerationService{
		deps:          deps,
		templates:     templates,
		compositor:    c,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		log:           deps.logger("generation"),
	}
}

// CertificateLink is the public page of a recipient's certificate.
func CertificateLink(baseURL, name string) string {
	slug := strings.ToLower(strings.Join(strings.Fields(name), "-"))
	return strings.TrimRight(baseURL, "/") + "/certificate/" + url.PathEscape(slug)
}

// Texts builds the field texts of one recipient. The QR field is filled by
// the compositor.
func (s *GenerationService) Texts(cfg *models.TemplateConfig, organisation string, r models.Recipient) map[fields.Name]string {
	texts := map[fields.Name]string{
		fields.RecipientName:    r.Name,
		fields.OrganisationName: organisation,
		fields.CertificateLink:  CertificateLink(s.publicBaseURL, r.Name),
	}
	if cfg.HasRank() && r.Rank != "" {
		texts[fields.Rank] = r.Rank
	}
	return texts
}

// Sample renders one certificate as PNG.
func (s *GenerationService) Sample(ctx context.Context, caller Caller, req SampleRequest) ([]byte, error) {
	cfg, err := s.config(ctx, req.CertificateID)
	if err != nil {
		return nil, err
	}
	rs, err := models.NormalizeRecipients([]models.Recipient{req.Recipient}, cfg.HasRank())
	if err != nil {
		return nil, err
	}
	t, _, err := s.loadTemplate(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s.compositor.RenderFields(t, cfg.Fields, s.Texts(cfg, caller.Organisation, rs[0]))
}

// Generate renders every recipient in order and zips the results. Entries
// are named after the recipient, made file-system safe and unique.
//
// If the template does not decode and FallbackToRaw is set, each entry is
// the raw template and a warning is returned; otherwise the error wraps
// compositor.ErrTemplateLoad. A Password additionally stores the batch.
func (s *GenerationService) Generate(ctx context.Context, caller Caller, req GenerateRequest) (*BatchResult, error) {
	if req.Password != "" && len(req.Password) < MinPasswordLength {
		return nil, common.NewValidationError(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	cfg, err := s.config(ctx, req.CertificateID)
	if err != nil {
		return nil, err
	}
	recipients, err := models.NormalizeRecipients(req.Recipients, cfg.HasRank())
	if err != nil {
		return nil, err
	}

	res := &BatchResult{}
	t, raw, err := s.loadTemplate(ctx, cfg)
	rawExt := ""
	if err != nil {
		if !req.FallbackToRaw || raw == nil || !errors.Is(err, compositor.ErrTemplateLoad) {
			return nil, err
		}
		var ok bool
		if rawExt, ok = imageExt(raw); !ok {
			s.log.Warn(ctx, "raw template is not an image, fallback refused", "config_id", cfg.ID)
			return nil, err
		}
		s.log.Warn(ctx, "rendering skipped, using raw template", "config_id", cfg.ID, "error", err)
		res.Warnings = append(res.Warnings, FallbackWarning)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	namer := filex.NewNamer()

	for i, r := range recipients {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var img []byte
		ext := ".png"
		if t != nil {
			img, err = s.compositor.RenderFields(t, cfg.Fields, s.Texts(cfg, caller.Organisation, r))
			if err != nil {
				return nil, fmt.Errorf("render recipient %d: %w", i, err)
			}
		} else {
			img, ext = raw, rawExt
		}

		name := namer.Next(r.Name, ext)
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("archive %s: %w", name, err)
		}
		if _, err := w.Write(img); err != nil {
			return nil, fmt.Errorf("archive %s: %w", name, err)
		}
		res.Files = append(res.Files, name)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	res.Archive = buf.Bytes()

	s.log.Info(ctx, "certificates generated", "config_id", cfg.ID, "count", len(recipients))

	if req.Password != "" {
		sum, err := s.Store(ctx, caller, StoreRequest{
			CertificateID: cfg.ID,
			Recipients:    recipients,
			Password:      req.Password,
		})
		if err != nil {
			return nil, err
		}
		res.Generation = sum
	}
	return res, nil
}

// Store encrypts the recipient list and records the batch.
//
// Input problems are validation errors and an unknown config is
// common.ErrorNotFound. Once the record is written, verification tokens and
// organisation stats are best effort: failures are logged and counted, never
// returned.
func (s *GenerationService) Store(ctx context.Context, caller Caller, req StoreRequest) (*StoreSummary, error) {
	var details []string
	if len(req.Password) < MinPasswordLength {
		details = append(details, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if strings.TrimSpace(req.CertificateID) == "" {
		details = append(details, "certificateId is required")
	}
	if req.GeneratedBy != "" && req.GeneratedBy != caller.UserID {
		details = append(details, "generatedBy does not match the authenticated user")
	}
	recipients, err := models.NormalizeRecipients(req.Recipients, true)
	if err != nil {
		var ve *common.ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		details = append(details, ve.Details...)
	}
	if len(details) > 0 {
		return nil, common.NewValidationError(details...)
	}

	cfg, err := s.config(ctx, req.CertificateID)
	if err != nil {
		return nil, err
	}
	if !cfg.HasRank() {
		for i := range recipients {
			recipients[i].Rank = ""
		}
	}

	payload, err := cryptox.Encrypt(recipients, req.Password)
	if err != nil {
		return nil, fmt.Errorf("encrypt recipients: %w", err)
	}

	db := s.deps.Runner.Conn()
	rec := &models.GenerationRecord{
		ID:             uuid.NewString(),
		ConfigID:       cfg.ID,
		RecipientCount: len(recipients),
		HasRank:        models.AnyRank(recipients),
		GeneratedBy:    caller.UserID,
		Payload:        *payload,
	}
	if err := s.deps.RepoManager.Generations(db).Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("error storing generation: %w", err)
	}

	sum := &StoreSummary{
		ID:            rec.ID,
		NoOfRecipient: rec.RecipientCount,
		Rank:          rec.HasRank,
		Date:          rec.CreatedAt,
		Encrypted:     true,
	}

	tokens := s.deps.RepoManager.Tokens(db)
	for _, r := range recipients {
		if r.UUID == "" {
			continue
		}
		err := tokens.Create(ctx, &models.VerificationToken{UUID: r.UUID, GenerationID: rec.ID})
		if err != nil {
			sum.FailedTokens++
			s.log.Warn(ctx, "verification token not created", "generation_id", rec.ID, "uuid", r.UUID, "error", err)
			continue
		}
		sum.Tokens++
	}

	if caller.Organisation != "" {
		if _, err := s.deps.RepoManager.OrgStats(db).Increment(ctx, caller.Organisation, int64(len(recipients)), 0); err != nil {
			s.log.Warn(ctx, "organisation stats not updated", "organisation", caller.Organisation, "error", err)
		}
	}

	s.log.Info(ctx, "generation stored", "generation_id", rec.ID, "recipients", rec.RecipientCount, "tokens", sum.Tokens)
	return sum, nil
}

// List pages the caller's generations without decrypting anything. A search
// term cannot be applied to encrypted data, so it yields an empty page with
// RequiresDecryption set.
func (s *GenerationService) List(ctx context.Context, caller Caller, q models.GenerationQuery) (*ListResult, error) {
	q.GeneratedBy = caller.UserID
	if err := q.Normalize(); err != nil {
		return nil, err
	}

	if q.Search != "" {
		return &ListResult{
			Page:               models.Paginate([]GenerationSummary{}, &q),
			RequiresDecryption: true,
			Message:            "recipient data is encrypted; search requires the decryption password",
		}, nil
	}

	recs, total, err := s.deps.RepoManager.Generations(s.deps.Runner.Conn()).List(ctx, &q)
	if err != nil {
		return nil, fmt.Errorf("error listing generations: %w", err)
	}

	items := make([]GenerationSummary, 0, len(recs))
	for _, g := range recs {
		items = append(items, summarize(g, nil))
	}
	page := models.Page[GenerationSummary]{Items: items, Total: total, Page: q.Page, Limit: q.Limit}
	page.TotalPages = (total + q.Limit - 1) / q.Limit
	return &ListResult{Page: page}, nil
}

// DecryptSearch decrypts every matching generation of the caller, filters by
// the search term and pages the result. Records that fail to decrypt are
// skipped and counted. When none decrypts the password is wrong and the
// error matches both common.ErrorUnauthorized and cryptox.ErrDecryption.
func (s *GenerationService) DecryptSearch(ctx context.Context, caller Caller, password string, q models.GenerationQuery) (*DecryptResult, error) {
	if password == "" {
		return nil, common.NewValidationError("password is required")
	}
	q.GeneratedBy = caller.UserID
	if err := q.Normalize(); err != nil {
		return nil, err
	}

	recs, err := s.deps.RepoManager.Generations(s.deps.Runner.Conn()).ListAll(ctx, &q)
	if err != nil {
		return nil, fmt.Errorf("error listing generations: %w", err)
	}

	var stats DecryptionStats
	term := strings.ToLower(q.Search)
	matched := make([]GenerationSummary, 0, len(recs))
	for _, g := range recs {
		var rs []models.Recipient
		if err := cryptox.Decrypt(&g.Payload, password, &rs); err != nil {
			stats.Failed++
			s.log.Warn(ctx, "generation not decrypted", "generation_id", g.ID, "error", err)
			continue
		}
		stats.Successful++
		if term != "" && !matchesSearch(term, g.EventName, rs) {
			continue
		}
		matched = append(matched, summarize(g, rs))
	}

	if len(recs) > 0 && stats.Successful == 0 {
		return nil, fmt.Errorf("%w: %w", common.ErrorUnauthorized, cryptox.ErrDecryption)
	}

	return &DecryptResult{Page: models.Paginate(matched, &q), Decryption: stats}, nil
}

// ListTokens returns the verification tokens of one of the caller's
// generations.
func (s *GenerationService) ListTokens(ctx context.Context, caller Caller, generationID string) ([]*models.VerificationToken, error) {
	db := s.deps.Runner.Conn()
	g, err := s.deps.RepoManager.Generations(db).GetByID(ctx, generationID)
	if err != nil {
		return nil, fmt.Errorf("generation %s: %w", generationID, err)
	}
	if g.GeneratedBy != caller.UserID {
		return nil, fmt.Errorf("generation %s: %w", generationID, common.ErrorNotFound)
	}
	return s.deps.RepoManager.Tokens(db).ListByGeneration(ctx, g.ID)
}

func (s *GenerationService) config(ctx context.Context, id string) (*models.TemplateConfig, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, common.NewValidationError("certificateId is required")
	}
	cfg, err := s.deps.RepoManager.Configs(s.deps.Runner.Conn()).GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", id, err)
	}
	return cfg, nil
}

// loadTemplate fetches and decodes the config's image. The raw bytes are
// returned whenever the fetch succeeded, even if decoding failed.
func (s *GenerationService) loadTemplate(ctx context.Context, cfg *models.TemplateConfig) (*compositor.Template, []byte, error) {
	raw, err := s.templates.Fetch(ctx, cfg.ImagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: fetch %s: %v", compositor.ErrTemplateLoad, cfg.ImagePath, err)
	}
	t, err := compositor.Load(raw)
	if err != nil {
		return nil, raw, err
	}
	return t, raw, nil
}

// imageExt sniffs b and reports a file extension when it is an image.
// Only images may be copied into an archive unrendered.
func imageExt(b []byte) (string, bool) {
	ct := http.DetectContentType(b)
	if !strings.HasPrefix(ct, "image/") {
		return "", false
	}
	switch ct {
	case "image/jpeg":
		return ".jpg", true
	case "image/x-icon":
		return ".ico", true
	}
	return "." + strings.TrimPrefix(ct, "image/"), true
}

func summarize(g *models.GenerationRecord, rs []models.Recipient) GenerationSummary {
	if rs == nil {
		rs = []models.Recipient{}
	}
	return GenerationSummary{
		ID:            g.ID,
		CertificateID: g.ConfigID,
		EventName:     g.EventName,
		NoOfRecipient: g.RecipientCount,
		Rank:          g.HasRank,
		GeneratedBy:   g.GeneratedBy,
		Date:          g.CreatedAt,
		Encrypted:     true,
		Recipients:    rs,
	}
}

func matchesSearch(term, eventName string, rs []models.Recipient) bool {
	if strings.Contains(strings.ToLower(eventName), term) {
		return true
	}
	for _, r := range rs {
		if strings.Contains(strings.ToLower(r.Name), term) ||
			strings.Contains(r.Email, term) ||
			strings.Contains(strings.ToLower(r.Rank), term) {
			return true
		}
	}
	return false
}

package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/certkeeper/internal/common"
	"github.com/dmitrijs2005/certkeeper/internal/logging"
	"github.com/dmitrijs2005/certkeeper/internal/server/models"
	"github.com/google/uuid"
)

// CreateEventRequest is the minimal data an event needs for certificates.
type CreateEventRequest struct {
	Name         string    `json:"name"`
	Organisation string    `json:"organisation"`
	IssuerName   string    `json:"issuerName"`
	Date         time.Time `json:"date"`
}

type EventService struct {
	deps Deps
	log  logging.Logger
}

func NewEventService(deps Deps) *EventService {
	return &EventService{deps: deps, log: deps.logger("events")}
}

// Create stores a new event and bumps the organisation's eventsCreated
// counter. A failed counter update is logged and does not fail the call.
func (s *EventService) Create(ctx context.Context, caller Caller, req CreateEventRequest) (*models.Event, error) {
	e := &models.Event{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Organisation: strings.TrimSpace(req.Organisation),
		IssuerName:   strings.TrimSpace(req.IssuerName),
		Date:         req.Date,
		CreatedBy:    caller.UserID,
	}
	if e.Organisation == "" {
		e.Organisation = caller.Organisation
	}

	var details []string
	if e.Name == "" {
		details = append(details, "name is required")
	}
	if e.Organisation == "" {
		details = append(details, "organisation is required")
	}
	if e.Date.IsZero() {
		details = append(details, "date is required")
	}
	if len(details) > 0 {
		return nil, common.NewValidationError(details...)
	}

	if err := s.deps.RepoManager.Events(s.deps.Runner.Conn()).Create(ctx, e); err != nil {
		return nil, fmt.Errorf("error creating event: %w", err)
	}

	if _, err := s.deps.RepoManager.OrgStats(s.deps.Runner.Conn()).Increment(ctx, e.Organisation, 0, 1); err != nil {
		s.log.Warn(ctx, "organisation stats not updated", "organisation", e.Organisation, "error", err)
	}

	return e, nil
}

func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	e, err := s.deps.RepoManager.Events(s.deps.Runner.Conn()).GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error loading event %s: %w", id, err)
	}
	return e, nil
}

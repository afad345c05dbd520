package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/certkeeper/internal/common"
	"github.com/dmitrijs2005/certkeeper/internal/dbx"
	"github.com/dmitrijs2005/certkeeper/internal/fields"
	"github.com/dmitrijs2005/certkeeper/internal/logging"
	"github.com/dmitrijs2005/certkeeper/internal/server/models"
	"github.com/google/uuid"
)

// CreateConfigRequest is the body of addCertificateConfig. ValidFields is
// kept raw so the validator sees exactly what the client sent.
type CreateConfigRequest struct {
	EventID     string          `json:"eventId"`
	ImagePath   string          `json:"imagePath"`
	ValidFields json.RawMessage `json:"validFields"`
}

// UpdateConfigRequest replaces the image, the fields, or both.
type UpdateConfigRequest struct {
	ImagePath   *string         `json:"imagePath"`
	ValidFields json.RawMessage `json:"validFields"`
}

type ConfigService struct {
	deps Deps
	log  logging.Logger
}

func NewConfigService(deps Deps) *ConfigService {
	return &ConfigService{deps: deps, log: deps.logger("configs")}
}

// Create validates and stores the one config for an event.
//
// Missing or malformed ids and field errors are validation errors, an
// unknown event is common.ErrorNotFound, and a second config for the same
// event is common.ErrorAlreadyExists.
func (s *ConfigService) Create(ctx context.Context, req CreateConfigRequest) (*models.TemplateConfig, error) {
	var details []string
	eventID := strings.TrimSpace(req.EventID)
	switch {
	case eventID == "":
		details = append(details, "eventId is required")
	case uuid.Validate(eventID) != nil:
		details = append(details, fmt.Sprintf("invalid eventId %q", eventID))
	}
	imagePath := strings.TrimSpace(req.ImagePath)
	if imagePath == "" {
		details = append(details, "imagePath is required")
	}
	set, res := fields.Parse(req.ValidFields)
	if !res.IsValid {
		details = append(details, res.Errors...)
	}
	if len(details) > 0 {
		return nil, common.NewValidationError(details...)
	}

	cfg := &models.TemplateConfig{
		ID:        uuid.NewString(),
		EventID:   eventID,
		ImagePath: imagePath,
		Fields:    set,
	}

	err := s.deps.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		event, err := s.deps.RepoManager.Events(tx).GetByID(ctx, eventID)
		if err != nil {
			return fmt.Errorf("event %s: %w", eventID, err)
		}

		configs := s.deps.RepoManager.Configs(tx)
		if _, err := configs.GetByEventID(ctx, eventID); err == nil {
			return fmt.Errorf("config for event %s: %w", eventID, common.ErrorAlreadyExists)
		} else if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		if err := configs.Create(ctx, cfg); err != nil {
			return fmt.Errorf("error creating config: %w", err)
		}
		cfg.Event = event.Summary()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "template config created", "config_id", cfg.ID, "event_id", eventID, "fields", len(set))
	return cfg, nil
}

// GetByEvent returns the config of an event together with an event summary.
func (s *ConfigService) GetByEvent(ctx context.Context, eventID string) (*models.TemplateConfig, error) {
	cfg, err := s.deps.RepoManager.Configs(s.deps.Runner.Conn()).GetByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("config for event %s: %w", eventID, err)
	}
	s.attachEvent(ctx, cfg)
	return cfg, nil
}

func (s *ConfigService) Get(ctx context.Context, id string) (*models.TemplateConfig, error) {
	cfg, err := s.deps.RepoManager.Configs(s.deps.Runner.Conn()).GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", id, err)
	}
	s.attachEvent(ctx, cfg)
	return cfg, nil
}

// Update replaces the image path and/or fields of an existing config.
func (s *ConfigService) Update(ctx context.Context, id string, req UpdateConfigRequest) (*models.TemplateConfig, error) {
	hasFields := len(req.ValidFields) > 0
	if req.ImagePath == nil && !hasFields {
		return nil, common.NewValidationError("nothing to update: imagePath or validFields is required")
	}

	var details []string
	var set fields.Set
	if hasFields {
		var res fields.Result
		set, res = fields.Parse(req.ValidFields)
		if !res.IsValid {
			details = append(details, res.Errors...)
		}
	}
	if req.ImagePath != nil && strings.TrimSpace(*req.ImagePath) == "" {
		details = append(details, "imagePath must not be empty")
	}
	if len(details) > 0 {
		return nil, common.NewValidationError(details...)
	}

	var cfg *models.TemplateConfig
	err := s.deps.Runner.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.deps.RepoManager.Configs(tx)
		var err error
		cfg, err = repo.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("config %s: %w", id, err)
		}
		if req.ImagePath != nil {
			cfg.ImagePath = strings.TrimSpace(*req.ImagePath)
		}
		if hasFields {
			cfg.Fields = set
		}
		if err := repo.Update(ctx, cfg); err != nil {
			return fmt.Errorf("error updating config %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.attachEvent(ctx, cfg)
	return cfg, nil
}

func (s *ConfigService) attachEvent(ctx context.Context, cfg *models.TemplateConfig) {
	e, err := s.deps.RepoManager.Events(s.deps.Runner.Conn()).GetByID(ctx, cfg.EventID)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.log.Warn(ctx, "event summary unavailable", "event_id", cfg.EventID, "error", err)
		}
		return
	}
	cfg.Event = e.Summary()
}

// Package configs persists template configurations, one per event.
package configs

import (
	"context"

	"github.com/dmitrijs2005/certkeeper/internal/server/models"
)

type Repository interface {
	// Create stores a new config. A second config for the same event fails
	// with common.ErrorAlreadyExists.
	Create(ctx context.Context, cfg *models.TemplateConfig) error
	GetByID(ctx context.Context, id string) (*models.TemplateConfig, error)
	GetByEventID(ctx context.Context, eventID string) (*models.TemplateConfig, error)
	// Update replaces image path and fields of an existing config.
	Update(ctx context.Context, cfg *models.TemplateConfig) error
}

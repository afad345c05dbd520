// Package events persists the events certificates are issued for.
package events

import (
	"context"

	"github.com/dmitrijs2005/certkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id string) (*models.Event, error)
	Delete(ctx context.Context, id string) error
}

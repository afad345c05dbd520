// Package tokens persists verification tokens: public uuids that resolve to
// a generation record.
package tokens

import (
	"context"

	"github.com/dmitrijs2005/certkeeper/internal/server/models"
)

type Repository interface {
	// Create fails with common.ErrorAlreadyExists when the uuid is taken.
	Create(ctx context.Context, t *models.VerificationToken) error
	GetByUUID(ctx context.Context, uuid string) (*models.VerificationToken, error)
	ListByGeneration(ctx context.Context, generationID string) ([]*models.VerificationToken, error)
}

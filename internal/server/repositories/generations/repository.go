// Package generations persists generation records: batch metadata plus the
// encrypted recipient list.
package generations

import (
	"context"

	"github.com/dmitrijs2005/certkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, g *models.GenerationRecord) error
	GetByID(ctx context.Context, id string) (*models.GenerationRecord, error)
	// List returns one page of matching records and the total match count.
	List(ctx context.Context, q *models.GenerationQuery) ([]*models.GenerationRecord, int, error)
	// ListAll returns every matching record in query order.
	ListAll(ctx context.Context, q *models.GenerationQuery) ([]*models.GenerationRecord, error)
	Delete(ctx context.Context, id string) error
}

// Package orgstats persists per-organisation counters.
package orgstats

import (
	"context"

	"github.com/dmitrijs2005/certkeeper/internal/server/models"
)

type Repository interface {
	// Increment adds to the counters of name, creating the row with zero
	// counts first if it does not exist, and returns the new totals.
	Increment(ctx context.Context, name string, recipients, events int64) (*models.OrganizationStats, error)
	Get(ctx context.Context, name string) (*models.OrganizationStats, error)
	List(ctx context.Context) ([]*models.OrganizationStats, error)
}

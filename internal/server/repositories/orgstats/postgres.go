package orgstats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/certkeeper/internal/common"
	"github.com/dmitrijs2005/certkeeper/internal/dbx"
	"github.com/dmitrijs2005/certkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Increment is a single upsert, so concurrent increments never lose updates.
func (r *PostgresRepository) Increment(ctx context.Context, name string, recipients, events int64) (*models.OrganizationStats, error) {
	query :=
		`INSERT INTO organization_stats AS s (name, recipient_count, events_created)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET
			recipient_count = s.recipient_count + EXCLUDED.recipient_count,
			events_created = s.events_created + EXCLUDED.events_created,
			updated_at = now()
		 RETURNING name, recipient_count, events_created, updated_at`

	st := &models.OrganizationStats{}
	err := r.db.QueryRowContext(ctx, query, name, recipients, events).
		Scan(&st.Name, &st.RecipientCount, &st.EventsCreated, &st.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return st, nil
}

func (r *PostgresRepository) Get(ctx context.Context, name string) (*models.OrganizationStats, error) {
	query :=
		`SELECT name, recipient_count, events_created, updated_at FROM organization_stats
		 WHERE name = $1`

	st := &models.OrganizationStats{}
	err := r.db.QueryRowContext(ctx, query, name).
		Scan(&st.Name, &st.RecipientCount, &st.EventsCreated, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return st, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.OrganizationStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, recipient_count, events_created, updated_at FROM organization_stats ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to select stats: %w", err)
	}
	defer rows.Close()

	result := []*models.OrganizationStats{}
	for rows.Next() {
		var st models.OrganizationStats
		if err := rows.Scan(&st.Name, &st.RecipientCount, &st.EventsCreated, &st.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

package tokens

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

func (r *PostgresRepository) Create(ctx context.Context, t *models.VerificationToken) error {
	query :=
		`INSERT INTO verification_tokens (uuid, generation_id)
		 VALUES ($1, $2)
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, t.UUID, t.GenerationID).Scan(&t.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByUUID(ctx context.Context, uuid string) (*models.VerificationToken, error) {
	query :=
		`SELECT uuid, generation_id, created_at FROM verification_tokens
		 WHERE uuid = $1`

	t := &models.VerificationToken{}
	err := r.db.QueryRowContext(ctx, query, uuid).Scan(&t.UUID, &t.GenerationID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) ListByGeneration(ctx context.Context, generationID string) ([]*models.VerificationToken, error) {
	query :=
		`SELECT uuid, generation_id, created_at FROM verification_tokens
		 WHERE generation_id = $1
		 ORDER BY created_at, uuid`

	rows, err := r.db.QueryContext(ctx, query, generationID)
	if err != nil {
		return nil, fmt.Errorf("failed to select tokens: %w", err)
	}
	defer rows.Close()

	result := []*models.VerificationToken{}
	for rows.Next() {
		var t models.VerificationToken
		if err := rows.Scan(&t.UUID, &t.GenerationID, &t.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

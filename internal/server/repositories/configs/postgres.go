package configs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/certkeeper/internal/common"
	"github.com/dmitrijs2005/certkeeper/internal/dbx"
	"github.com/dmitrijs2005/certkeeper/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
// Fields are stored as a JSONB document.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `SELECT id, event_id, image_path, fields, created_at, updated_at FROM template_configs`

func (r *PostgresRepository) Create(ctx context.Context, cfg *models.TemplateConfig) error {
	doc, err := json.Marshal(cfg.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	query :=
		`INSERT INTO template_configs (id, event_id, image_path, fields)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`

	err = r.db.QueryRowContext(ctx, query, cfg.ID, cfg.EventID, cfg.ImagePath, doc).
		Scan(&cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.TemplateConfig, error) {
	return r.getOne(ctx, selectColumns+` WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByEventID(ctx context.Context, eventID string) (*models.TemplateConfig, error) {
	return r.getOne(ctx, selectColumns+` WHERE event_id = $1`, eventID)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*models.TemplateConfig, error) {
	cfg := &models.TemplateConfig{}
	var doc []byte

	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&cfg.ID, &cfg.EventID, &cfg.ImagePath, &doc, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal(doc, &cfg.Fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return cfg, nil
}

func (r *PostgresRepository) Update(ctx context.Context, cfg *models.TemplateConfig) error {
	doc, err := json.Marshal(cfg.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	query :=
		`UPDATE template_configs SET image_path = $2, fields = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING event_id, created_at, updated_at`

	err = r.db.QueryRowContext(ctx, query, cfg.ID, cfg.ImagePath, doc).
		Scan(&cfg.EventID, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

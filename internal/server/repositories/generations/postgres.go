package generations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/certkeeper/internal/common"
	"github.com/dmitrijs2005/certkeeper/internal/dbx"
	"github.com/dmitrijs2005/certkeeper/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `SELECT g.id, g.config_id, g.recipient_count, g.has_rank, g.generated_by,
		g.ciphertext, g.salt, g.iv, g.created_at, COALESCE(e.name, '')
		FROM generations g
		LEFT JOIN template_configs c ON c.id = g.config_id
		LEFT JOIN events e ON e.id = c.event_id`

func (r *PostgresRepository) Create(ctx context.Context, g *models.GenerationRecord) error {
	query :=
		`INSERT INTO generations (id, config_id, recipient_count, has_rank, generated_by, ciphertext, salt, iv)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		g.ID, g.ConfigID, g.RecipientCount, g.HasRank, g.GeneratedBy,
		g.Payload.Ciphertext, g.Payload.Salt, g.Payload.IV).Scan(&g.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.GenerationRecord, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE g.id = $1`, id)
	g, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) List(ctx context.Context, q *models.GenerationQuery) ([]*models.GenerationRecord, int, error) {
	where, args := buildWhere(q)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generations g`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	n := len(args)
	query := selectColumns + where + orderBy(q) +
		` LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	args = append(args, q.Limit, q.Offset())

	items, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PostgresRepository) ListAll(ctx context.Context, q *models.GenerationQuery) ([]*models.GenerationRecord, error) {
	where, args := buildWhere(q)
	return r.query(ctx, selectColumns+where+orderBy(q), args...)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM generations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.GenerationRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select generations: %w", err)
	}
	defer rows.Close()

	result := []*models.GenerationRecord{}
	for rows.Next() {
		g, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.GenerationRecord, error) {
	g := &models.GenerationRecord{}
	err := s.Scan(&g.ID, &g.ConfigID, &g.RecipientCount, &g.HasRank, &g.GeneratedBy,
		&g.Payload.Ciphertext, &g.Payload.Salt, &g.Payload.IV, &g.CreatedAt, &g.EventName)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// buildWhere renders q's filter as a WHERE clause over alias g.
func buildWhere(q *models.GenerationQuery) (string, []any) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if q.GeneratedBy != "" {
		conds = append(conds, "g.generated_by = "+arg(q.GeneratedBy))
	}
	switch q.Filter {
	case models.FilterRecent:
		conds = append(conds, "g.created_at >= "+arg(q.Now.Add(-models.RecentWindow)))
	case models.FilterHighRecipients:
		conds = append(conds, "g.recipient_count >= "+arg(models.HighRecipientsThreshold))
	case models.FilterWithRank:
		conds = append(conds, "g.has_rank")
	case models.FilterWithoutRank:
		conds = append(conds, "NOT g.has_rank")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderBy(q *models.GenerationQuery) string {
	col := "g.created_at"
	switch q.Sort {
	case models.SortRecipients:
		col = "g.recipient_count"
	case models.SortCertificateID:
		col = "g.config_id"
	}
	dir := " ASC"
	if q.Desc {
		dir = " DESC"
	}
	return " ORDER BY " + col + dir + ", g.id" + dir
}

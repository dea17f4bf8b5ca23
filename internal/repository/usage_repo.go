package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cramdesk/backend/internal/models"
)

// UsageRepo reads the usage history written by AccountRepo.AddPages.
type UsageRepo struct {
	pool *pgxpool.Pool
}

func NewUsageRepo(pool *pgxpool.Pool) *UsageRepo {
	return &UsageRepo{pool: pool}
}

func (r *UsageRepo) ListByAccountID(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.UsageEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, generation_id, document_id, operation, pages, usage_after, created_at
		FROM usage_entries WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.UsageEntry
	for rows.Next() {
		var e models.UsageEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.GenerationID, &e.DocumentID, &e.Operation, &e.Pages, &e.UsageAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

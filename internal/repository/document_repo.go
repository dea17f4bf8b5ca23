package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cramdesk/backend/internal/models"
)

type DocumentRepo struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

func (r *DocumentRepo) Create(ctx context.Context, d *models.Document) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO documents (id, account_id, title, slug, page_count, text)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, d.ID, d.AccountID, d.Title, d.Slug, d.PageCount, d.Text).Scan(&d.CreatedAt)
}

// GetForAccount returns the document only if accountID owns it.
func (r *DocumentRepo) GetForAccount(ctx context.Context, accountID, id uuid.UUID) (*models.Document, error) {
	var d models.Document
	err := r.pool.QueryRow(ctx, `
		SELECT id, account_id, title, slug, page_count, text, created_at
		FROM documents WHERE id = $1 AND account_id = $2
	`, id, accountID).Scan(&d.ID, &d.AccountID, &d.Title, &d.Slug, &d.PageCount, &d.Text, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListByAccountID omits document text.
func (r *DocumentRepo) ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, title, slug, page_count, created_at
		FROM documents WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.AccountID, &d.Title, &d.Slug, &d.PageCount, &d.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &d)
	}
	return list, rows.Err()
}

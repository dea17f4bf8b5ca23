package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cramdesk/backend/internal/models"
)

const generationColumns = `id, account_id, document_id, kind, units_requested, estimated_pages, units_produced, pages_charged, status, output, failure_reason, created_at, updated_at`

type GenerationRepo struct {
	pool *pgxpool.Pool
}

func NewGenerationRepo(pool *pgxpool.Pool) *GenerationRepo {
	return &GenerationRepo{pool: pool}
}

func (r *GenerationRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func scanGeneration(row pgx.Row) (*models.Generation, error) {
	var g models.Generation
	var output []byte
	err := row.Scan(&g.ID, &g.AccountID, &g.DocumentID, &g.Kind, &g.UnitsRequested, &g.EstimatedPages, &g.UnitsProduced, &g.PagesCharged, &g.Status, &output, &g.FailureReason, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(output) > 0 {
		g.Output = json.RawMessage(output)
	}
	return &g, nil
}

// CreateTx inserts a queued generation inside the given transaction.
func (r *GenerationRepo) CreateTx(ctx context.Context, tx pgx.Tx, g *models.Generation) error {
	return tx.QueryRow(ctx, `
		INSERT INTO generations (id, account_id, document_id, kind, units_requested, estimated_pages, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, g.ID, g.AccountID, g.DocumentID, g.Kind, g.UnitsRequested, g.EstimatedPages, g.Status).Scan(&g.CreatedAt, &g.UpdatedAt)
}

func (r *GenerationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	return scanGeneration(r.pool.QueryRow(ctx, `SELECT `+generationColumns+` FROM generations WHERE id = $1`, id))
}

func (r *GenerationRepo) GetForAccount(ctx context.Context, accountID, id uuid.UUID) (*models.Generation, error) {
	return scanGeneration(r.pool.QueryRow(ctx, `SELECT `+generationColumns+` FROM generations WHERE id = $1 AND account_id = $2`, id, accountID))
}

func (r *GenerationRepo) ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.Generation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+generationColumns+`
		FROM generations WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, g)
	}
	return list, rows.Err()
}

// MarkRunning moves a queued (or retried running) generation to running.
// It reports false when the generation already reached a final state.
func (r *GenerationRepo) MarkRunning(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE generations SET status = 'running', updated_at = now()
		WHERE id = $1 AND status IN ('queued', 'running')
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *GenerationRepo) MarkCompleted(ctx context.Context, id uuid.UUID, output json.RawMessage, unitsProduced, pagesCharged int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE generations SET status = 'completed', output = $2, units_produced = $3, pages_charged = $4, updated_at = now()
		WHERE id = $1
	`, id, []byte(output), unitsProduced, pagesCharged)
	return err
}

func (r *GenerationRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE generations SET status = 'failed', failure_reason = $2, pages_charged = 0, updated_at = now()
		WHERE id = $1
	`, id, reason)
	return err
}

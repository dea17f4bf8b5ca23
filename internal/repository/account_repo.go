package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cramdesk/backend/internal/ledger"
	"github.com/cramdesk/backend/internal/models"
)

const accountColumns = `id, email, name, password_hash, plan_id, subscription_status, trial_ends_at, pages_used_this_cycle, usage_cycle_anchor, created_at, updated_at`

// AccountRepo persists account usage records. It is the ledger's Store.
type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

var _ ledger.Store = (*AccountRepo)(nil)

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.PlanID, &a.SubscriptionStatus, &a.TrialEndsAt, &a.PagesUsed, &a.UsageCycleAnchor, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) Create(ctx context.Context, a *models.Account) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, plan_id, subscription_status, trial_ends_at, pages_used_this_cycle, usage_cycle_anchor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, a.ID, a.Email, a.Name, a.PasswordHash, a.PlanID, a.SubscriptionStatus, a.TrialEndsAt, a.PagesUsed, a.UsageCycleAnchor).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email))
}

// GetUsage reads the record the ledger decides on. Returns pgx.ErrNoRows if missing.
func (r *AccountRepo) GetUsage(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	return r.GetByID(ctx, userID)
}

// ResetCycle zeroes usage only while the stored anchor is still in an
// earlier UTC month than now, so concurrent callers reset at most once.
func (r *AccountRepo) ResetCycle(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts SET pages_used_this_cycle = 0, usage_cycle_anchor = $2, updated_at = now()
		WHERE id = $1
		  AND date_trunc('month', usage_cycle_anchor AT TIME ZONE 'UTC') <> date_trunc('month', $2::timestamptz AT TIME ZONE 'UTC')
	`, userID, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AddPages increments usage and writes the usage entry in one transaction.
// A charge for a generation that was already charged is not applied; it
// returns the current total with applied=false.
func (r *AccountRepo) AddPages(ctx context.Context, e *models.UsageEntry, maxTotal int) (int, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if e.GenerationID != nil {
		var charged bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM usage_entries WHERE generation_id = $1)`, e.GenerationID).Scan(&charged); err != nil {
			return 0, false, err
		}
		if charged {
			total, err := r.currentUsage(ctx, tx, e.AccountID)
			return total, false, err
		}
	}

	var total int
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET pages_used_this_cycle = pages_used_this_cycle + $1, updated_at = now()
		WHERE id = $2 AND ($3::int < 0 OR pages_used_this_cycle + $1 <= $3::int)
		RETURNING pages_used_this_cycle
	`, e.Pages, e.AccountID, maxTotal).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) && maxTotal >= 0 {
		// Distinguish a refused guarded add from a missing account.
		if _, cerr := r.currentUsage(ctx, tx, e.AccountID); cerr == nil {
			return 0, false, ledger.ErrLimitReached
		}
	}
	if err != nil {
		return 0, false, err
	}

	e.UsageAfter = &total
	tag, err := tx.Exec(ctx, `
		INSERT INTO usage_entries (id, account_id, generation_id, document_id, operation, pages, usage_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (generation_id) DO NOTHING
	`, e.ID, e.AccountID, e.GenerationID, e.DocumentID, e.Operation, e.Pages, total)
	if err != nil {
		return 0, false, err
	}
	if tag.RowsAffected() == 0 {
		// Lost the race with a concurrent charge for the same generation.
		_ = tx.Rollback(ctx)
		current, err := r.currentUsage(ctx, r.pool, e.AccountID)
		return current, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, false, err
	}
	return total, true, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *AccountRepo) currentUsage(ctx context.Context, q querier, id uuid.UUID) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT pages_used_this_cycle FROM accounts WHERE id = $1`, id).Scan(&n)
	return n, err
}

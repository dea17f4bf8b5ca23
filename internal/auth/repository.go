package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/cramdesk/backend/internal/models"
)

// Repository is the account storage auth needs. repository.AccountRepo
// implements it. Lookups return pgx.ErrNoRows when nothing matches.
type Repository interface {
	Create(ctx context.Context, a *models.Account) error
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

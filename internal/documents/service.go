// Package documents ingests extracted PDF text and charges its page count
// against the uploader's monthly budget.
package documents

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/cramdesk/backend/internal/ledger"
	"github.com/cramdesk/backend/internal/models"
	"github.com/cramdesk/backend/internal/plans"
)

var (
	ErrMissingTitle     = errors.New("title is required")
	ErrMissingText      = errors.New("text is required")
	ErrInvalidPageCount = errors.New("page_count must be positive")
	ErrTooManyPages     = errors.New("document exceeds the per-document page limit for this plan")
)

const maxTitleLen = 200

type Store interface {
	Create(ctx context.Context, d *models.Document) error
	ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.Document, error)
}

// Charger commits page usage. ledger.Service implements it.
type Charger interface {
	Charge(ctx context.Context, c ledger.Charge) (ledger.DeductResult, error)
}

type UploadInput struct {
	Title     string
	PageCount int
	Text      string
}

// Uploaded is a stored document plus the usage it left behind.
type Uploaded struct {
	Document   *models.Document
	UsageAfter int
	Charged    bool
}

type Service interface {
	Upload(ctx context.Context, userID uuid.UUID, plan plans.ID, in UploadInput) (*Uploaded, error)
	List(ctx context.Context, userID uuid.UUID) ([]*models.Document, error)
}

type service struct {
	store   Store
	charger Charger
	log     *slog.Logger
}

func NewService(store Store, charger Charger, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, charger: charger, log: log}
}

var _ Service = (*service)(nil)

// Validate checks an upload against the per-document cap of plan.
func Validate(in UploadInput, plan plans.ID) error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrMissingTitle
	}
	if strings.TrimSpace(in.Text) == "" {
		return ErrMissingText
	}
	if in.PageCount <= 0 {
		return ErrInvalidPageCount
	}
	limits, ok := plans.Get(plan)
	if !ok {
		limits = plans.Lookup("")
	}
	if in.PageCount > limits.MaxPagesPerDocument {
		return ErrTooManyPages
	}
	return nil
}

// Upload stores the document, then charges its pages. The document is kept
// when the charge fails; the failure is logged and Charged is false.
func (s *service) Upload(ctx context.Context, userID uuid.UUID, plan plans.ID, in UploadInput) (*Uploaded, error) {
	if err := Validate(in, plan); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if r := []rune(title); len(r) > maxTitleLen {
		title = string(r[:maxTitleLen])
	}
	doc := &models.Document{
		ID:        uuid.New(),
		AccountID: userID,
		Title:     title,
		Slug:      slug.Make(title),
		PageCount: in.PageCount,
		Text:      in.Text,
	}
	if err := s.store.Create(ctx, doc); err != nil {
		return nil, err
	}

	out := &Uploaded{Document: doc}
	res, err := s.charger.Charge(ctx, ledger.Charge{
		UserID:     userID,
		Pages:      doc.PageCount,
		Operation:  models.UsageOperationDocument,
		DocumentID: &doc.ID,
	})
	if err != nil {
		s.log.Error("charge document upload failed", "user_id", userID, "document_id", doc.ID, "pages", doc.PageCount, "error", err)
		return out, nil
	}
	out.UsageAfter = res.UsageAfter
	out.Charged = true
	s.log.Info("document uploaded", "user_id", userID, "document_id", doc.ID, "pages", doc.PageCount, "usage_after", res.UsageAfter)
	return out, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]*models.Document, error) {
	return s.store.ListByAccountID(ctx, userID)
}

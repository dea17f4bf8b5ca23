// Package generation turns uploaded documents into study material through
// background jobs, charging pages for what the model actually produced.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cramdesk/backend/internal/execution"
	"github.com/cramdesk/backend/internal/ledger"
	"github.com/cramdesk/backend/internal/models"
)

var (
	ErrUnknownKind        = errors.New("kind must be one of flashcards, quiz, slides, summary")
	ErrInvalidCount       = errors.New("count is out of range for this kind")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrGenerationNotFound = errors.New("generation not found")
)

// countLimits bounds the units one request may ask for.
var countLimits = map[string][2]int{
	ledger.KindFlashcards: {1, 100},
	ledger.KindQuiz:       {1, 50},
	ledger.KindSlides:     {1, 40},
	ledger.KindSummary:    {1, 6},
}

const defaultSummaryParagraphs = 3

type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, g *models.Generation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Generation, error)
	GetForAccount(ctx context.Context, accountID, id uuid.UUID) (*models.Generation, error)
	ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.Generation, error)
	MarkRunning(ctx context.Context, id uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, output json.RawMessage, unitsProduced, pagesCharged int) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

type DocumentStore interface {
	GetForAccount(ctx context.Context, accountID, id uuid.UUID) (*models.Document, error)
}

// Charger commits page usage. ledger.Service implements it.
type Charger interface {
	Charge(ctx context.Context, c ledger.Charge) (ledger.DeductResult, error)
}

// Recorder receives finished generations. May be nil.
type Recorder interface {
	GenerationFinished(kind, status string)
}

// InsertGenerateJobTxFunc enqueues a generate job within the given transaction.
// Provided by main using river.Client.InsertTx.
type InsertGenerateJobTxFunc func(ctx context.Context, tx pgx.Tx, args execution.GenerateJobArgs) error

type CreateInput struct {
	DocumentID uuid.UUID
	Kind       string
	Count      int
}

type Service interface {
	Estimate(ctx context.Context, userID uuid.UUID, in CreateInput) (int, error)
	Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*models.Generation, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*models.Generation, error)
	List(ctx context.Context, userID uuid.UUID) ([]*models.Generation, error)
}

type service struct {
	store     Store
	docs      DocumentStore
	charger   Charger
	insertJob InsertGenerateJobTxFunc
	recorder  Recorder
	log       *slog.Logger
}

// NewService returns *service so it can also serve as execution.GenerationService.
func NewService(store Store, docs DocumentStore, charger Charger, insertJob InsertGenerateJobTxFunc, recorder Recorder, log *slog.Logger) *service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, docs: docs, charger: charger, insertJob: insertJob, recorder: recorder, log: log}
}

var (
	_ Service                     = (*service)(nil)
	_ execution.GenerationService = (*service)(nil)
)

// normalize validates the input and fills in the summary default.
func normalize(in CreateInput) (CreateInput, error) {
	in.Kind = strings.ToLower(strings.TrimSpace(in.Kind))
	bounds, ok := countLimits[in.Kind]
	if !ok {
		return in, ErrUnknownKind
	}
	if in.Kind == ledger.KindSummary && in.Count == 0 {
		in.Count = defaultSummaryParagraphs
	}
	if in.Count < bounds[0] || in.Count > bounds[1] {
		return in, fmt.Errorf("%w: %s allows %d to %d", ErrInvalidCount, in.Kind, bounds[0], bounds[1])
	}
	return in, nil
}

// costFor prices units of kind. Summaries cost the document's page count.
func costFor(kind string, units int, doc *models.Document) int {
	if kind == ledger.KindSummary {
		return ledger.CalculateCost(kind, doc.PageCount)
	}
	return ledger.CalculateCost(kind, units)
}

func (s *service) document(ctx context.Context, userID, docID uuid.UUID) (*models.Document, error) {
	doc, err := s.docs.GetForAccount(ctx, userID, docID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	return doc, err
}

func (s *service) Estimate(ctx context.Context, userID uuid.UUID, in CreateInput) (int, error) {
	in, err := normalize(in)
	if err != nil {
		return 0, err
	}
	doc, err := s.document(ctx, userID, in.DocumentID)
	if err != nil {
		return 0, err
	}
	return costFor(in.Kind, in.Count, doc), nil
}

// Create records a queued generation and enqueues its job atomically.
func (s *service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*models.Generation, error) {
	in, err := normalize(in)
	if err != nil {
		return nil, err
	}
	doc, err := s.document(ctx, userID, in.DocumentID)
	if err != nil {
		return nil, err
	}
	g := &models.Generation{
		ID:             uuid.New(),
		AccountID:      userID,
		DocumentID:     doc.ID,
		Kind:           in.Kind,
		UnitsRequested: in.Count,
		EstimatedPages: costFor(in.Kind, in.Count, doc),
		Status:         models.GenerationStatusQueued,
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.store.CreateTx(ctx, tx, g); err != nil {
		return nil, err
	}
	if err := s.insertJob(ctx, tx, execution.GenerateJobArgs{GenerationID: g.ID}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *service) Get(ctx context.Context, userID, id uuid.UUID) (*models.Generation, error) {
	g, err := s.store.GetForAccount(ctx, userID, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGenerationNotFound
	}
	return g, err
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]*models.Generation, error) {
	return s.store.ListByAccountID(ctx, userID)
}

// StartGeneration implements execution.GenerationService.
func (s *service) StartGeneration(ctx context.Context, id uuid.UUID) (*models.Generation, *models.Document, bool, error) {
	running, err := s.store.MarkRunning(ctx, id)
	if err != nil || !running {
		return nil, nil, false, err
	}
	g, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, nil, false, err
	}
	doc, err := s.docs.GetForAccount(ctx, g.AccountID, g.DocumentID)
	if err != nil {
		return nil, nil, false, err
	}
	g.Status = models.GenerationStatusRunning
	return g, doc, true, nil
}

// CompleteGeneration implements execution.GenerationService. It charges the
// cost of what was produced, never more than what was requested, then
// stores the output. The charge is keyed by generation id so a retried job
// is not billed twice.
func (s *service) CompleteGeneration(ctx context.Context, id uuid.UUID, output json.RawMessage, unitsProduced int) error {
	g, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	doc, err := s.docs.GetForAccount(ctx, g.AccountID, g.DocumentID)
	if err != nil {
		return err
	}
	units := min(unitsProduced, g.UnitsRequested)
	pages := costFor(g.Kind, units, doc)

	res, err := s.charger.Charge(ctx, ledger.Charge{
		UserID:       g.AccountID,
		Pages:        pages,
		Operation:    g.Kind,
		GenerationID: &g.ID,
		DocumentID:   &doc.ID,
	})
	if errors.Is(err, ledger.ErrInsufficientPages) {
		s.log.Warn("generation finished over limit, discarding output", "generation_id", id, "pages", pages)
		return s.FailGeneration(ctx, id, "monthly page limit reached")
	}
	if err != nil {
		return fmt.Errorf("charge generation: %w", err)
	}
	if res.Replayed {
		s.log.Info("generation was charged by an earlier attempt", "generation_id", id)
	}

	if err := s.store.MarkCompleted(ctx, id, output, unitsProduced, pages); err != nil {
		return err
	}
	s.record(g.Kind, models.GenerationStatusCompleted)
	s.log.Info("generation completed",
		"generation_id", id, "user_id", g.AccountID, "kind", g.Kind,
		"units", unitsProduced, "pages_charged", pages, "usage_after", res.UsageAfter)
	return nil
}

// FailGeneration implements execution.GenerationService. Nothing is charged.
func (s *service) FailGeneration(ctx context.Context, id uuid.UUID, reason string) error {
	if err := s.store.MarkFailed(ctx, id, reason); err != nil {
		return err
	}
	kind := "unknown"
	if g, err := s.store.GetByID(ctx, id); err == nil {
		kind = g.Kind
	}
	s.record(kind, models.GenerationStatusFailed)
	s.log.Warn("generation failed", "generation_id", id, "reason", reason)
	return nil
}

func (s *service) record(kind, status string) {
	if s.recorder != nil {
		s.recorder.GenerationFinished(kind, status)
	}
}

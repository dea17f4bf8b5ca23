package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/cramdesk/backend/internal/ledger"
	"github.com/cramdesk/backend/internal/llm"
	"github.com/cramdesk/backend/internal/models"
)

type mockGenerationService struct {
	mu        sync.Mutex
	gen       *models.Generation
	doc       *models.Document
	finished  bool
	completed []int
	failed    []string
	startErr  error
}

func (m *mockGenerationService) StartGeneration(_ context.Context, _ uuid.UUID) (*models.Generation, *models.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return nil, nil, false, m.startErr
	}
	return m.gen, m.doc, !m.finished, nil
}

func (m *mockGenerationService) CompleteGeneration(_ context.Context, _ uuid.UUID, _ json.RawMessage, units int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, units)
	return nil
}

func (m *mockGenerationService) FailGeneration(_ context.Context, _ uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, reason)
	return nil
}

type stubLLM struct {
	out   string
	err   error
	calls int
}

func (s *stubLLM) Generate(_ context.Context, _ llm.Request) (string, error) {
	s.calls++
	return s.out, s.err
}

func newJob(attempt, maxAttempts int) *river.Job[GenerateJobArgs] {
	return &river.Job[GenerateJobArgs]{
		JobRow: &rivertype.JobRow{Attempt: attempt, MaxAttempts: maxAttempts},
		Args:   GenerateJobArgs{GenerationID: uuid.New()},
	}
}

func newWorkerFixture(t *testing.T, kind string, model *stubLLM) (*GenerateWorker, *mockGenerationService) {
	t.Helper()
	svc := &mockGenerationService{
		gen: &models.Generation{ID: uuid.New(), Kind: kind, UnitsRequested: 10},
		doc: &models.Document{ID: uuid.New(), Title: "Cell Biology", PageCount: 12, Text: "Mitochondria produce ATP."},
	}
	return NewGenerateWorker(svc, model, newTestValidator(t), nil), svc
}

func TestGenerateWorker_CompletesWithProducedUnits(t *testing.T) {
	model := &stubLLM{out: `{"cards":[{"front":"a","back":"b"},{"front":"c","back":"d"}]}`}
	w, svc := newWorkerFixture(t, ledger.KindFlashcards, model)

	if err := w.Work(context.Background(), newJob(1, 3)); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if len(svc.completed) != 1 || svc.completed[0] != 2 {
		t.Errorf("completed units: got %v, want [2]", svc.completed)
	}
	if len(svc.failed) != 0 {
		t.Errorf("unexpected failure: %v", svc.failed)
	}
}

func TestGenerateWorker_InvalidOutputFailsWithoutCharge(t *testing.T) {
	model := &stubLLM{out: `{"cards":"nope"}`}
	w, svc := newWorkerFixture(t, ledger.KindFlashcards, model)

	if err := w.Work(context.Background(), newJob(1, 3)); err != nil {
		t.Fatalf("Work should swallow validation failures, got %v", err)
	}
	if len(svc.completed) != 0 {
		t.Errorf("generation completed despite invalid output")
	}
	if len(svc.failed) != 1 {
		t.Errorf("expected generation to be failed, got %v", svc.failed)
	}
}

func TestGenerateWorker_TransportErrorRetries(t *testing.T) {
	model := &stubLLM{err: errors.New("connection reset by peer")}
	w, svc := newWorkerFixture(t, ledger.KindQuiz, model)

	if err := w.Work(context.Background(), newJob(1, 3)); err == nil {
		t.Fatal("expected error so River retries")
	}
	if len(svc.failed) != 0 || len(svc.completed) != 0 {
		t.Errorf("generation should stay running between attempts")
	}
}

func TestGenerateWorker_LastAttemptFails(t *testing.T) {
	model := &stubLLM{err: errors.New("timeout")}
	w, svc := newWorkerFixture(t, ledger.KindQuiz, model)

	if err := w.Work(context.Background(), newJob(3, 3)); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if len(svc.failed) != 1 {
		t.Errorf("expected failure on final attempt, got %v", svc.failed)
	}
}

func TestGenerateWorker_RejectedRequestFailsImmediately(t *testing.T) {
	model := &stubLLM{err: fmt.Errorf("%w: invalid api key", llm.ErrRejected)}
	w, svc := newWorkerFixture(t, ledger.KindSlides, model)

	if err := w.Work(context.Background(), newJob(1, 3)); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if len(svc.failed) != 1 {
		t.Errorf("expected immediate failure, got %v", svc.failed)
	}
}

func TestGenerateWorker_SkipsFinishedGeneration(t *testing.T) {
	model := &stubLLM{}
	w, svc := newWorkerFixture(t, ledger.KindSummary, model)
	svc.finished = true

	if err := w.Work(context.Background(), newJob(2, 3)); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if model.calls != 0 {
		t.Errorf("model called for finished generation")
	}
}

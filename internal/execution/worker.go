package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/cramdesk/backend/internal/llm"
	"github.com/cramdesk/backend/internal/models"
)

type GenerateJobArgs struct {
	GenerationID uuid.UUID `json:"generation_id"`
}

func (GenerateJobArgs) Kind() string { return "generate_study_material" }

// GenerationService is what the worker needs to load work and report results.
type GenerationService interface {
	// StartGeneration marks the generation running and returns it with its
	// document. ok is false when it already reached a final state.
	StartGeneration(ctx context.Context, id uuid.UUID) (gen *models.Generation, doc *models.Document, ok bool, err error)
	CompleteGeneration(ctx context.Context, id uuid.UUID, output json.RawMessage, unitsProduced int) error
	FailGeneration(ctx context.Context, id uuid.UUID, reason string) error
}

type GenerateWorker struct {
	river.WorkerDefaults[GenerateJobArgs]
	svc       GenerationService
	llm       llm.Generator
	validator *Validator
	log       *slog.Logger
}

func NewGenerateWorker(svc GenerationService, gen llm.Generator, v *Validator, log *slog.Logger) *GenerateWorker {
	if log == nil {
		log = slog.Default()
	}
	return &GenerateWorker{svc: svc, llm: gen, validator: v, log: log}
}

func (w *GenerateWorker) Work(ctx context.Context, job *river.Job[GenerateJobArgs]) error {
	id := job.Args.GenerationID

	gen, doc, ok, err := w.svc.StartGeneration(ctx, id)
	if err != nil {
		return fmt.Errorf("start generation: %w", err)
	}
	if !ok {
		w.log.Info("generation already finished, skipping", "generation_id", id)
		return nil
	}

	req, err := BuildPrompt(gen.Kind, doc.Title, doc.Text, gen.UnitsRequested)
	if err != nil {
		return w.failGeneration(ctx, id, err.Error())
	}

	out, err := w.llm.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, llm.ErrRejected) || job.Attempt >= job.MaxAttempts {
			return w.failGeneration(ctx, id, fmt.Sprintf("model request failed: %v", err))
		}
		return fmt.Errorf("llm generate: %w", err)
	}

	output, units, err := w.validator.ValidateOutput(gen.Kind, out)
	if err != nil {
		w.log.Warn("model output rejected", "generation_id", id, "kind", gen.Kind, "error", err)
		return w.failGeneration(ctx, id, "model returned malformed output")
	}

	if err := w.svc.CompleteGeneration(ctx, id, output, units); err != nil {
		return fmt.Errorf("failed to mark generation completed: %w", err)
	}
	return nil
}

func (w *GenerateWorker) failGeneration(ctx context.Context, id uuid.UUID, reason string) error {
	markErr := w.svc.FailGeneration(ctx, id, reason)
	if markErr != nil {
		return fmt.Errorf("generation failed (%s) AND failed to mark it as failed: %w", reason, markErr)
	}
	return nil
}

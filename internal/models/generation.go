package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Generation status enums.
const (
	GenerationStatusQueued    = "queued"
	GenerationStatusRunning   = "running"
	GenerationStatusCompleted = "completed"
	GenerationStatusFailed    = "failed"
)

type Generation struct {
	ID             uuid.UUID       `json:"id"`
	AccountID      uuid.UUID       `json:"account_id"`
	DocumentID     uuid.UUID       `json:"document_id"`
	Kind           string          `json:"kind"`
	UnitsRequested int             `json:"units_requested"`
	EstimatedPages int             `json:"estimated_pages"`
	UnitsProduced  *int            `json:"units_produced,omitempty"`
	PagesCharged   *int            `json:"pages_charged,omitempty"`
	Status         string          `json:"status"`
	Output         json.RawMessage `json:"output,omitempty"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

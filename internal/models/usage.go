package models

import (
	"time"

	"github.com/google/uuid"
)

// Usage entry operation enums. Generation kinds reuse their kind name.
const (
	UsageOperationDocument = "document"
	UsageOperationManual   = "manual"
)

// UsageEntry records one committed page spend.
type UsageEntry struct {
	ID           uuid.UUID  `json:"id"`
	AccountID    uuid.UUID  `json:"account_id"`
	GenerationID *uuid.UUID `json:"generation_id,omitempty"`
	DocumentID   *uuid.UUID `json:"document_id,omitempty"`
	Operation    string     `json:"operation"`
	Pages        int        `json:"pages"`
	UsageAfter   *int       `json:"usage_after,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

type Document struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	PageCount int       `json:"page_count"`
	Text      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

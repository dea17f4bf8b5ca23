package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription status enums. Written by the billing collaborator; the quota
// ledger only reads them.
const (
	SubscriptionNone     = "none"
	SubscriptionTrialing = "trialing"
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

// TrialPeriod is granted to every new account at signup.
const TrialPeriod = 7 * 24 * time.Hour

// Account is the per-user usage record. PlanID holds the raw stored plan
// identifier, which may be empty or a retired tier name; resolve it through
// the plans package before use.
type Account struct {
	ID                 uuid.UUID `json:"id"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	PasswordHash       string    `json:"-"`
	PlanID             *string   `json:"plan_id,omitempty"`
	SubscriptionStatus string    `json:"subscription_status"`
	TrialEndsAt        time.Time `json:"trial_ends_at"`
	PagesUsed          int       `json:"pages_used_this_cycle"`
	UsageCycleAnchor   time.Time `json:"usage_cycle_anchor"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NewTrialAccount returns the record a fresh signup starts with.
func NewTrialAccount(email, name, passwordHash string, now time.Time) *Account {
	return &Account{
		ID:                 uuid.New(),
		Email:              email,
		Name:               name,
		PasswordHash:       passwordHash,
		SubscriptionStatus: SubscriptionTrialing,
		TrialEndsAt:        now.Add(TrialPeriod),
		PagesUsed:          0,
		UsageCycleAnchor:   now,
	}
}

// RawPlanID returns the stored plan identifier or "" when none is set.
func (a *Account) RawPlanID() string {
	if a.PlanID == nil {
		return ""
	}
	return *a.PlanID
}

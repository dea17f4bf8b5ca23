// Package ledger gates and accounts for page consumption against each
// account's monthly budget.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cramdesk/backend/internal/models"
	"github.com/cramdesk/backend/internal/plans"
)

var (
	// ErrAccountNotFound is returned when the user id has no usage record.
	ErrAccountNotFound = errors.New("account not found")
	// ErrPersistence wraps any failed store read or write.
	ErrPersistence = errors.New("usage store failure")
	// ErrInvalidPages is returned for a non-positive check or a negative deduct.
	ErrInvalidPages = errors.New("invalid page count")
	// ErrInsufficientPages is returned by a deduct only when limit enforcement
	// on deduct is enabled.
	ErrInsufficientPages = errors.New("insufficient pages")
	// ErrLimitReached is returned by a Store when a guarded AddPages would
	// take the counter past maxTotal.
	ErrLimitReached = errors.New("page limit reached")
)

// NoLimit disables the guard in Store.AddPages.
const NoLimit = -1

// Store is the persisted account record. Implementations return
// pgx.ErrNoRows when the account does not exist.
type Store interface {
	GetUsage(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	// ResetCycle zeroes the counter and moves the anchor to now, but only if
	// the stored anchor is still in an earlier calendar month. It reports
	// whether this call performed the reset.
	ResetCycle(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error)
	// AddPages atomically adds entry.Pages to the counter, records the entry
	// and returns the new total. With maxTotal >= 0 the add is refused with
	// ErrLimitReached if the total would exceed maxTotal. An entry whose
	// GenerationID was already charged is not applied again: applied is false
	// and total is the current counter.
	AddPages(ctx context.Context, entry *models.UsageEntry, maxTotal int) (total int, applied bool, err error)
}

// Denial says why a check was not allowed.
type Denial string

const (
	DenialNone                Denial = ""
	DenialSubscriptionExpired Denial = "subscription_expired"
	DenialInsufficientPages   Denial = "insufficient_pages"
)

// CheckResult is the answer to "may this account spend N pages".
type CheckResult struct {
	Allowed        bool      `json:"allowed"`
	PagesRemaining int       `json:"pages_remaining"`
	PagesRequired  int       `json:"pages_required"`
	CurrentUsage   int       `json:"current_usage"`
	Limit          int       `json:"limit"`
	Plan           plans.ID  `json:"plan"`
	Denial         Denial    `json:"error,omitempty"`
	CycleResetsAt  time.Time `json:"cycle_resets_at"`
}

// Shortfall is how many more pages the request needed.
func (r CheckResult) Shortfall() int {
	if r.PagesRequired <= r.PagesRemaining {
		return 0
	}
	return r.PagesRequired - r.PagesRemaining
}

// Charge describes a completed spend.
type Charge struct {
	UserID       uuid.UUID
	Pages        int
	Operation    string
	GenerationID *uuid.UUID
	DocumentID   *uuid.UUID
}

// DeductResult is the counter after a spend. Replayed is set when the
// charge's generation was already billed and nothing was added.
type DeductResult struct {
	UsageAfter int  `json:"usage_after"`
	Limit      int  `json:"limit"`
	Overshoot  int  `json:"overshoot,omitempty"`
	Replayed   bool `json:"replayed,omitempty"`
}

// Summary is the current usage picture for an account.
type Summary struct {
	Plan                plans.ID  `json:"plan"`
	SubscriptionStatus  string    `json:"subscription_status"`
	HasAccess           bool      `json:"has_access"`
	TrialEndsAt         time.Time `json:"trial_ends_at"`
	PagesUsed           int       `json:"pages_used"`
	Limit               int       `json:"limit"`
	PagesRemaining      int       `json:"pages_remaining"`
	MaxPagesPerDocument int       `json:"max_pages_per_document"`
	CycleStartedAt      time.Time `json:"cycle_started_at"`
	CycleResetsAt       time.Time `json:"cycle_resets_at"`
}

type Service interface {
	CheckUsage(ctx context.Context, userID uuid.UUID, pagesRequired int) (CheckResult, error)
	DeductPages(ctx context.Context, userID uuid.UUID, pages int) (DeductResult, error)
	Charge(ctx context.Context, c Charge) (DeductResult, error)
	Summary(ctx context.Context, userID uuid.UUID) (Summary, error)
}

type service struct {
	store           Store
	log             *slog.Logger
	metrics         Metrics
	now             func() time.Time
	enforceOnDeduct bool
}

// Option configures the ledger.
type Option func(*service)

func WithLogger(log *slog.Logger) Option {
	return func(s *service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEnforceLimitOnDeduct makes deducts refuse to take usage past the limit
// instead of recording the overshoot.
func WithEnforceLimitOnDeduct(enforce bool) Option {
	return func(s *service) { s.enforceOnDeduct = enforce }
}

func NewService(store Store, opts ...Option) Service {
	s := &service{
		store:   store,
		log:     slog.Default(),
		metrics: nopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Service = (*service)(nil)

func (s *service) CheckUsage(ctx context.Context, userID uuid.UUID, pagesRequired int) (CheckResult, error) {
	if pagesRequired <= 0 {
		return CheckResult{}, ErrInvalidPages
	}
	now := s.now()
	acc, err := s.load(ctx, userID, now)
	if err != nil {
		return CheckResult{}, err
	}

	limits := s.limitsFor(acc)
	res := CheckResult{
		PagesRequired:  pagesRequired,
		CurrentUsage:   acc.PagesUsed,
		Limit:          limits.MonthlyPages,
		Plan:           limits.Plan,
		PagesRemaining: max(0, limits.MonthlyPages-acc.PagesUsed),
		CycleResetsAt:  NextCycleStart(now),
	}
	switch {
	case !hasAccess(acc, now):
		res.Denial = DenialSubscriptionExpired
	case res.PagesRemaining >= pagesRequired:
		res.Allowed = true
	default:
		res.Denial = DenialInsufficientPages
	}

	outcome := "allowed"
	if !res.Allowed {
		outcome = string(res.Denial)
	}
	s.metrics.CheckEvaluated(outcome)
	return res, nil
}

func (s *service) DeductPages(ctx context.Context, userID uuid.UUID, pages int) (DeductResult, error) {
	return s.Charge(ctx, Charge{UserID: userID, Pages: pages, Operation: models.UsageOperationManual})
}

// Charge commits a completed spend. It never re-validates access, and only
// re-validates the limit when WithEnforceLimitOnDeduct is set.
func (s *service) Charge(ctx context.Context, c Charge) (DeductResult, error) {
	if c.Pages < 0 {
		return DeductResult{}, ErrInvalidPages
	}
	now := s.now()
	acc, err := s.load(ctx, c.UserID, now)
	if err != nil {
		return DeductResult{}, err
	}
	limit := s.limitsFor(acc).MonthlyPages
	if c.Pages == 0 {
		return DeductResult{UsageAfter: acc.PagesUsed, Limit: limit}, nil
	}

	op := c.Operation
	if op == "" {
		op = models.UsageOperationManual
	}
	maxTotal := NoLimit
	if s.enforceOnDeduct {
		maxTotal = limit
	}
	entry := &models.UsageEntry{
		ID:           uuid.New(),
		AccountID:    c.UserID,
		GenerationID: c.GenerationID,
		DocumentID:   c.DocumentID,
		Operation:    op,
		Pages:        c.Pages,
	}
	total, applied, err := s.store.AddPages(ctx, entry, maxTotal)
	if err != nil {
		if errors.Is(err, ErrLimitReached) {
			return DeductResult{UsageAfter: acc.PagesUsed, Limit: limit}, ErrInsufficientPages
		}
		return DeductResult{}, s.storeErr(err)
	}
	if !applied {
		s.log.Info("generation already charged, skipping", "user_id", c.UserID, "generation_id", c.GenerationID, "usage", total)
		return DeductResult{UsageAfter: total, Limit: limit, Replayed: true}, nil
	}
	s.metrics.PagesDeducted(op, c.Pages)

	res := DeductResult{UsageAfter: total, Limit: limit}
	if total > limit {
		res.Overshoot = total - limit
		s.metrics.Overshoot(res.Overshoot)
		s.log.Warn("usage exceeds plan limit after deduct",
			"user_id", c.UserID, "operation", op, "pages", c.Pages, "usage", total, "limit", limit)
	}
	return res, nil
}

func (s *service) Summary(ctx context.Context, userID uuid.UUID) (Summary, error) {
	now := s.now()
	acc, err := s.load(ctx, userID, now)
	if err != nil {
		return Summary{}, err
	}
	limits := s.limitsFor(acc)
	return Summary{
		Plan:                limits.Plan,
		SubscriptionStatus:  acc.SubscriptionStatus,
		HasAccess:           hasAccess(acc, now),
		TrialEndsAt:         acc.TrialEndsAt,
		PagesUsed:           acc.PagesUsed,
		Limit:               limits.MonthlyPages,
		PagesRemaining:      max(0, limits.MonthlyPages-acc.PagesUsed),
		MaxPagesPerDocument: limits.MaxPagesPerDocument,
		CycleStartedAt:      acc.UsageCycleAnchor,
		CycleResetsAt:       NextCycleStart(now),
	}, nil
}

// load reads the record and applies the lazy month rollover.
func (s *service) load(ctx context.Context, userID uuid.UUID, now time.Time) (*models.Account, error) {
	acc, err := s.store.GetUsage(ctx, userID)
	if err != nil {
		return nil, s.storeErr(err)
	}
	if SameCycle(acc.UsageCycleAnchor, now) {
		return acc, nil
	}

	reset, err := s.store.ResetCycle(ctx, userID, now)
	if err != nil {
		return nil, s.storeErr(err)
	}
	if reset {
		s.metrics.CycleRolledOver()
		s.log.Info("usage cycle rolled over",
			"user_id", userID, "previous_usage", acc.PagesUsed, "previous_anchor", acc.UsageCycleAnchor)
		acc.PagesUsed = 0
		acc.UsageCycleAnchor = now
		return acc, nil
	}

	// A concurrent request reset the cycle first.
	acc, err = s.store.GetUsage(ctx, userID)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return acc, nil
}

// limitsFor resolves the tier an account spends against. Trial access
// without an active subscription spends under the default tier.
func (s *service) limitsFor(acc *models.Account) plans.Limits {
	if acc.SubscriptionStatus != models.SubscriptionActive {
		return plans.Lookup("")
	}
	id, ok := plans.Resolve(acc.RawPlanID())
	if !ok {
		s.log.Warn("unrecognized plan id, using default tier", "user_id", acc.ID, "plan_id", acc.RawPlanID())
	}
	limits, _ := plans.Get(id)
	return limits
}

func hasAccess(acc *models.Account, now time.Time) bool {
	if acc.SubscriptionStatus == models.SubscriptionActive {
		return true
	}
	return acc.TrialEndsAt.After(now)
}

func (s *service) storeErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAccountNotFound
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

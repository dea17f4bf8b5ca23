package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/cramdesk/backend/internal/ledger"
)

type mockChecker struct {
	mu     sync.Mutex
	result ledger.CheckResult
	err    error
	calls  []int
}

func (m *mockChecker) CheckUsage(_ context.Context, _ uuid.UUID, pages int) (ledger.CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, pages)
	res := m.result
	res.PagesRequired = pages
	return res, m.err
}

// pagesField estimates cost from a "pages" field in the body.
func pagesField(_ *http.Request, _ uuid.UUID, body []byte) (int, error) {
	var in struct {
		Pages int `json:"pages"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return 0, errors.New("invalid JSON body")
	}
	return in.Pages, nil
}

// injectUser simulates BearerAuth upstream.
func injectUser(id uuid.UUID, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
	})
}

func serveQuota(t *testing.T, checker *mockChecker, est Estimator, body string, next http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	if next == nil {
		next = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	}
	handler := injectUser(uuid.New(), QuotaCheck(checker, est, nil)(next))
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestQuotaCheck_AllowedPassesBodyAndResult(t *testing.T) {
	checker := &mockChecker{result: ledger.CheckResult{Allowed: true, PagesRemaining: 300, Limit: 300}}

	var gotBody string
	var gotRes ledger.CheckResult
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotRes, _ = CheckResultFromCtx(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	body := `{"pages":60}`
	rec := serveQuota(t, checker, pagesField, body, next)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotBody != body {
		t.Errorf("handler body: got %q, want %q", gotBody, body)
	}
	if !gotRes.Allowed || gotRes.PagesRequired != 60 {
		t.Errorf("check result in context: %+v", gotRes)
	}
}

func TestQuotaCheck_InsufficientPages(t *testing.T) {
	checker := &mockChecker{result: ledger.CheckResult{
		Allowed: false, PagesRemaining: 240, CurrentUsage: 60, Limit: 300, Denial: ledger.DenialInsufficientPages,
	}}

	rec := serveQuota(t, checker, pagesField, `{"pages":250}`, nil)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", rec.Code, rec.Body.String())
	}
	var got QuotaDenied
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Error != "insufficient_pages" || got.PagesRequired != 250 || got.PagesRemaining != 240 || got.Shortfall != 10 || got.CurrentUsage != 60 {
		t.Errorf("unexpected body: %+v", got)
	}
}

func TestQuotaCheck_SubscriptionExpired(t *testing.T) {
	checker := &mockChecker{result: ledger.CheckResult{Allowed: false, PagesRemaining: 300, Limit: 300, Denial: ledger.DenialSubscriptionExpired}}

	rec := serveQuota(t, checker, pagesField, `{"pages":1}`, nil)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error":"subscription_expired"`) {
		t.Errorf("expected subscription_expired, got: %s", rec.Body.String())
	}
}

func TestQuotaCheck_LedgerFailureIs500(t *testing.T) {
	checker := &mockChecker{err: fmt.Errorf("%w: connection reset", ledger.ErrPersistence)}

	rec := serveQuota(t, checker, pagesField, `{"pages":5}`, nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Errorf("internal detail leaked: %s", rec.Body.String())
	}
}

func TestQuotaCheck_EstimatorErrors(t *testing.T) {
	checker := &mockChecker{result: ledger.CheckResult{Allowed: true}}

	rec := serveQuota(t, checker, pagesField, `not json`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: expected 400, got %d", rec.Code)
	}

	missing := func(*http.Request, uuid.UUID, []byte) (int, error) {
		return 0, fmt.Errorf("document: %w", ErrEstimateNotFound)
	}
	rec = serveQuota(t, checker, missing, `{}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing resource: expected 404, got %d", rec.Code)
	}
	if len(checker.calls) != 0 {
		t.Errorf("ledger consulted despite estimator error: %v", checker.calls)
	}
}

func TestQuotaCheck_ZeroCostIs400(t *testing.T) {
	checker := &mockChecker{err: ledger.ErrInvalidPages}

	rec := serveQuota(t, checker, pagesField, `{"pages":0}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestQuotaCheck_RequiresUser(t *testing.T) {
	checker := &mockChecker{}
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"pages":1}`))
	rec := httptest.NewRecorder()
	QuotaCheck(checker, pagesField, nil)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

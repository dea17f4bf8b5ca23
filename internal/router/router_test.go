package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cramdesk/backend/internal/auth"
	"github.com/cramdesk/backend/internal/dashboard"
	"github.com/cramdesk/backend/internal/documents"
	"github.com/cramdesk/backend/internal/generation"
	"github.com/cramdesk/backend/internal/ledger"
	"github.com/cramdesk/backend/internal/models"
)

// memAccounts backs auth, the ledger and the dashboard in one map.
type memAccounts struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Account
}

func (m *memAccounts) Create(_ context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.byID[a.ID] = &cp
	return nil
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memAccounts) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) GetUsage(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return m.GetByID(ctx, id)
}

func (m *memAccounts) ResetCycle(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.byID[id]
	if ledger.SameCycle(a.UsageCycleAnchor, now) {
		return false, nil
	}
	a.PagesUsed, a.UsageCycleAnchor = 0, now
	return true, nil
}

func (m *memAccounts) AddPages(_ context.Context, e *models.UsageEntry, _ int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.byID[e.AccountID]
	a.PagesUsed += e.Pages
	return a.PagesUsed, true, nil
}

type memDocs struct {
	mu   sync.Mutex
	docs []*models.Document
}

func (m *memDocs) Create(_ context.Context, d *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, d)
	return nil
}

func (m *memDocs) ListByAccountID(_ context.Context, id uuid.UUID) ([]*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Document
	for _, d := range m.docs {
		if d.AccountID == id {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDocs) GetForAccount(_ context.Context, accountID, id uuid.UUID) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.ID == id && d.AccountID == accountID {
			return d, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type noHistory struct{}

func (noHistory) ListByAccountID(context.Context, uuid.UUID, int) ([]*models.UsageEntry, error) {
	return nil, nil
}

func newTestAPI() http.Handler {
	accounts := &memAccounts{byID: make(map[uuid.UUID]*models.Account)}
	docs := &memDocs{}
	authSvc := auth.NewService(accounts, "test-secret")
	quota := ledger.NewService(accounts)
	genSvc := generation.NewService(nil, docs, quota, nil, nil, nil)

	return New(Deps{
		Auth:        auth.NewHandler(authSvc, nil),
		Dashboard:   dashboard.NewHandler(quota, accounts, noHistory{}, docs, nil),
		Documents:   documents.NewHandler(documents.NewService(docs, quota, nil), nil),
		Generations: generation.NewHandler(genSvc, nil),
		Tokens:      authSvc,
		Quota:       quota,
	})
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRoutes_RequireBearerToken(t *testing.T) {
	api := newTestAPI()
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/usage"},
		{http.MethodGet, "/api/v1/account/me"},
		{http.MethodPost, "/api/v1/documents"},
		{http.MethodGet, "/api/v1/generations"},
		{http.MethodGet, "/api/v1/generations/" + uuid.NewString()},
	} {
		if rr := do(t, api, route.method, route.path, "", "{}"); rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", route.method, route.path, rr.Code)
		}
	}
	if rr := do(t, api, http.MethodGet, "/api/v1/plans", "", ""); rr.Code != http.StatusOK {
		t.Errorf("plans should be public, got %d", rr.Code)
	}
	if rr := do(t, api, http.MethodGet, "/api/v1/auth/login", "", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET login: expected 405, got %d", rr.Code)
	}
}

func TestSignupUploadAndUsage(t *testing.T) {
	api := newTestAPI()

	rr := do(t, api, http.MethodPost, "/api/v1/auth/register", "", `{"email":"sam@uni.edu","password":"correct horse","name":"Sam"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, api, http.MethodPost, "/api/v1/auth/login", "", `{"email":"sam@uni.edu","password":"correct horse"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rr.Code, rr.Body.String())
	}
	var login auth.LoginResponse
	_ = json.NewDecoder(rr.Body).Decode(&login)

	rr = do(t, api, http.MethodPost, "/api/v1/documents", login.Token, `{"title":"Macro","page_count":40,"text":"GDP..."}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rr.Code, rr.Body.String())
	}

	// Trial accounts get the starter tier: 300 pages, 50 per document.
	rr = do(t, api, http.MethodPost, "/api/v1/documents", login.Token, `{"title":"Huge","page_count":51,"text":"..."}`)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized document: expected 413, got %d", rr.Code)
	}

	rr = do(t, api, http.MethodGet, "/api/v1/usage", login.Token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("usage: %d", rr.Code)
	}
	var sum ledger.Summary
	_ = json.NewDecoder(rr.Body).Decode(&sum)
	if sum.PagesUsed != 40 || sum.Limit != 300 || sum.PagesRemaining != 260 || !sum.HasAccess {
		t.Errorf("unexpected usage: %+v", sum)
	}

	rr = do(t, api, http.MethodGet, "/api/v1/documents", login.Token, "")
	var list []map[string]any
	_ = json.NewDecoder(rr.Body).Decode(&list)
	if len(list) != 1 {
		t.Errorf("documents: got %d, want 1", len(list))
	}
}

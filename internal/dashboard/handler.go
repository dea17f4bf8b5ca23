package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cramdesk/backend/internal/ledger"
	"github.com/cramdesk/backend/internal/middleware"
	"github.com/cramdesk/backend/internal/models"
	"github.com/cramdesk/backend/internal/plans"
)

// UsageReader is the read side of the ledger.
type UsageReader interface {
	Summary(ctx context.Context, userID uuid.UUID) (ledger.Summary, error)
}

type AccountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

type HistoryReader interface {
	ListByAccountID(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.UsageEntry, error)
}

type DocumentReader interface {
	GetForAccount(ctx context.Context, accountID, id uuid.UUID) (*models.Document, error)
}

type Handler struct {
	usage    UsageReader
	accounts AccountReader
	history  HistoryReader
	docs     DocumentReader
	log      *slog.Logger
}

func NewHandler(usage UsageReader, accounts AccountReader, history HistoryReader, docs DocumentReader, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		usage:    usage,
		accounts: accounts,
		history:  history,
		docs:     docs,
		log:      log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// GET /api/v1/account/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	acc, err := h.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		h.log.Error("get account failed", "user_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	plan, _ := plans.Resolve(acc.RawPlanID())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                  acc.ID,
		"email":               acc.Email,
		"name":                acc.Name,
		"plan":                plan,
		"subscription_status": acc.SubscriptionStatus,
		"trial_ends_at":       acc.TrialEndsAt,
		"created_at":          acc.CreatedAt,
	})
}

// GET /api/v1/usage
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sum, err := h.usage.Summary(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		h.log.Error("usage summary failed", "user_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "unable to load usage, please try again later")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// GET /api/v1/usage/history?limit=N
func (h *Handler) ListUsageHistory(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := h.history.ListByAccountID(r.Context(), accountID, limit)
	if err != nil {
		h.log.Error("list usage history failed", "user_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entries == nil {
		entries = []*models.UsageEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type EstimateRequest struct {
	Kind       string `json:"kind"`
	Count      int    `json:"count"`
	DocumentID string `json:"document_id,omitempty"`
	PageCount  int    `json:"page_count,omitempty"`
}

type EstimateResponse struct {
	Kind  string `json:"kind"`
	Units int    `json:"units"`
	Pages int    `json:"pages"`
}

// POST /api/v1/usage/estimate
//
// Prices a request without touching the ledger. Summaries and uploads are
// priced by page count, taken from page_count or from the referenced document.
func (h *Handler) EstimateCost(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	units := req.Count

	switch kind {
	case ledger.KindFlashcards, ledger.KindQuiz, ledger.KindSlides:
	case ledger.KindSummary, ledger.KindDocument:
		if req.DocumentID != "" {
			docID, err := uuid.Parse(req.DocumentID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "document_id must be a UUID")
				return
			}
			doc, err := h.docs.GetForAccount(r.Context(), accountID, docID)
			if errors.Is(err, pgx.ErrNoRows) {
				writeError(w, http.StatusNotFound, "document not found")
				return
			}
			if err != nil {
				h.log.Error("estimate document lookup failed", "user_id", accountID, "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			units = doc.PageCount
		} else {
			units = req.PageCount
		}
	default:
		writeError(w, http.StatusBadRequest, "kind must be one of flashcards, quiz, slides, summary, document")
		return
	}
	if units <= 0 {
		writeError(w, http.StatusBadRequest, "count or page count must be positive")
		return
	}
	writeJSON(w, http.StatusOK, EstimateResponse{Kind: kind, Units: units, Pages: ledger.CalculateCost(kind, units)})
}

// GET /api/v1/plans
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, plans.All())
}

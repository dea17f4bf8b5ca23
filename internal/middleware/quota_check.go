package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/cramdesk/backend/internal/ledger"
)

const ctxCheckKey contextKey = "quota_check"

// maxPeekBody caps how much of a request body QuotaCheck buffers.
const maxPeekBody = 16 << 20

// QuotaChecker is the part of the ledger QuotaCheck needs.
type QuotaChecker interface {
	CheckUsage(ctx context.Context, userID uuid.UUID, pagesRequired int) (ledger.CheckResult, error)
}

// Estimator returns the page cost of the request. It receives the buffered
// body; errors are reported to the client as 400s, except ones wrapping
// ErrEstimateNotFound which become 404s.
type Estimator func(r *http.Request, userID uuid.UUID, body []byte) (int, error)

// ErrEstimateNotFound lets an estimator report that the referenced resource
// does not exist.
var ErrEstimateNotFound = errors.New("not found")

// QuotaDenied is the 402 body.
type QuotaDenied struct {
	Error          string `json:"error"`
	Message        string `json:"message"`
	PagesRequired  int    `json:"pages_required"`
	PagesRemaining int    `json:"pages_remaining"`
	Shortfall      int    `json:"shortfall"`
	Limit          int    `json:"limit"`
	CurrentUsage   int    `json:"current_usage"`
}

// CheckResultFromCtx returns the allowed check QuotaCheck made for this request.
func CheckResultFromCtx(ctx context.Context) (ledger.CheckResult, bool) {
	res, ok := ctx.Value(ctxCheckKey).(ledger.CheckResult)
	return res, ok
}

// QuotaCheck gates a spend on the caller's remaining monthly pages. It reads
// the body to estimate the cost, then replaces r.Body so downstream handlers
// can re-read it. Must run after BearerAuth.
func QuotaCheck(checker QuotaChecker, estimate Estimator, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromCtx(r.Context())
			if !ok {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBody))
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			pages, err := estimate(r, userID, bodyBytes)
			if err != nil {
				status := http.StatusBadRequest
				if errors.Is(err, ErrEstimateNotFound) {
					status = http.StatusNotFound
				}
				writeJSON(w, status, map[string]string{"error": err.Error()})
				return
			}

			res, err := checker.CheckUsage(r.Context(), userID, pages)
			switch {
			case errors.Is(err, ledger.ErrInvalidPages):
				http.Error(w, `{"error":"request must cost at least one page"}`, http.StatusBadRequest)
				return
			case errors.Is(err, ledger.ErrAccountNotFound):
				http.Error(w, `{"error":"account not found"}`, http.StatusUnauthorized)
				return
			case err != nil:
				log.Error("usage check failed", "user_id", userID, "pages", pages, "error", err)
				http.Error(w, `{"error":"unable to verify usage, please try again later"}`, http.StatusInternalServerError)
				return
			}

			if !res.Allowed {
				writeJSON(w, http.StatusPaymentRequired, deniedBody(res))
				return
			}

			ctx := context.WithValue(r.Context(), ctxCheckKey, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func deniedBody(res ledger.CheckResult) QuotaDenied {
	out := QuotaDenied{
		Error:          string(res.Denial),
		PagesRequired:  res.PagesRequired,
		PagesRemaining: res.PagesRemaining,
		Shortfall:      res.Shortfall(),
		Limit:          res.Limit,
		CurrentUsage:   res.CurrentUsage,
	}
	switch res.Denial {
	case ledger.DenialSubscriptionExpired:
		out.Message = "Your trial or subscription has ended. Choose a plan to keep studying."
	default:
		out.Message = "This request needs more pages than you have left this month."
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package documents

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/cramdesk/backend/internal/middleware"
	"github.com/cramdesk/backend/internal/models"
)

type UploadRequest struct {
	Title     string `json:"title"`
	PageCount int    `json:"page_count"`
	Text      string `json:"text"`
}

type UploadResponse struct {
	*models.Document
	PagesUsed int `json:"pages_used_this_cycle"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// Estimate is the middleware.Estimator for POST /documents: an upload costs
// its page count.
func Estimate(_ *http.Request, _ uuid.UUID, body []byte) (int, error) {
	var req UploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return 0, errors.New("invalid JSON body")
	}
	if req.PageCount <= 0 {
		return 0, ErrInvalidPageCount
	}
	return req.PageCount, nil
}

// UploadDocument runs behind QuotaCheck.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	check, ok := middleware.CheckResultFromCtx(r.Context())
	if !ok {
		h.log.Error("upload reached handler without a quota check", "user_id", userID)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	up, err := h.svc.Upload(r.Context(), userID, check.Plan, UploadInput{Title: req.Title, PageCount: req.PageCount, Text: req.Text})
	if err != nil {
		switch {
		case errors.Is(err, ErrTooManyPages):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, ErrMissingTitle), errors.Is(err, ErrMissingText), errors.Is(err, ErrInvalidPageCount):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("upload document failed", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "upload failed")
		}
		return
	}

	used := up.UsageAfter
	if !up.Charged {
		used = check.CurrentUsage
	}
	writeJSON(w, http.StatusCreated, UploadResponse{Document: up.Document, PagesUsed: used})
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.svc.List(r.Context(), userID)
	if err != nil {
		h.log.Error("list documents failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "list documents failed")
		return
	}
	if list == nil {
		list = []*models.Document{}
	}
	writeJSON(w, http.StatusOK, list)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

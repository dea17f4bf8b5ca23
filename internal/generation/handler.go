package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/cramdesk/backend/internal/middleware"
	"github.com/cramdesk/backend/internal/models"
)

type CreateGenerationRequest struct {
	DocumentID string `json:"document_id"`
	Kind       string `json:"kind"`
	Count      int    `json:"count"`
}

type GenerationResponse struct {
	*models.Generation
	PagesRemaining *int `json:"pages_remaining,omitempty"`
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

func decodeCreate(body []byte) (CreateInput, error) {
	var req CreateGenerationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return CreateInput{}, errors.New("invalid JSON body")
	}
	docID, err := uuid.Parse(req.DocumentID)
	if err != nil {
		return CreateInput{}, errors.New("document_id must be a UUID")
	}
	return CreateInput{DocumentID: docID, Kind: req.Kind, Count: req.Count}, nil
}

// Estimate is the middleware.Estimator for POST /generations.
func (h *Handler) Estimate(r *http.Request, userID uuid.UUID, body []byte) (int, error) {
	in, err := decodeCreate(body)
	if err != nil {
		return 0, err
	}
	pages, err := h.svc.Estimate(r.Context(), userID, in)
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return 0, fmt.Errorf("%w: document", middleware.ErrEstimateNotFound)
	case errors.Is(err, ErrUnknownKind), errors.Is(err, ErrInvalidCount):
		return 0, err
	case err != nil:
		h.log.Error("estimate generation failed", "user_id", userID, "error", err)
		return 0, errors.New("could not estimate cost")
	}
	return pages, nil
}

// CreateGeneration runs behind QuotaCheck, which has already confirmed the
// estimated pages are available.
func (h *Handler) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	in, err := decodeCreate(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	g, err := h.svc.Create(r.Context(), userID, in)
	if err != nil {
		switch {
		case errors.Is(err, ErrDocumentNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrUnknownKind), errors.Is(err, ErrInvalidCount):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("create generation failed", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "create generation failed")
		}
		return
	}
	resp := GenerationResponse{Generation: g}
	if check, ok := middleware.CheckResultFromCtx(r.Context()); ok {
		resp.PagesRemaining = &check.PagesRemaining
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) GetGeneration(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid generation id")
		return
	}
	g, err := h.svc.Get(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, ErrGenerationNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error("get generation failed", "generation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "get generation failed")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *Handler) ListGenerations(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.svc.List(r.Context(), userID)
	if err != nil {
		h.log.Error("list generations failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "list generations failed")
		return
	}
	if list == nil {
		list = []*models.Generation{}
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

package router

import (
	"net/http"

	"github.com/cramdesk/backend/internal/auth"
	"github.com/cramdesk/backend/internal/dashboard"
	"github.com/cramdesk/backend/internal/documents"
	"github.com/cramdesk/backend/internal/generation"
	"github.com/cramdesk/backend/internal/middleware"
)

// Deps are the handlers and gates the API is assembled from.
type Deps struct {
	Auth        *auth.Handler
	Dashboard   *dashboard.Handler
	Documents   *documents.Handler
	Generations *generation.Handler

	Tokens middleware.TokenValidator
	Quota  middleware.QuotaChecker
}

// New returns an http.Handler that serves the API under /api/v1.
// Middleware chain: BearerAuth -> (QuotaCheck on spending routes) -> handler.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc("POST "+base+"/auth/register", d.Auth.Register)
	mux.HandleFunc("POST "+base+"/auth/login", d.Auth.Login)
	mux.HandleFunc("GET "+base+"/plans", d.Dashboard.ListPlans)

	authed := middleware.BearerAuth(d.Tokens)
	protect := func(h http.HandlerFunc) http.Handler { return authed(h) }
	spend := func(estimate middleware.Estimator, h http.HandlerFunc) http.Handler {
		return authed(middleware.QuotaCheck(d.Quota, estimate, nil)(h))
	}

	mux.Handle("GET "+base+"/account/me", protect(d.Dashboard.GetMe))
	mux.Handle("GET "+base+"/usage", protect(d.Dashboard.GetUsage))
	mux.Handle("GET "+base+"/usage/history", protect(d.Dashboard.ListUsageHistory))
	mux.Handle("POST "+base+"/usage/estimate", protect(d.Dashboard.EstimateCost))

	mux.Handle("POST "+base+"/documents", spend(documents.Estimate, d.Documents.UploadDocument))
	mux.Handle("GET "+base+"/documents", protect(d.Documents.ListDocuments))

	mux.Handle("POST "+base+"/generations", spend(d.Generations.Estimate, d.Generations.CreateGeneration))
	mux.Handle("GET "+base+"/generations", protect(d.Generations.ListGenerations))
	mux.Handle("GET "+base+"/generations/{id}", protect(d.Generations.GetGeneration))

	return mux
}

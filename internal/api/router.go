package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/genforge/internal/api/middleware"
	"github.com/kiranshivaraju/genforge/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Session     *mw.Session
	RateLimit   *mw.RateLimit
	Admin       *mw.Admin
	CORSOrigins []string

	HealthHandler        http.HandlerFunc
	WebhookHandler       http.HandlerFunc
	CreateJobHandler     http.HandlerFunc
	GetJobHandler        http.HandlerFunc
	ListJobsHandler      http.HandlerFunc
	CreditsHandler       http.HandlerFunc
	DownloadAssetHandler http.HandlerFunc
	GrantCreditsHandler  http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.CORS(deps.CORSOrigins))

	// Public routes. Vendors authenticate with the body signature.
	r.Get("/api/health", orNotImplemented(deps.HealthHandler))
	r.Post("/api/webhooks/vendor", orNotImplemented(deps.WebhookHandler))

	// Session routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Session.Handler)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/jobs", orNotImplemented(deps.CreateJobHandler))
		r.Get("/api/jobs", orNotImplemented(deps.ListJobsHandler))
		r.Get("/api/jobs/{id}", orNotImplemented(deps.GetJobHandler))

		r.Get("/api/credits", orNotImplemented(deps.CreditsHandler))
		r.Get("/api/assets/{id}/download", orNotImplemented(deps.DownloadAssetHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Admin.Require)

			r.Post("/api/admin/credits", orNotImplemented(deps.GrantCreditsHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}

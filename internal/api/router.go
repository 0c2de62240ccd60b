package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// webhookSecret signs GitHub push events; the webhook endpoint sits outside
// the Bearer auth group because GitHub authenticates by signature.
func NewRouter(h *Handler, authEnabled bool, token, webhookSecret string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/webhooks/github", NewWebhookHandler(webhookSecret, h).ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))

		// Catalog reads.
		r.Get("/catalog", h.ListItems)
		r.Get("/catalog/{id}", h.GetItem)

		// Personal item publishing.
		r.Post("/items", h.CreateItem)
		r.Put("/items/{id}", h.UpdateItem)
		r.Delete("/items/{id}", h.DeleteItem)

		// Per-user overview.
		r.Get("/dashboard", h.Dashboard)

		// Reconciliation.
		r.Post("/sync", h.SyncAll)
		r.Post("/sync/paths", h.SyncPaths)

		// Users and teams.
		r.Post("/users", h.CreateUser)
		r.Get("/users/{userID}", h.GetUser)
		r.Post("/teams", h.CreateTeam)
		r.Post("/teams/{teamID}/members", h.AddMember)
		r.Delete("/teams/{teamID}/members/{userID}", h.RemoveMember)

		// Configuration.
		r.Get("/users/{userID}/configuration", h.GetConfiguration)
		r.Put("/users/{userID}/configuration", h.SaveConfiguration)
		r.Get("/users/{userID}/configuration/effective", h.EffectiveConfiguration)
		r.Get("/users/{userID}/configuration/versions", h.ConfigurationVersions)
		r.Post("/users/{userID}/configuration/rollback", h.RollbackConfiguration)
		r.Post("/users/{userID}/configuration/import", h.ImportConfiguration)

		// SSE endpoint (protected by same auth middleware).
		if sseHandler != nil {
			r.Get("/events", sseHandler.ServeHTTP)
		}
	})

	return r
}

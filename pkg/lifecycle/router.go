package lifecycle

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with organization and content view
// environment routes. orgMiddleware, when non-nil, resolves the request
// organization for the binding routes; organization routes name it in the
// path instead.
func NewRouter(svc *Service, orgMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/organizations", createOrganizationHandler(svc))
	r.Route("/organizations/{org}", func(r chi.Router) {
		r.Get("/", getOrganizationHandler(svc))
		r.Post("/environments", createEnvironmentHandler(svc))
		r.Delete("/environments/{id}", deleteEnvironmentHandler(svc))
		r.Post("/content_views", createContentViewHandler(svc))
		r.Delete("/content_views/{id}", deleteContentViewHandler(svc))
		r.Post("/hosts", registerHostHandler(svc))
		r.Post("/activation_keys", createActivationKeyHandler(svc))
	})

	r.Route("/content_view_environments", func(r chi.Router) {
		if orgMiddleware != nil {
			r.Use(orgMiddleware)
		}
		r.Get("/", listBindingsHandler(svc))
		r.Post("/", createBindingHandler(svc))
		r.Get("/resolve", resolveBindingHandler(svc))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getBindingHandler(svc))
			r.Delete("/", deleteBindingHandler(svc))
			r.Get("/hosts", listHostsHandler(svc))
			r.Get("/activation_keys", listActivationKeysHandler(svc))
			r.Get("/priority", getPriorityHandler(svc))
			r.Put("/content_facets/{facetId}", setPriorityHandler(svc))
		})
	})

	return r
}

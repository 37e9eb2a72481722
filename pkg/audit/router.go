package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/katello/lifecycle/pkg/authz"
)

// Router serves the audit trail. A nil authorizer leaves the routes open;
// otherwise reading requires audit list/get.
func Router(store *Store, authorizer authz.Authorizer) chi.Router {
	guard := func(verb string) func(http.Handler) http.Handler {
		if authorizer == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return authz.RequirePermission(authorizer, authz.ResourceAudit, verb)
	}

	r := chi.NewRouter()
	r.With(guard(authz.VerbList)).Get("/events", ListEventsHandler(store))
	r.With(guard(authz.VerbGet)).Get("/events/{eventId}", GetEventHandler(store))
	return r
}

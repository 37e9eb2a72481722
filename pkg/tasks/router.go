package tasks

import (
	"github.com/go-chi/chi/v5"

	"github.com/katello/lifecycle/pkg/authz"
)

// Router creates a chi.Router for the task API.
// When authorizer is non-nil, endpoints require tasks:list, tasks:get and
// tasks:update permissions.
func Router(store *TaskStore, authorizer authz.Authorizer) chi.Router {
	r := chi.NewRouter()

	listHandler := ListTasksHandler(store)
	getHandler := GetTaskHandler(store)
	cancelHandler := CancelTaskHandler(store)

	if authorizer != nil {
		r.Get("/", authz.RequirePermission(authorizer, authz.ResourceTasks, authz.VerbList)(listHandler).ServeHTTP)
		r.Get("/{taskId}", authz.RequirePermission(authorizer, authz.ResourceTasks, authz.VerbGet)(getHandler).ServeHTTP)
		r.Post("/{taskId}/cancel", authz.RequirePermission(authorizer, authz.ResourceTasks, authz.VerbUpdate)(cancelHandler).ServeHTTP)
	} else {
		r.Get("/", listHandler)
		r.Get("/{taskId}", getHandler)
		r.Post("/{taskId}/cancel", cancelHandler)
	}

	return r
}

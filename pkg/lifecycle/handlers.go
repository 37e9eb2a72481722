package lifecycle

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// createOrganizationHandler bootstraps an organization with its Library
// environment, default content view and default binding.
func createOrganizationHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateOrganizationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if req.Name == "" {
			req.Name = req.Label
		}
		org, err := svc.CreateOrganization(r.Context(), req.Name, req.Label)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, organizationToResponse(org))
	}
}

func getOrganizationHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, err := svc.GetOrganization(r.Context(), chi.URLParam(r, "org"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, organizationToResponse(org))
	}
}

func createEnvironmentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateNamedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		env, err := svc.CreateEnvironment(r.Context(), chi.URLParam(r, "org"), req.Name, req.Label)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, environmentToResponse(env))
	}
}

func deleteEnvironmentHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uintParam(w, r, "id")
		if !ok {
			return
		}
		if err := svc.DeleteEnvironment(r.Context(), chi.URLParam(r, "org"), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func createContentViewHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateNamedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		cv, err := svc.CreateContentView(r.Context(), chi.URLParam(r, "org"), req.Name, req.Label)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, contentViewToResponse(cv))
	}
}

func deleteContentViewHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uintParam(w, r, "id")
		if !ok {
			return
		}
		if err := svc.DeleteContentView(r.Context(), chi.URLParam(r, "org"), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func registerHostHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterHostRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		host, facet, err := svc.RegisterHost(r.Context(), chi.URLParam(r, "org"), req.Name)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, HostResponse{
			ID:             host.ID,
			Name:           host.Name,
			OrganizationID: host.OrganizationID,
			ContentFacetID: facet.ID,
		})
	}
}

func createActivationKeyHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateActivationKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		key := &ActivationKey{Name: req.Name, ContentViewID: req.ContentViewID, EnvironmentID: req.EnvironmentID}
		if err := svc.CreateActivationKey(r.Context(), chi.URLParam(r, "org"), key); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, activationKeyToResponse(key))
	}
}

// listBindingsHandler lists the bindings of the request organization.
// Supports ?search= and ?default=true|false.
func listBindingsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		search, err := ParseSearch(q.Get("search"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts := ListOptions{Search: search}
		if d := q.Get("default"); d != "" {
			def, err := strconv.ParseBool(d)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid default %q", d))
				return
			}
			opts.Default = &def
		}

		records, err := svc.ListBindings(r.Context(), opts)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		results := make([]BindingResponse, len(records))
		for i := range records {
			results[i] = BindingToResponse(&records[i])
		}
		writeJSON(w, http.StatusOK, BindingList{Results: results, Total: len(results), Search: q.Get("search")})
	}
}

// resolveBindingHandler performs the Candlepin-name reverse lookup.
// An unmatched or malformed name is a 404.
func resolveBindingHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		c, err := svc.Resolve(r.Context(), name)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if c == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no content view environment named %q", name))
			return
		}
		writeJSON(w, http.StatusOK, BindingToResponse(c))
	}
}

func createBindingHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBindingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		c, err := svc.CreateBinding(r.Context(), CreateBindingInput{
			Name:                 req.Name,
			ContentViewID:        req.ContentViewID,
			EnvironmentID:        req.EnvironmentID,
			ContentViewVersionID: req.ContentViewVersionID,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, BindingToResponse(c))
	}
}

func getBindingHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uintParam(w, r, "id")
		if !ok {
			return
		}
		c, err := svc.GetBinding(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, BindingToResponse(c))
	}
}

func deleteBindingHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uintParam(w, r, "id")
		if !ok {
			return
		}
		if err := svc.DestroyBinding(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listHostsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uintParam(w, r, "id")
		if !ok {
			return
		}
		hosts, err := svc.Hosts(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		results := make([]HostResponse, len(hosts))
		for i, h := range hosts {
			results[i] = HostResponse{ID: h.ID, Name: h.Name, OrganizationID: h.OrganizationID}
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results, "total": len(results)})
	}
}

func listActivationKeysHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uintParam(w, r, "id")
		if !ok {
			return
		}
		keys, err := svc.ActivationKeys(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		results := make([]ActivationKeyResponse, len(keys))
		for i := range keys {
			results[i] = activationKeyToResponse(&keys[i])
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results, "total": len(results)})
	}
}

// getPriorityHandler reports the priority of the binding for
// ?content_facet_id=. An unlinked facet yields a null priority.
func getPriorityHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uintParam(w, r, "id")
		if !ok {
			return
		}
		facetID, err := strconv.ParseUint(r.URL.Query().Get("content_facet_id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "content_facet_id is required")
			return
		}
		priority, err := svc.Priority(r.Context(), id, uint(facetID))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, PriorityResponse{
			ContentViewEnvironmentID: id,
			ContentFacetID:           uint(facetID),
			Priority:                 priority,
		})
	}
}

func setPriorityHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uintParam(w, r, "id")
		if !ok {
			return
		}
		facetID, ok := uintParam(w, r, "facetId")
		if !ok {
			return
		}
		var req SetPriorityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if err := svc.SetPriority(r.Context(), id, facetID, req.Priority); err != nil {
			writeServiceError(w, err)
			return
		}
		priority := req.Priority
		writeJSON(w, http.StatusOK, PriorityResponse{
			ContentViewEnvironmentID: id,
			ContentFacetID:           facetID,
			Priority:                 &priority,
		})
	}
}

func activationKeyToResponse(k *ActivationKey) ActivationKeyResponse {
	return ActivationKeyResponse{
		ID:            k.ID,
		Name:          k.Name,
		ContentViewID: k.ContentViewID,
		EnvironmentID: k.EnvironmentID,
	}
}

// uintParam parses a numeric URL parameter, writing a 400 on failure.
func uintParam(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := chi.URLParam(r, name)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s %q", name, raw))
		return 0, false
	}
	return uint(v), true
}

// writeServiceError maps service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var verrs *ValidationError
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "unprocessable_entity",
			Message: verrs.Error(),
			Errors:  verrs.Fields,
		})
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrLibraryEnvironment):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: errorCode(status), Message: message})
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	default:
		return "internal_error"
	}
}

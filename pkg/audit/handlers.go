package audit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// EventList is a page of audit events.
type EventList struct {
	Events        []EventResponse `json:"events"`
	NextPageToken string          `json:"nextPageToken,omitempty"`
	TotalSize     int             `json:"totalSize"`
}

// EventResponse is the API representation of an audit event.
type EventResponse struct {
	ID             string         `json:"id"`
	Organization   string         `json:"organization,omitempty"`
	EventType      string         `json:"eventType"`
	Actor          string         `json:"actor"`
	Action         string         `json:"action"`
	Outcome        string         `json:"outcome"`
	AuditableType  string         `json:"auditableType,omitempty"`
	AuditableID    string         `json:"auditableId,omitempty"`
	AuditableName  string         `json:"auditableName,omitempty"`
	AssociatedType string         `json:"associatedType,omitempty"`
	AssociatedID   string         `json:"associatedId,omitempty"`
	Changes        map[string]any `json:"changes,omitempty"`
	RequestID      string         `json:"requestId,omitempty"`
	CorrelationID  string         `json:"correlationId,omitempty"`
	StatusCode     int            `json:"statusCode,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      string         `json:"createdAt"`
}

// ListEventsHandler handles GET /events.
// Query params: organization, actor, eventType, action, auditableType,
// auditableId, associatedType, associatedId, pageSize, pageToken
func ListEventsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := Filter{
			Organization:   q.Get("organization"),
			Actor:          q.Get("actor"),
			EventType:      q.Get("eventType"),
			Action:         q.Get("action"),
			AuditableType:  q.Get("auditableType"),
			AuditableID:    q.Get("auditableId"),
			AssociatedType: q.Get("associatedType"),
			AssociatedID:   q.Get("associatedId"),
		}

		pageSize := defaultPageSize
		if ps := q.Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}
		pageToken := q.Get("pageToken")
		if pageToken != "" {
			if _, err := time.Parse(time.RFC3339Nano, pageToken); err != nil {
				writeError(w, http.StatusBadRequest, "invalid pageToken")
				return
			}
		}

		events, nextToken, total, err := store.List(r.Context(), filter, pageSize, pageToken)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list audit events: %v", err))
			return
		}

		resp := EventList{Events: make([]EventResponse, len(events)), NextPageToken: nextToken, TotalSize: total}
		for i, e := range events {
			resp.Events[i] = eventToResponse(e)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// GetEventHandler handles GET /events/{eventId}.
func GetEventHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "eventId")
		if eventID == "" {
			writeError(w, http.StatusBadRequest, "missing event ID")
			return
		}

		event, err := store.Get(r.Context(), eventID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get audit event: %v", err))
			return
		}
		if event == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("audit event %q not found", eventID))
			return
		}
		writeJSON(w, http.StatusOK, eventToResponse(*event))
	}
}

func eventToResponse(e Event) EventResponse {
	return EventResponse{
		ID:             e.ID,
		Organization:   e.Organization,
		EventType:      e.EventType,
		Actor:          e.Actor,
		Action:         e.Action,
		Outcome:        e.Outcome,
		AuditableType:  e.AuditableType,
		AuditableID:    e.AuditableID,
		AuditableName:  e.AuditableName,
		AssociatedType: e.AssociatedType,
		AssociatedID:   e.AssociatedID,
		Changes:        map[string]any(e.Changes),
		RequestID:      e.RequestID,
		CorrelationID:  e.CorrelationID,
		StatusCode:     e.StatusCode,
		Metadata:       map[string]any(e.Metadata),
		CreatedAt:      e.CreatedAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

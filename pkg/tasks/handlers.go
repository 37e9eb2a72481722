package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// GetTaskHandler handles GET /tasks/{taskId}.
func GetTaskHandler(store *TaskStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskId")
		if taskID == "" {
			writeError(w, http.StatusBadRequest, "missing task ID")
			return
		}

		task, err := store.Get(r.Context(), taskID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get task: %v", err))
			return
		}
		if task == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("task %q not found", taskID))
			return
		}

		writeJSON(w, http.StatusOK, TaskToResponse(task))
	}
}

// ListTasksHandler handles GET /tasks.
// Query params: organization, action, resourceType, resourceId, state,
// requestedBy, pageSize, pageToken
func ListTasksHandler(store *TaskStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := TaskListFilter{
			Organization: q.Get("organization"),
			Action:       q.Get("action"),
			ResourceType: q.Get("resourceType"),
			ResourceID:   q.Get("resourceId"),
			State:        q.Get("state"),
			RequestedBy:  q.Get("requestedBy"),
		}

		pageSize := 20
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

		records, nextToken, total, err := store.List(r.Context(), filter, pageSize, pageToken)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list tasks: %v", err))
			return
		}

		resp := TaskList{Tasks: make([]TaskResponse, len(records)), NextPageToken: nextToken, TotalSize: total}
		for i := range records {
			resp.Tasks[i] = TaskToResponse(&records[i])
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// CancelTaskHandler handles POST /tasks/{taskId}/cancel.
func CancelTaskHandler(store *TaskStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskId")
		if taskID == "" {
			writeError(w, http.StatusBadRequest, "missing task ID")
			return
		}

		err := store.Cancel(r.Context(), taskID)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
			return
		case errors.Is(err, ErrNotCancelable):
			writeError(w, http.StatusConflict, err.Error())
			return
		default:
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to cancel task: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status": string(TaskStateCanceled),
			"taskId": taskID,
		})
	}
}

// TaskList is a page of tasks.
type TaskList struct {
	Tasks         []TaskResponse `json:"tasks"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
	TotalSize     int            `json:"totalSize"`
}

// TaskResponse is the API response for a task.
type TaskResponse struct {
	ID            string            `json:"id"`
	Organization  string            `json:"organization,omitempty"`
	Action        string            `json:"action"`
	ResourceType  string            `json:"resourceType,omitempty"`
	ResourceID    string            `json:"resourceId,omitempty"`
	ResourceLabel string            `json:"resourceLabel,omitempty"`
	Input         map[string]string `json:"input,omitempty"`
	Output        map[string]string `json:"output,omitempty"`
	RequestedBy   string            `json:"requestedBy"`
	RequestedAt   string            `json:"requestedAt"`
	State         string            `json:"state"`
	Message       string            `json:"message,omitempty"`
	StartedAt     string            `json:"startedAt,omitempty"`
	FinishedAt    string            `json:"finishedAt,omitempty"`
	AttemptCount  int               `json:"attemptCount"`
	LastError     string            `json:"lastError,omitempty"`
	DurationMs    int64             `json:"durationMs,omitempty"`
}

// TaskToResponse converts a task to its API representation.
func TaskToResponse(task *Task) TaskResponse {
	resp := TaskResponse{
		ID:            task.ID,
		Organization:  task.Organization,
		Action:        task.Action,
		ResourceType:  task.ResourceType,
		ResourceID:    task.ResourceID,
		ResourceLabel: task.ResourceLabel,
		Input:         task.Input,
		Output:        task.Output,
		RequestedBy:   task.RequestedBy,
		RequestedAt:   task.RequestedAt.Format(time.RFC3339),
		State:         string(task.State),
		Message:       task.Message,
		AttemptCount:  task.AttemptCount,
		LastError:     task.LastError,
		DurationMs:    task.DurationMs,
	}
	if task.StartedAt != nil {
		resp.StartedAt = task.StartedAt.Format(time.RFC3339)
	}
	if task.FinishedAt != nil {
		resp.FinishedAt = task.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

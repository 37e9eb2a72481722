package audit

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/katello/lifecycle/pkg/authz"
	"github.com/katello/lifecycle/pkg/tenancy"
)

// CorrelationHeader carries a caller-supplied id linking related requests.
const CorrelationHeader = "X-Correlation-ID"

// responseCapture wraps http.ResponseWriter to capture the status code.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

// Middleware records a request event for every mutating API request after
// the handler completes. Writes are best-effort.
func Middleware(store *Store, cfg *AuditConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg == nil || !cfg.Enabled || store == nil || !isAuditedRequest(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			outcome := outcomeFromStatus(capture.statusCode)
			if outcome == OutcomeDenied && !cfg.LogDenied {
				return
			}

			ctx := r.Context()
			id, _ := authz.IdentityFromContext(ctx)
			requestID := middleware.GetReqID(ctx)
			correlationID := r.Header.Get(CorrelationHeader)
			if correlationID == "" {
				correlationID = requestID
			}

			mapping := authz.MapRequest(r.Method, r.URL.Path)
			org := tenancy.OrganizationFromContext(ctx)
			ids := extractResourceIDs(r.URL.Path)
			if org == "" && len(ids) > 0 && strings.HasPrefix(r.URL.Path, authz.APIPrefix+"/organizations/") {
				org = ids[0]
			}

			event := &Event{
				ID:            uuid.New().String(),
				Organization:  org,
				EventType:     EventTypeRequest,
				Actor:         authz.ActorFromContext(ctx),
				Action:        actionForMethod(r.Method),
				Outcome:       outcome,
				AuditableType: mapping.Resource,
				RequestID:     requestID,
				CorrelationID: correlationID,
				StatusCode:    capture.statusCode,
				CreatedAt:     start,
				Metadata: JSONMap{
					"method":      r.Method,
					"path":        r.URL.Path,
					"resourceIds": ids,
					"duration":    time.Since(start).String(),
					"groups":      id.Groups,
				},
			}
			if len(ids) > 0 {
				event.AuditableID = ids[len(ids)-1]
			}

			if err := store.Append(ctx, event); err != nil {
				logger.Error("failed to write audit event", "error", err, "requestID", requestID)
			}
		})
	}
}

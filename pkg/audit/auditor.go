package audit

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/katello/lifecycle/pkg/authz"
	"github.com/katello/lifecycle/pkg/lifecycle"
)

// Auditor writes record events for lifecycle changes.
type Auditor struct {
	store  *Store
	cfg    *AuditConfig
	logger *slog.Logger
}

var _ lifecycle.Auditor = (*Auditor)(nil)

// NewAuditor creates an Auditor. A nil cfg uses DefaultAuditConfig.
func NewAuditor(store *Store, cfg *AuditConfig, logger *slog.Logger) *Auditor {
	if cfg == nil {
		cfg = DefaultAuditConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{store: store, cfg: cfg, logger: logger}
}

// Audit implements lifecycle.Auditor.
func (a *Auditor) Audit(ctx context.Context, action lifecycle.AuditAction, subject lifecycle.Auditable) error {
	if !a.cfg.Enabled || a.store == nil {
		return nil
	}
	associatedType, associatedID := subject.AuditAssociation()
	event := &Event{
		ID:             uuid.New().String(),
		Organization:   subject.AuditOrganization(),
		EventType:      EventTypeRecord,
		Actor:          authz.ActorFromContext(ctx),
		Action:         string(action),
		Outcome:        OutcomeSuccess,
		AuditableType:  subject.AuditResourceType(),
		AuditableID:    subject.AuditResourceID(),
		AuditableName:  subject.AuditResourceName(),
		AssociatedType: associatedType,
		AssociatedID:   associatedID,
		Changes:        JSONMap(subject.AuditedChanges()),
		RequestID:      middleware.GetReqID(ctx),
	}
	if err := a.store.Append(ctx, event); err != nil {
		return err
	}
	a.logger.Debug("audited record change",
		"action", event.Action, "type", event.AuditableType, "id", event.AuditableID, "actor", event.Actor)
	return nil
}

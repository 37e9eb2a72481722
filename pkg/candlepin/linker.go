package candlepin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/katello/lifecycle/pkg/authz"
	"github.com/katello/lifecycle/pkg/lifecycle"
	"github.com/katello/lifecycle/pkg/tasks"
)

// Task actions handled by this package.
const (
	ActionCreateEnvironment  = "candlepin.environment.create"
	ActionDestroyEnvironment = "candlepin.environment.destroy"
)

// Task input keys.
const (
	inputOwner       = "owner"
	inputID          = "id"
	inputName        = "name"
	inputDescription = "description"
)

// TaskLinker mirrors bindings into Candlepin by enqueueing background tasks.
type TaskLinker struct {
	store  *tasks.TaskStore
	logger *slog.Logger
}

var _ lifecycle.CandlepinLinker = (*TaskLinker)(nil)

// NewTaskLinker creates a TaskLinker backed by store.
func NewTaskLinker(store *tasks.TaskStore, logger *slog.Logger) *TaskLinker {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskLinker{store: store, logger: logger}
}

// LinkEnvironment queues creation of the Candlepin environment for subject,
// superseding a queued deletion of the same environment.
func (l *TaskLinker) LinkEnvironment(ctx context.Context, subject lifecycle.CandlepinLinked) error {
	return l.enqueue(ctx, ActionCreateEnvironment, ActionDestroyEnvironment, subject)
}

// UnlinkEnvironment queues deletion of the Candlepin environment for subject,
// superseding a queued creation of the same environment.
func (l *TaskLinker) UnlinkEnvironment(ctx context.Context, subject lifecycle.CandlepinLinked) error {
	return l.enqueue(ctx, ActionDestroyEnvironment, ActionCreateEnvironment, subject)
}

// taskKey identifies the pending action on one Candlepin environment.
func taskKey(action, cpID string) string {
	return action + ":" + cpID
}

func (l *TaskLinker) enqueue(ctx context.Context, action, opposite string, subject lifecycle.CandlepinLinked) error {
	cpID := subject.CandlepinID()
	if cpID == "" {
		return fmt.Errorf("%s: subject has no candlepin id", action)
	}

	key := taskKey(action, cpID)
	task := &tasks.Task{
		Organization:  subject.CandlepinOwner(),
		Action:        action,
		ResourceLabel: subject.CandlepinName(),
		Input: tasks.Payload{
			inputOwner:       subject.CandlepinOwner(),
			inputID:          cpID,
			inputName:        subject.CandlepinName(),
			inputDescription: subject.CandlepinDescription(),
		},
		RequestedBy:    authz.ActorFromContext(ctx),
		IdempotencyKey: &key,
		SerialKey:      "candlepin.environment:" + cpID,
	}
	if a, ok := subject.(lifecycle.Auditable); ok {
		task.ResourceType = a.AuditResourceType()
		task.ResourceID = a.AuditResourceID()
	}

	queued, err := l.store.Enqueue(ctx, task, tasks.Superseding(taskKey(opposite, cpID)))
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", action, err)
	}
	l.logger.Debug("candlepin task queued", "action", action, "task", queued.ID, "cp_id", cpID)
	return nil
}

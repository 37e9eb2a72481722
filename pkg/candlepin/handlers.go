package candlepin

import (
	"context"
	"errors"
	"fmt"

	"github.com/katello/lifecycle/pkg/tasks"
)

// RegisterHandlers binds the Candlepin task actions to client.
func RegisterHandlers(registry *tasks.Registry, client *Client) {
	registry.Register(ActionCreateEnvironment, func(ctx context.Context, task *tasks.Task) (tasks.Payload, error) {
		owner, id := task.Input[inputOwner], task.Input[inputID]
		if owner == "" || id == "" {
			return nil, fmt.Errorf("%w: owner and id are required", tasks.ErrPermanent)
		}
		env := Environment{
			ID:          id,
			Name:        task.Input[inputName],
			Description: task.Input[inputDescription],
		}
		if err := client.CreateEnvironment(ctx, owner, env); err != nil {
			return nil, classify(err)
		}
		return tasks.Payload{inputID: id, inputOwner: owner}, nil
	})

	registry.Register(ActionDestroyEnvironment, func(ctx context.Context, task *tasks.Task) (tasks.Payload, error) {
		id := task.Input[inputID]
		if id == "" {
			return nil, fmt.Errorf("%w: id is required", tasks.ErrPermanent)
		}
		if err := client.DeleteEnvironment(ctx, id); err != nil {
			return nil, classify(err)
		}
		return tasks.Payload{inputID: id}, nil
	})
}

// classify marks client errors that retrying cannot fix as permanent.
func classify(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && !apiErr.Temporary() {
		return fmt.Errorf("%w: %w", tasks.ErrPermanent, err)
	}
	return err
}

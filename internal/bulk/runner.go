package bulk

import (
	"context"
	"fmt"
	"log/slog"

	"keyword_bot/internal/worker"
)

// Submitter queues units of work.
type Submitter interface {
	Submit(ctx context.Context, name string, fn worker.Func) (*worker.Future, error)
}

// Runner hands bulk operations to a worker pool.
type Runner struct {
	store Store
	pool  Submitter
	log   *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(store Store, pool Submitter, log *slog.Logger) *Runner {
	return &Runner{store: store, pool: pool, log: log}
}

// Submit queues op and returns once it is accepted. The future reports the
// outcome; callers may ignore it.
func (r *Runner) Submit(ctx context.Context, op Op) (*worker.Future, error) {
	f, err := r.pool.Submit(ctx, "bulk."+op.Name(), func(ctx context.Context) error {
		if err := op.Apply(ctx, r.store); err != nil {
			return fmt.Errorf("%s: %w", op.Name(), err)
		}
		r.log.Info("bulk operation applied", "op", op.Name())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", op.Name(), err)
	}
	return f, nil
}

// SetGroupActive records the group's flag and queues the update of its
// member keywords.
func (r *Runner) SetGroupActive(ctx context.Context, groupID int64, active bool) (*worker.Future, error) {
	if err := r.store.SetGroupActive(ctx, groupID, active); err != nil {
		return nil, fmt.Errorf("set group active: %w", err)
	}
	return r.Submit(ctx, SwitchGroup{GroupID: groupID, Active: active})
}

package dispatch

import (
	"context"
	"errors"
)

// Inline runs each job synchronously inside Enqueue. The CLI uses it to
// execute a scan in the foreground.
type Inline struct {
	Handler Handler
}

var _ Dispatcher = (*Inline)(nil)

// Enqueue runs the handler and returns its error.
func (d *Inline) Enqueue(ctx context.Context, job Job) error {
	if d.Handler == nil {
		return errors.New("inline dispatcher has no handler")
	}
	return d.Handler(ctx, job)
}

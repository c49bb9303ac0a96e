package executor

import (
	"context"
	"sync"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// Handle tracks one submitted query.
type Handle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	state      core.QueryStatus
	completion core.Completion
	once       sync.Once
}

func newHandle(id string, cancel context.CancelFunc) *Handle {
	return &Handle{
		id:     id,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  core.QueryStatusIdle,
	}
}

// ID returns the query id.
func (h *Handle) ID() string { return h.id }

// State returns the current lifecycle state.
func (h *Handle) State() core.QueryStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed once the query has finished and its sink was notified.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel asks the query to stop. It is a no-op once the query finished.
func (h *Handle) Cancel() { h.cancel() }

// Wait blocks until the query finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (core.Completion, error) {
	select {
	case <-h.done:
		return h.Completion(), nil
	case <-ctx.Done():
		return core.Completion{}, ctx.Err()
	}
}

// Completion returns the final notification. It is the zero value until
// Done is closed.
func (h *Handle) Completion() core.Completion {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.completion
}

func (h *Handle) setRunning() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == core.QueryStatusIdle {
		h.state = core.QueryStatusRunning
	}
}

// finish notifies sink and closes Done, exactly once.
func (h *Handle) finish(c core.Completion, sink core.Sink) {
	h.once.Do(func() {
		h.mu.Lock()
		h.completion = c
		h.state = c.Status()
		h.mu.Unlock()

		if sink != nil {
			sink.Notify(c)
		}
		h.cancel()
		close(h.done)
	})
}

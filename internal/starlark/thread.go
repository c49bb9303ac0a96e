package starlark

import (
	"context"
	"sync"

	"go.starlark.net/starlark"
)

const defaultPoolSize = 10

// ThreadPool recycles the Starlark threads conditions are evaluated on.
// Each thread is leased to one query at a time and bound to that query's
// context.
type ThreadPool struct {
	mu      sync.Mutex
	idle    []*starlark.Thread
	maxIdle int
	leased  int
}

// NewThreadPool creates a pool keeping up to maxIdle threads for reuse.
func NewThreadPool(maxIdle int) *ThreadPool {
	if maxIdle <= 0 {
		maxIdle = defaultPoolSize
	}
	return &ThreadPool{
		idle:    make([]*starlark.Thread, 0, maxIdle),
		maxIdle: maxIdle,
	}
}

// Acquire leases a thread named after the query; the name shows up in
// evaluation errors. Cancelling ctx interrupts whatever runs on the
// thread. The returned release func must be called once the query is done
// with the thread.
func (p *ThreadPool) Acquire(ctx context.Context, name string) (*starlark.Thread, func()) {
	p.mu.Lock()
	var thread *starlark.Thread
	if n := len(p.idle); n > 0 {
		thread = p.idle[n-1]
		p.idle = p.idle[:n-1]
		thread.Name = name
	} else {
		thread = &starlark.Thread{
			Name:  name,
			Print: func(*starlark.Thread, string) {},
		}
	}
	p.leased++
	p.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { thread.Cancel("query cancelled") })
	var once sync.Once
	return thread, func() {
		once.Do(func() {
			// Cancellation is sticky, so an interrupted thread is dropped.
			p.release(thread, stop())
		})
	}
}

func (p *ThreadPool) release(thread *starlark.Thread, reusable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leased--
	if reusable && len(p.idle) < p.maxIdle {
		thread.Name = ""
		p.idle = append(p.idle, thread)
	}
}

// Idle returns the number of threads waiting for reuse.
func (p *ThreadPool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Leased returns the number of threads currently held by queries.
func (p *ThreadPool) Leased() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leased
}

// Package session tracks the per-process state of the query flow: the last
// query (to pre-fill the next one), the counter used for default result
// names, the result names in use and the source tables with a query in
// flight.
package session

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// Tracker owns the session state. It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	last    core.LastQuery
	counter int
	used    map[string]struct{}
	busy    map[core.TableRef]string // source -> query id
	// resetting blocks commits while a bulk reset is pending.
	resetting bool
	logger    *slog.Logger
}

// NewTracker creates an empty tracker. A nil logger discards output.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{
		used:   make(map[string]struct{}),
		busy:   make(map[core.TableRef]string),
		logger: logger,
	}
}

// BeginAttempt bumps the name counter and returns the new value, used as
// the suffix of the suggested result name.
func (t *Tracker) BeginAttempt() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counter++
	return t.counter
}

// AbortAttempt undoes BeginAttempt after a cancelled or failed construction.
func (t *Tracker) AbortAttempt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counter > 0 {
		t.counter--
	}
}

// Commit records a successfully built query.
//
// It fails with ErrConcurrency when the source table already has a query in
// flight and with ErrNameCollision when the result name is taken. On success
// the source is marked busy, the result name is reserved and the query
// becomes the last query. Both checks and all updates happen under one lock.
func (t *Tracker) Commit(d core.QueryDescriptor) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.resetting {
		return core.Errorf(core.ErrConcurrency, "commit", d.Source.String(), "results are being cleared")
	}
	if id, busy := t.busy[d.Source]; busy {
		return core.Errorf(core.ErrConcurrency, "commit", d.Source.String(), "query %s in flight", id)
	}
	if _, taken := t.used[d.ResultName]; taken {
		return core.NewError(core.ErrNameCollision, "commit", d.ResultName, nil)
	}

	t.busy[d.Source] = d.ID
	t.used[d.ResultName] = struct{}{}
	t.last = core.LastQuery{Source: d.Source, Condition: d.Condition}

	t.logger.Debug("query committed",
		slog.String("query_id", d.ID),
		slog.String("source", d.Source.String()),
		slog.String("result", d.ResultName))
	return nil
}

// Finish clears the busy mark of a source table.
func (t *Tracker) Finish(src core.TableRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.busy, src)
}

// Release frees a result name, e.g. after its table was deleted.
func (t *Tracker) Release(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.used, name)
}

// ResetAll zeroes the counter and forgets every result name. Callers must
// have obtained the user's confirmation first.
func (t *Tracker) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counter = 0
	clear(t.used)
}

// BeginReset starts a bulk reset. It fails with ErrConcurrency when a query
// is in flight or another reset is pending. Until the reset ends, Commit
// fails with ErrConcurrency, so no name reserved in between can be wiped.
func (t *Tracker) BeginReset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resetting {
		return core.Errorf(core.ErrConcurrency, "reset", "", "reset already in progress")
	}
	if n := len(t.busy); n > 0 {
		return core.Errorf(core.ErrConcurrency, "reset", "", "%d queries in flight", n)
	}
	t.resetting = true
	return nil
}

// AbortReset ends a bulk reset without changing any state.
func (t *Tracker) AbortReset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetting = false
}

// FinishReset ends a bulk reset: the counter is zeroed and only the kept
// names stay reserved.
func (t *Tracker) FinishReset(kept []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetting = false
	t.counter = 0
	clear(t.used)
	for _, n := range kept {
		t.used[n] = struct{}{}
	}
}

// Restore seeds the tracker from persisted results, typically at startup.
func (t *Tracker) Restore(names []string, last core.LastQuery) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range names {
		t.used[n] = struct{}{}
	}
	if last.Condition != "" {
		t.last = last
	}
}

// LastQuery returns the most recently committed query.
func (t *Tracker) LastQuery() core.LastQuery {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// InitialCondition returns the last condition if it targeted src.
func (t *Tracker) InitialCondition(src core.TableRef) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last.Source == src {
		return t.last.Condition
	}
	return ""
}

// Counter returns the current name counter.
func (t *Tracker) Counter() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counter
}

// IsUsed reports whether a result name is taken.
func (t *Tracker) IsUsed(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.used[name]
	return ok
}

// UsedNames returns the taken result names, sorted.
func (t *Tracker) UsedNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.used))
	for n := range t.used {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// IsBusy reports whether src has a query in flight.
func (t *Tracker) IsBusy(src core.TableRef) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.busy[src]
	return ok
}

// Busy returns the sources with a query in flight.
func (t *Tracker) Busy() []core.TableRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	refs := make([]core.TableRef, 0, len(t.busy))
	for r := range t.busy {
		refs = append(refs, r)
	}
	slices.SortFunc(refs, func(a, b core.TableRef) int {
		if a.String() < b.String() {
			return -1
		}
		if a.String() > b.String() {
			return 1
		}
		return 0
	})
	return refs
}

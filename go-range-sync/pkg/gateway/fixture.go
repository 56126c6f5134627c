package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/aleka07/range_egizz/go-range-sync/pkg/model"
)

var _ Fetcher = (*Fixture)(nil)

// Fixture is an in-memory Fetcher seeded with targets. Tests use it to
// count calls, inject failures and hold fetches open; development mode
// serves it instead of a real gateway.
type Fixture struct {
	mu      sync.Mutex
	targets []model.Target
	err     error
	gate    chan struct{}
	calls   int
	fetched bool
	now     func() time.Time
}

// NewFixture returns a fixture serving the given targets.
func NewFixture(targets ...model.Target) *Fixture {
	return &Fixture{targets: cloneTargets(targets), now: time.Now}
}

// SetTargets replaces the served targets.
func (f *Fixture) SetTargets(targets ...model.Target) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = cloneTargets(targets)
}

// FailWith makes every following fetch return err. A nil err restores
// normal behaviour.
func (f *Fixture) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Hold blocks following fetches until the returned release func is called
// or the fetch context ends.
func (f *Fixture) Hold() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gate == gate {
				f.gate = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns how many fetches were issued.
func (f *Fixture) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FetchTargets serves the seeded targets with status resolved the same way
// the HTTP client resolves it.
func (f *Fixture) FetchTargets(ctx context.Context, force bool) (Snapshot, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Snapshot{}, f.err
	}

	now := f.now()
	targets := cloneTargets(f.targets)
	for i := range targets {
		targets[i].Status = model.ResolveStatus(targets[i], now)
	}
	cached := !force && f.fetched
	f.fetched = true
	return Snapshot{Targets: targets, Cached: cached}, nil
}

func cloneTargets(in []model.Target) []model.Target {
	out := make([]model.Target, len(in))
	for i, t := range in {
		out[i] = t.Clone()
	}
	return out
}

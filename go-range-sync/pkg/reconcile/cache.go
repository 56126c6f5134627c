// Package reconcile merges target snapshots from the telemetry gateway with
// room assignments from the application store into one cached view.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/aleka07/range_egizz/go-range-sync/pkg/gateway"
	"github.com/aleka07/range_egizz/go-range-sync/pkg/identity"
	"github.com/aleka07/range_egizz/go-range-sync/pkg/model"
	"github.com/aleka07/range_egizz/go-range-sync/pkg/persistence"
)

const (
	DefaultTTL          = 30 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

// ErrReconciliationFailed means the assignments could not be read, so no
// view (not even a degraded one) could be built.
var ErrReconciliationFailed = errors.New("reconciliation failed")

// Store is the part of the Room Assignment Store the cache needs.
type Store interface {
	persistence.RoomStore
	persistence.AssignmentStore
}

// slot is the single cache entry. A nil view means empty.
type slot struct {
	view  *View
	at    time.Time
	owner string
}

// Cache is the Assignment Reconciliation Cache. It serves the reconciled
// view for the identity in the request context, coalesces concurrent
// refreshes, and drops the cached view on every write it passes through.
type Cache struct {
	store        Store
	fetcher      gateway.Fetcher
	logger       *zap.SugaredLogger
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time

	mu sync.Mutex
	// generation is bumped by Invalidate. A refresh only writes the slot if
	// no invalidation happened since it started.
	generation uint64
	slot       slot

	flights singleflight.Group

	// onJoin is called once a caller is attached to a flight. Tests only.
	onJoin func()
}

// Option customises a Cache.
type Option func(*Cache)

// WithTTL sets how long a cached view is served without refetching.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithFetchTimeout bounds the gateway read inside a refresh.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) { c.fetchTimeout = d }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Cache) { c.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache over the given store and gateway fetcher.
func New(store Store, fetcher gateway.Fetcher, opts ...Option) *Cache {
	c := &Cache{
		store:        store,
		fetcher:      fetcher,
		logger:       zap.NewNop().Sugar(),
		ttl:          DefaultTTL,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAllTargetsWithAssignments returns the reconciled view for the identity
// in ctx. A fresh cached view is returned without network calls unless
// forceRefresh is set. Concurrent callers share one fetch.
//
// When the gateway can't be read the result is a degraded view built from
// the assignments alone; it is returned but not cached. The call fails with
// ErrReconciliationFailed only if the assignments can't be read either.
func (c *Cache) GetAllTargetsWithAssignments(ctx context.Context, forceRefresh bool) (View, error) {
	owner := identity.FromContext(ctx)

	c.mu.Lock()
	if !forceRefresh {
		if view, ok := c.freshLocked(owner); ok {
			c.mu.Unlock()
			cacheHits.Inc()
			c.logger.Debugf("Serving cached view for %q", owner)
			return view, nil
		}
	}
	gen := c.generation
	c.mu.Unlock()
	cacheMisses.Inc()

	// The fetch outlives any single caller, so it must not inherit their
	// cancellation. The identity value is kept.
	fetchCtx := context.WithoutCancel(ctx)
	key := owner + "#" + strconv.FormatUint(gen, 10)
	ch := c.flights.DoChan(key, func() (interface{}, error) {
		return c.refresh(fetchCtx, owner, gen)
	})
	if c.onJoin != nil {
		c.onJoin()
	}

	select {
	case res := <-ch:
		if res.Shared {
			sharedFetches.Inc()
		}
		if res.Err != nil {
			return View{}, res.Err
		}
		return res.Val.(View), nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// freshLocked returns the slot's view if it belongs to owner and is younger
// than the TTL. c.mu must be held.
func (c *Cache) freshLocked(owner string) (View, bool) {
	s := c.slot
	if s.view == nil || s.owner != owner {
		return View{}, false
	}
	if c.now().Sub(s.at) >= c.ttl {
		return View{}, false
	}
	return *s.view, true
}

// refresh reads both sources concurrently and merges them.
func (c *Cache) refresh(ctx context.Context, owner string, gen uint64) (View, error) {
	start := time.Now()

	var (
		wg          sync.WaitGroup
		assignments []model.Assignment
		assignErr   error
		snapshot    gateway.Snapshot
		fetchErr    error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		assignments, assignErr = c.store.ListAssignments(ctx)
	}()
	go func() {
		defer wg.Done()
		fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
		snapshot, fetchErr = c.fetcher.FetchTargets(fctx, true)
	}()
	wg.Wait()
	fetchDuration.Observe(time.Since(start).Seconds())

	if assignErr != nil {
		reconcileFailures.Inc()
		if fetchErr != nil {
			return View{}, fmt.Errorf("%w: %w", ErrReconciliationFailed, errors.Join(assignErr, fetchErr))
		}
		return View{}, fmt.Errorf("%w: %w", ErrReconciliationFailed, assignErr)
	}

	if fetchErr != nil {
		// Gateway errors and timeouts both mean "no fresh data".
		degradedViews.Inc()
		c.logger.Warnf("Target fetch failed, serving degraded view for %q: %v", owner, fetchErr)
		return degradedView(assignments, c.now()), nil
	}

	rooms := make(map[string]model.Assignment, len(assignments))
	for _, a := range assignments {
		rooms[a.TargetID] = a
	}

	c.pruneStale(ctx, owner, snapshot.Targets, assignments)

	view := View{
		Targets: merge(snapshot.Targets, rooms),
		BuiltAt: c.now(),
	}

	c.mu.Lock()
	if c.generation == gen {
		c.slot = slot{view: &view, at: view.BuiltAt, owner: owner}
	}
	c.mu.Unlock()

	return view, nil
}

// pruneStale removes assignments whose target the gateway no longer
// reports. Failures are logged only; the current view is correct either way.
func (c *Cache) pruneStale(ctx context.Context, owner string, targets []model.Target, assignments []model.Assignment) {
	known := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		known[t.ID] = struct{}{}
	}
	var stale []string
	for _, a := range assignments {
		if _, ok := known[a.TargetID]; !ok {
			stale = append(stale, a.TargetID)
		}
	}
	if len(stale) == 0 {
		return
	}

	if err := c.store.Unassign(ctx, stale); err != nil {
		c.logger.Warnf("Failed to prune %d stale assignments for %q: %v", len(stale), owner, err)
		return
	}
	prunedAssignments.Add(float64(len(stale)))
	c.logger.Infof("Pruned stale assignments for %q: %v", owner, stale)
}

// Invalidate drops the cached view so the next read refetches, and detaches
// refreshes already in flight from the slot.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.generation++
	c.slot.view = nil
	c.mu.Unlock()
	invalidations.Inc()
}

// Peek returns the cached view for the identity in ctx, ignoring its age.
// It never performs network calls.
func (c *Cache) Peek(ctx context.Context) (View, bool) {
	owner := identity.FromContext(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slot.view == nil || c.slot.owner != owner {
		return View{}, false
	}
	return *c.slot.view, true
}

// --- write pass-throughs ---

// ListRooms lists the rooms of the identity in ctx.
func (c *Cache) ListRooms(ctx context.Context) ([]*model.Room, error) {
	return c.store.ListRooms(ctx)
}

// CreateRoom creates a room and invalidates the cache.
func (c *Cache) CreateRoom(ctx context.Context, in model.RoomInput) (*model.Room, error) {
	room, err := c.store.CreateRoom(ctx, in)
	if err != nil {
		return nil, err
	}
	c.Invalidate()
	return room, nil
}

// UpdateRoom updates a room and invalidates the cache.
func (c *Cache) UpdateRoom(ctx context.Context, id string, patch model.RoomPatch) (*model.Room, error) {
	room, err := c.store.UpdateRoom(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	c.Invalidate()
	return room, nil
}

// DeleteRoom deletes a room with its assignments and invalidates the cache.
// The store removes the room and its rows in one transaction, so a failed
// delete changed nothing and the slot is kept.
func (c *Cache) DeleteRoom(ctx context.Context, id string) error {
	if err := c.store.DeleteRoom(ctx, id); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

// Assign moves the targets into roomID and invalidates the cache. The store
// commits target by target, so the cache is invalidated even when Assign
// fails part way. Target names are resolved without calling the gateway.
func (c *Cache) Assign(ctx context.Context, targetIDs []string, roomID string) error {
	defer c.Invalidate()
	return c.store.Assign(ctx, c.targetRefs(ctx, targetIDs), roomID)
}

// Unassign removes the targets from their rooms and invalidates the cache.
// It is a single delete in the store, so a failure keeps the slot.
func (c *Cache) Unassign(ctx context.Context, targetIDs []string) error {
	if err := c.store.Unassign(ctx, targetIDs); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

// AssignOptimistic renders the cached view, patched with the new assignment,
// through preview before the write. A cold cache has nothing to patch and
// preview is not called. The result is always a forced refresh taken after
// the write, whether it succeeded or not; the patched copy never reaches the
// cache. The write error, if any, takes precedence over the refresh error.
func (c *Cache) AssignOptimistic(ctx context.Context, targetIDs []string, roomID string, preview func(View)) (View, error) {
	if base, ok := c.Peek(ctx); ok && preview != nil {
		preview(base.WithAssignment(targetIDs, roomID))
	}

	writeErr := c.Assign(ctx, targetIDs, roomID)
	view, err := c.GetAllTargetsWithAssignments(ctx, true)
	if writeErr != nil {
		return view, writeErr
	}
	return view, err
}

// targetRefs pairs ids with known display names: from the cached view when
// there is one, otherwise from the names stored with existing assignments.
// Unknown names stay empty.
func (c *Cache) targetRefs(ctx context.Context, targetIDs []string) []model.TargetRef {
	names := make(map[string]string, len(targetIDs))
	if view, ok := c.Peek(ctx); ok {
		for _, t := range view.Targets {
			names[t.ID] = t.Name
		}
	} else if rows, err := c.store.ListAssignments(ctx); err == nil {
		for _, a := range rows {
			names[a.TargetID] = a.TargetName
		}
	} else {
		c.logger.Debugf("No target names available for %q: %v", identity.FromContext(ctx), err)
	}

	refs := make([]model.TargetRef, 0, len(targetIDs))
	for _, id := range targetIDs {
		refs = append(refs, model.TargetRef{ID: id, Name: names[id]})
	}
	return refs
}

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

type trackKey struct {
	owner inventory.OwnerID
	name  string
}

type tracked struct {
	container   *inventory.Container
	unsubscribe func()
	dirty       bool
}

// Tracker watches container events and remembers which containers changed
// since their last save. Flushing writes only those.
//
// Event delivery happens inside the mutating engine call, so the tracker
// never touches a container concurrently with its owner. Collect must be
// called under the same serialization that guards mutations.
type Tracker struct {
	store  Store
	logger *zap.Logger

	mu      sync.Mutex
	entries map[trackKey]*tracked
}

// NewTracker creates a tracker saving into s.
func NewTracker(s Store, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:   s,
		logger:  logger.Named("tracker"),
		entries: make(map[trackKey]*tracked),
	}
}

// Track starts watching c. A container that was just created, rather than
// restored, should be tracked dirty so it gets its first save.
func (t *Tracker) Track(owner inventory.OwnerID, c *inventory.Container, dirty bool) {
	key := trackKey{owner: owner, name: c.Name()}
	e := &tracked{container: c, dirty: dirty}
	e.unsubscribe = c.Subscribe(func(inventory.Event) {
		t.mu.Lock()
		e.dirty = true
		t.mu.Unlock()
	})

	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.entries[key]; ok {
		old.unsubscribe()
	}
	t.entries[key] = e
}

// Forget stops watching a container. Pending changes are dropped.
func (t *Tracker) Forget(owner inventory.OwnerID, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := trackKey{owner: owner, name: name}
	if e, ok := t.entries[key]; ok {
		e.unsubscribe()
		delete(t.entries, key)
	}
}

// ForgetOwner forgets every container of owner.
func (t *Tracker) ForgetOwner(owner inventory.OwnerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, e := range t.entries {
		if key.owner == owner {
			e.unsubscribe()
			delete(t.entries, key)
		}
	}
}

// IsDirty reports whether the container changed since its last collection.
func (t *Tracker) IsDirty(owner inventory.OwnerID, name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[trackKey{owner: owner, name: name}]
	return ok && e.dirty
}

// DirtyOwners lists owners with at least one dirty container, sorted.
func (t *Tracker) DirtyOwners() []inventory.OwnerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := make(map[inventory.OwnerID]bool)
	var out []inventory.OwnerID
	for key, e := range t.entries {
		if e.dirty && !seen[key.owner] {
			seen[key.owner] = true
			out = append(out, key.owner)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Collect serializes the dirty containers of owner and clears their flags.
func (t *Tracker) Collect(owner inventory.OwnerID) []inventory.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	var snaps []inventory.Snapshot
	for key, e := range t.entries {
		if key.owner != owner || !e.dirty {
			continue
		}
		snaps = append(snaps, inventory.Serialize(e.container))
		e.dirty = false
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })
	return snaps
}

// Persist saves snapshots produced by Collect and returns how many were
// written. A container whose save fails is marked dirty again so the next
// flush retries it.
func (t *Tracker) Persist(ctx context.Context, owner inventory.OwnerID, snaps []inventory.Snapshot) (int, error) {
	var (
		errs  error
		saved int
	)
	for _, snap := range snaps {
		if err := t.store.Save(ctx, owner, snap); err != nil {
			t.logger.Warn("snapshot save failed",
				zap.String("owner", string(owner)),
				zap.String("container", snap.Name),
				zap.Error(err))
			t.mu.Lock()
			if e, ok := t.entries[trackKey{owner: owner, name: snap.Name}]; ok {
				e.dirty = true
			}
			t.mu.Unlock()
			errs = errors.CombineErrors(errs, err)
			continue
		}
		saved++
		t.logger.Debug("snapshot saved",
			zap.String("owner", string(owner)),
			zap.String("container", snap.Name),
			zap.Int("items", len(snap.Items)))
	}
	return saved, errs
}

// Flush collects and persists every dirty container. Use it only when no
// other goroutine mutates tracked containers; a server with concurrent
// owners flushes per owner under its own locking.
func (t *Tracker) Flush(ctx context.Context) error {
	var errs error
	for _, owner := range t.DirtyOwners() {
		_, err := t.Persist(ctx, owner, t.Collect(owner))
		errs = errors.CombineErrors(errs, err)
	}
	return errs
}

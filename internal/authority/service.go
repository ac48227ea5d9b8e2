// Package authority is the single writer of inventory state. Every mutation
// reaching the engine goes through a Service, which serializes work per
// owner and persists changed containers.
package authority

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gravitas-games/gridstash/internal/config"
	"github.com/gravitas-games/gridstash/internal/metrics"
	"github.com/gravitas-games/gridstash/internal/store"
	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// Policy decides what happens to the contents of a removed container.
type Policy int

const (
	// DropPolicy hands every item back to the caller, typically to drop it
	// in the world.
	DropPolicy Policy = iota
	// MergePolicy auto-places items into the owner's remaining containers
	// and hands back only what did not fit.
	MergePolicy
)

type ownerState struct {
	mu     sync.Mutex
	reg    *inventory.ContainerRegistry
	closed bool

	// saveMu is held from Collect until Persist returns, so snapshots of
	// one owner reach the store in the order they were taken. Acquire it
	// before mu.
	saveMu sync.Mutex
}

// Service owns the loaded container registries.
type Service struct {
	authority bool
	catalog   inventory.Catalog
	store     store.Store
	tracker   *store.Tracker
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu     sync.RWMutex
	owners map[inventory.OwnerID]*ownerState
}

// Option configures a Service.
type Option func(*Service)

// WithStore persists containers into s. Without a store the service keeps
// state in memory only.
func WithStore(s store.Store) Option {
	return func(svc *Service) {
		svc.store = s
	}
}

// WithMetrics records operation metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(svc *Service) {
		svc.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// AsReplica makes the service non-authoritative: it loads state but refuses
// every mutation with ErrNotAuthority.
func AsReplica() Option {
	return func(svc *Service) {
		svc.authority = false
	}
}

// New creates a Service resolving item definitions through catalog.
func New(catalog inventory.Catalog, opts ...Option) *Service {
	s := &Service{
		authority: true,
		catalog:   catalog,
		logger:    zap.NewNop(),
		owners:    make(map[inventory.OwnerID]*ownerState),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("authority")
	if s.store != nil && s.authority {
		s.tracker = store.NewTracker(s.store, s.logger)
	}
	return s
}

// IsAuthority reports whether this node may mutate inventories.
func (s *Service) IsAuthority() bool { return s.authority }

// OpenOwner loads owner's containers. Saved snapshots are restored; presets
// without a snapshot are created empty. Saved containers not named by any
// preset are restored after the presets. Opening an open owner is a no-op.
func (s *Service) OpenOwner(ctx context.Context, owner inventory.OwnerID, presets []config.ContainerPreset) error {
	s.mu.RLock()
	_, open := s.owners[owner]
	s.mu.RUnlock()
	if open {
		return nil
	}

	saved := make(map[string]inventory.Snapshot)
	if s.store != nil {
		snaps, err := s.store.LoadAll(ctx, owner)
		if err != nil {
			return errors.Wrapf(err, "load inventory of %s", owner)
		}
		for _, snap := range snaps {
			saved[snap.Name] = snap
		}
	}

	reg := inventory.NewContainerRegistry(owner)
	type fresh struct {
		c     *inventory.Container
		dirty bool
	}
	var created []fresh
	restore := func(snap inventory.Snapshot) error {
		c, issues, err := inventory.Deserialize(snap, s.catalog)
		if err != nil {
			return errors.Wrapf(err, "restore %s/%s", owner, snap.Name)
		}
		for _, issue := range issues {
			s.logger.Warn("dropped snapshot entry",
				zap.String("owner", string(owner)),
				zap.String("container", snap.Name),
				zap.Int("index", issue.Index),
				zap.String("definition_id", string(issue.DefinitionID)),
				zap.Error(issue.Err))
		}
		if err := reg.Attach(c); err != nil {
			return err
		}
		created = append(created, fresh{c: c, dirty: len(issues) > 0})
		return nil
	}

	for _, p := range presets {
		if snap, ok := saved[p.Name]; ok {
			delete(saved, p.Name)
			if err := restore(snap); err != nil {
				return err
			}
			continue
		}
		c, err := reg.Add(p.Name, p.Width, p.Height, inventory.WithPurpose(p.Purpose))
		if err != nil {
			return errors.Wrapf(err, "create %s/%s", owner, p.Name)
		}
		created = append(created, fresh{c: c, dirty: true})
	}
	extra := make([]string, 0, len(saved))
	for name := range saved {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		if err := restore(saved[name]); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, open := s.owners[owner]; open {
		return nil
	}
	s.owners[owner] = &ownerState{reg: reg}
	if s.tracker != nil {
		for _, f := range created {
			s.tracker.Track(owner, f.c, f.dirty)
		}
	}
	if s.metrics != nil {
		s.metrics.OpenOwners.Inc()
	}
	s.logger.Debug("owner opened", zap.String("owner", string(owner)), zap.Int("containers", reg.Len()))
	return nil
}

// CloseOwner saves owner's pending changes and unloads it.
func (s *Service) CloseOwner(ctx context.Context, owner inventory.OwnerID) error {
	s.mu.Lock()
	st, ok := s.owners[owner]
	if ok {
		delete(s.owners, owner)
	}
	s.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrOwnerNotOpen, "%s", owner)
	}

	st.saveMu.Lock()
	defer st.saveMu.Unlock()
	st.mu.Lock()
	st.closed = true
	var snaps []inventory.Snapshot
	if s.tracker != nil {
		snaps = s.tracker.Collect(owner)
		s.tracker.ForgetOwner(owner)
	}
	st.mu.Unlock()

	if s.metrics != nil {
		s.metrics.OpenOwners.Dec()
	}
	if len(snaps) == 0 {
		return nil
	}
	saved, err := s.tracker.Persist(ctx, owner, snaps)
	s.metrics.ObserveFlush(saved, err)
	return err
}

// Owners lists open owners, sorted.
func (s *Service) Owners() []inventory.OwnerID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]inventory.OwnerID, 0, len(s.owners))
	for o := range s.owners {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// State returns a snapshot of each of owner's containers in registration
// order. Replicas answer too.
func (s *Service) State(owner inventory.OwnerID) ([]inventory.Snapshot, error) {
	st, unlock, err := s.lockOwner(owner)
	if err != nil {
		return nil, err
	}
	defer unlock()
	out := make([]inventory.Snapshot, 0, st.reg.Len())
	for _, c := range st.reg.Containers() {
		out = append(out, inventory.Serialize(c))
	}
	return out, nil
}

// AddContainer creates a container for an open owner, for example when a
// piece of clothing with pockets is equipped.
func (s *Service) AddContainer(owner inventory.OwnerID, p config.ContainerPreset) error {
	if !s.authority {
		return ErrNotAuthority
	}
	st, unlock, err := s.lockOwner(owner)
	if err != nil {
		return err
	}
	defer unlock()
	c, err := st.reg.Add(p.Name, p.Width, p.Height, inventory.WithPurpose(p.Purpose))
	if err != nil {
		return err
	}
	if s.tracker != nil {
		s.tracker.Track(owner, c, true)
	}
	return nil
}

// RemoveContainer detaches a container and applies policy to its contents.
// The returned items are detached from every container and belong to the
// caller.
func (s *Service) RemoveContainer(ctx context.Context, owner inventory.OwnerID, name string, policy Policy) ([]*inventory.PlacedItem, error) {
	if !s.authority {
		return nil, ErrNotAuthority
	}
	// a flush in flight must not save the container after it is deleted
	st, err := s.state(owner)
	if err != nil {
		return nil, err
	}
	st.saveMu.Lock()
	defer st.saveMu.Unlock()
	st.mu.Lock()
	unlock := st.mu.Unlock
	if st.closed {
		unlock()
		return nil, errors.Wrapf(ErrOwnerNotOpen, "%s", owner)
	}
	items, err := st.reg.Remove(name)
	if err != nil {
		unlock()
		return nil, err
	}
	if s.tracker != nil {
		s.tracker.Forget(owner, name)
	}

	leftovers := items
	if policy == MergePolicy {
		leftovers = nil
		for _, it := range items {
			if !s.autoPlaceAny(st.reg, it.Instance()) {
				leftovers = append(leftovers, it)
			}
		}
	}
	unlock()

	s.logger.Info("container removed",
		zap.String("owner", string(owner)),
		zap.String("container", name),
		zap.Int("items", len(items)),
		zap.Int("leftovers", len(leftovers)))
	if s.store != nil {
		if err := s.store.Delete(ctx, owner, name); err != nil {
			return leftovers, errors.Wrapf(err, "delete snapshot %s/%s", owner, name)
		}
	}
	return leftovers, nil
}

func (s *Service) autoPlaceAny(reg *inventory.ContainerRegistry, inst *inventory.ItemInstance) bool {
	for _, c := range reg.Containers() {
		if _, err := c.TryAutoPlace(inst); err == nil {
			return true
		}
	}
	return false
}

// HandleMove validates and commits a move. Cross-owner moves hold both
// owners' locks for the whole operation.
func (s *Service) HandleMove(ctx context.Context, req MoveRequest) Response {
	started := time.Now()
	req.RequestID = requestID(req.RequestID)
	if req.ToOwner == "" {
		req.ToOwner = req.FromOwner
	}

	var from, to *Placement
	err := s.mutate(ctx, func() error {
		fromSt, toSt, unlock, err := s.lockPair(req.FromOwner, req.ToOwner)
		if err != nil {
			return err
		}
		defer unlock()

		src, err := container(fromSt.reg, req.FromContainer)
		if err != nil {
			return err
		}
		dst, err := container(toSt.reg, req.ToContainer)
		if err != nil {
			return err
		}
		if it, ok := src.ItemAt(inventory.Point{X: req.FromX, Y: req.FromY}); ok {
			from = placementOf(req.FromOwner, req.FromContainer, it)
		}
		toPos := inventory.Point{X: req.ToX, Y: req.ToY}
		if err := inventory.MoveItem(src, inventory.Point{X: req.FromX, Y: req.FromY}, dst, toPos, req.Rotation); err != nil {
			return err
		}
		it, _ := dst.ItemAt(toPos)
		to = placementOf(req.ToOwner, req.ToContainer, it)
		return nil
	})

	resp := s.respond("move", req.RequestID, started, err,
		zap.String("from_owner", string(req.FromOwner)),
		zap.String("from_container", req.FromContainer),
		zap.String("to_owner", string(req.ToOwner)),
		zap.String("to_container", req.ToContainer))
	if resp.OK {
		resp.Placement, resp.From = to, from
	}
	return resp
}

// HandlePlace creates a new instance and places it.
func (s *Service) HandlePlace(ctx context.Context, req PlaceRequest) Response {
	started := time.Now()
	req.RequestID = requestID(req.RequestID)

	var placed *Placement
	err := s.mutate(ctx, func() error {
		def, ok := s.catalog.LookupDefinition(req.DefinitionID)
		if !ok {
			return errors.Wrapf(inventory.ErrUnknownItemDefinition, "%s", req.DefinitionID)
		}
		st, unlock, err := s.lockOwner(req.Owner)
		if err != nil {
			return err
		}
		defer unlock()

		inst := inventory.NewInstance(def)
		for k, v := range req.Metadata {
			inst.Set(k, v)
		}

		if req.Auto && req.Container == "" {
			for _, c := range st.reg.Containers() {
				if it, err := c.TryAutoPlace(inst); err == nil {
					placed = placementOf(req.Owner, c.Name(), it)
					return nil
				}
			}
			return errors.Wrapf(inventory.ErrInsufficientSpace, "owner %s: no room for %s", req.Owner, def.ID)
		}

		c, err := container(st.reg, req.Container)
		if err != nil {
			return err
		}
		var it *inventory.PlacedItem
		if req.Auto {
			it, err = c.TryAutoPlace(inst)
		} else {
			it, err = c.PlaceAt(inst, inventory.Point{X: req.X, Y: req.Y}, req.Rotation)
		}
		if err != nil {
			return err
		}
		placed = placementOf(req.Owner, req.Container, it)
		return nil
	})

	resp := s.respond("place", req.RequestID, started, err,
		zap.String("owner", string(req.Owner)),
		zap.String("container", req.Container),
		zap.String("definition_id", string(req.DefinitionID)))
	resp.Placement = placed
	return resp
}

// HandleRemove takes an item out of a container. The response carries the
// placement the item had.
func (s *Service) HandleRemove(ctx context.Context, req RemoveRequest) Response {
	started := time.Now()
	req.RequestID = requestID(req.RequestID)

	var removed *Placement
	err := s.mutate(ctx, func() error {
		st, unlock, err := s.lockOwner(req.Owner)
		if err != nil {
			return err
		}
		defer unlock()
		c, err := container(st.reg, req.Container)
		if err != nil {
			return err
		}
		p := inventory.Point{X: req.X, Y: req.Y}
		it, ok := c.RemoveAt(p)
		if !ok {
			return errors.Wrapf(inventory.ErrNothingToMove, "container %q: cell %s is empty", req.Container, p)
		}
		removed = placementOf(req.Owner, req.Container, it)
		return nil
	})

	resp := s.respond("remove", req.RequestID, started, err,
		zap.String("owner", string(req.Owner)),
		zap.String("container", req.Container))
	resp.Placement = removed
	return resp
}

// Flush saves every changed container. Each owner is locked only while its
// containers are serialized; saves of one owner never overlap.
func (s *Service) Flush(ctx context.Context) error {
	if s.tracker == nil {
		return nil
	}
	var errs error
	for _, owner := range s.tracker.DirtyOwners() {
		errs = errors.CombineErrors(errs, s.flushOwner(ctx, owner))
	}
	return errs
}

func (s *Service) flushOwner(ctx context.Context, owner inventory.OwnerID) error {
	st, err := s.state(owner)
	if err != nil {
		return nil // closed meanwhile; CloseOwner saved it
	}
	st.saveMu.Lock()
	defer st.saveMu.Unlock()

	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return nil
	}
	snaps := s.tracker.Collect(owner)
	st.mu.Unlock()

	saved, err := s.tracker.Persist(ctx, owner, snaps)
	s.metrics.ObserveFlush(saved, err)
	return err
}

// Run flushes every interval until ctx is done, then flushes once more with
// a fresh deadline.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.Flush(final); err != nil {
				s.logger.Error("final flush failed", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				s.logger.Warn("flush failed", zap.Error(err))
			}
		}
	}
}

func (s *Service) mutate(ctx context.Context, fn func() error) error {
	if !s.authority {
		return ErrNotAuthority
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}

func (s *Service) respond(op, id string, started time.Time, err error, fields ...zap.Field) Response {
	code := CodeOf(err)
	s.metrics.ObserveOperation(op, string(code), started)
	resp := Response{RequestID: id, OK: err == nil, Code: code}
	if err == nil {
		return resp
	}
	resp.Message = err.Error()
	fields = append(fields, zap.String("request_id", id), zap.String("code", string(code)), zap.Error(err))
	if code == CodeInternal {
		s.logger.Error(op+" failed", fields...)
	} else {
		s.logger.Warn(op+" rejected", fields...)
	}
	return resp
}

func (s *Service) state(owner inventory.OwnerID) (*ownerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.owners[owner]
	if !ok {
		return nil, errors.Wrapf(ErrOwnerNotOpen, "%s", owner)
	}
	return st, nil
}

func (s *Service) lockOwner(owner inventory.OwnerID) (*ownerState, func(), error) {
	st, err := s.state(owner)
	if err != nil {
		return nil, nil, err
	}
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return nil, nil, errors.Wrapf(ErrOwnerNotOpen, "%s", owner)
	}
	return st, st.mu.Unlock, nil
}

// lockPair locks two owners in id order so concurrent opposite moves cannot
// deadlock.
func (s *Service) lockPair(a, b inventory.OwnerID) (*ownerState, *ownerState, func(), error) {
	if a == b {
		st, unlock, err := s.lockOwner(a)
		return st, st, unlock, err
	}
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	s1, unlock1, err := s.lockOwner(first)
	if err != nil {
		return nil, nil, nil, err
	}
	s2, unlock2, err := s.lockOwner(second)
	if err != nil {
		unlock1()
		return nil, nil, nil, err
	}
	unlock := func() {
		unlock2()
		unlock1()
	}
	if first == a {
		return s1, s2, unlock, nil
	}
	return s2, s1, unlock, nil
}

func container(reg *inventory.ContainerRegistry, name string) (*inventory.Container, error) {
	c, ok := reg.Get(name)
	if !ok {
		return nil, errors.Wrapf(inventory.ErrNotFound, "owner %s: container %q", reg.Owner(), name)
	}
	return c, nil
}

func requestID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

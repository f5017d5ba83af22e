package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is a read-through, write-through cache of devices over a
// Repository.
//
// Consistency rules:
//   - Get serves from the cache and falls back to the store on a miss.
//   - List always reads the store and refreshes the cache from it.
//   - Add, Update, Delete and RecordCheck write the store, then the cache.
//
// Event history exists only in the cache. Refreshing from the store keeps
// the history of devices that are already cached.
//
// All public methods are thread-safe and return deep copies.
type Registry struct {
	repo    Repository
	cache   map[string]*Device
	cacheMu sync.RWMutex
	logger  Logger

	// gen is bumped under cacheMu by every Delete and List. A read-through
	// load only populates the cache if gen did not move while it ran.
	gen uint64
}

// NewRegistry creates a new device registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Get returns a device by ID from the cache, loading it from the store on
// a miss. Returns ErrDeviceNotFound if neither has it.
//
// A load that overlaps a Delete or List is returned but not cached, so a
// concurrent Delete cannot be undone by a stale read.
func (r *Registry) Get(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	if d, ok := r.cache[id]; ok {
		cpy := d.DeepCopy()
		r.cacheMu.RUnlock()
		return cpy, nil
	}
	gen := r.gen
	r.cacheMu.RUnlock()

	loaded, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Another caller may have populated the entry meanwhile; keep theirs.
	if d, ok := r.cache[id]; ok {
		return d.DeepCopy(), nil
	}
	if r.gen != gen {
		return loaded.DeepCopy(), nil
	}
	r.cache[id] = loaded
	return loaded.DeepCopy(), nil
}

// List loads every device from the store, refreshes the cache, and returns
// the full set in store order.
func (r *Registry) List(ctx context.Context) ([]Device, error) {
	stored, err := r.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	fresh := make(map[string]*Device, len(stored))
	out := make([]Device, 0, len(stored))
	for i := range stored {
		d := stored[i].DeepCopy()
		if cached, ok := r.cache[d.ID]; ok {
			mergeRuntimeState(d, cached)
		}
		fresh[d.ID] = d
		out = append(out, *d.DeepCopy())
	}
	r.cache = fresh
	r.gen++

	r.logger.Debug("device cache refreshed", "count", len(out))
	return out, nil
}

// Add persists a new device and caches it. The device must carry an ID.
// Returns ErrDeviceExists on an ID collision.
func (r *Registry) Add(ctx context.Context, d *Device) (*Device, error) {
	if err := ValidateDevice(d); err != nil {
		return nil, err
	}

	rec := d.DeepCopy()
	rec.Status = StatusUnknown
	rec.LastCheck = nil
	rec.History = History{}

	if err := r.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[rec.ID] = rec
	out := rec.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device added", "device_id", rec.ID, "address", rec.Address)
	return out, nil
}

// Update merges u into the device, persists the metadata, and refreshes the
// cache. Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) Update(ctx context.Context, id string, u Update) (*Device, error) {
	if err := ValidateUpdate(u); err != nil {
		return nil, err
	}
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	cached, ok := r.cache[id]
	if !ok {
		// Evicted by a concurrent List or Delete.
		return nil, ErrDeviceNotFound
	}

	next := cached.DeepCopy()
	if !u.apply(next) {
		return next, nil
	}
	if err := r.repo.Update(ctx, next); err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			delete(r.cache, id)
		}
		return nil, err
	}

	cached.Address = next.Address
	cached.Name = next.Name
	cached.Description = next.Description
	cached.UpdatedAt = next.UpdatedAt

	r.logger.Info("device updated", "device_id", id, "address", cached.Address)
	return cached.DeepCopy(), nil
}

// Delete removes the device from the store and the cache.
// Returns ErrDeviceNotFound if the store has no such device.
//
// Delete does not touch monitoring; stop the device's session first.
func (r *Registry) Delete(ctx context.Context, id string) error {
	err := r.repo.Delete(ctx, id)

	if err == nil || errors.Is(err, ErrDeviceNotFound) {
		r.cacheMu.Lock()
		delete(r.cache, id)
		r.gen++
		r.cacheMu.Unlock()
	}
	if err != nil {
		return err
	}

	r.logger.Info("device deleted", "device_id", id)
	return nil
}

// RecordCheck applies one check outcome to a device: it runs Transition
// against the cached status, sets status and last check together, appends
// the event, and persists status and last check. address is the address
// that was checked, and the event names it even if the device was edited
// during the check. An empty address uses the device's current one.
//
// The cache is updated even when the store write fails; in that case the
// returned error wraps ErrStore and the event is still returned.
func (r *Registry) RecordCheck(ctx context.Context, id, address string, reachable bool, now time.Time) (Event, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return Event{}, err
	}

	r.cacheMu.Lock()
	cached, ok := r.cache[id]
	if !ok {
		r.cacheMu.Unlock()
		return Event{}, ErrDeviceNotFound
	}
	if address == "" {
		address = cached.Address
	}
	status, event := Transition(cached.Status, reachable, address, now)
	checked := now
	cached.Status = status
	cached.LastCheck = &checked
	cached.History.Append(event)
	r.cacheMu.Unlock()

	if err := r.repo.UpdateStatus(ctx, id, status, now); err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return event, err
		}
		return event, fmt.Errorf("persisting check for %s: %w", id, err)
	}
	return event, nil
}

// History returns the device's events with its current status and last
// check, read under one lock.
func (r *Registry) History(ctx context.Context, id string) (Snapshot, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return Snapshot{}, err
	}

	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	d, ok := r.cache[id]
	if !ok {
		return Snapshot{}, ErrDeviceNotFound
	}
	snap := Snapshot{
		Events: d.History.Events(),
		Status: d.Status,
	}
	if d.LastCheck != nil {
		t := *d.LastCheck
		snap.LastCheck = &t
	}
	return snap, nil
}

// IDs returns the IDs currently in the cache.
func (r *Registry) IDs() []string {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	ids := make([]string, 0, len(r.cache))
	for id := range r.cache {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of cached devices.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats summarises the cached devices.
type Stats struct {
	Total    int
	ByStatus map[Status]int
}

// Stats counts cached devices by status.
func (r *Registry) Stats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	st := Stats{Total: len(r.cache), ByStatus: make(map[Status]int, 3)}
	for _, d := range r.cache {
		st.ByStatus[d.Status]++
	}
	return st
}

// mergeRuntimeState carries cache-only state onto a device freshly loaded
// from the store. The newer of the two status observations wins, since a
// poller updates the cache before its store write lands.
func mergeRuntimeState(fresh, cached *Device) {
	fresh.History = cached.History.Clone()

	if cached.LastCheck == nil {
		return
	}
	if fresh.LastCheck == nil || cached.LastCheck.After(*fresh.LastCheck) {
		t := *cached.LastCheck
		fresh.LastCheck = &t
		fresh.Status = cached.Status
	}
}

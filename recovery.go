package framegraph

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/gogpu/framegraph/render"
)

// ResourceManager is a recovery participant owning GPU-backed resources
// that must be rebuilt after a graphics-context loss.
//
// Name is the dedup key: registering a manager under an existing name
// replaces it in place, keeping its position in the registration order.
// Priority encodes rebuild dependency: lower values reinitialize first,
// so low-level device state comes back before the infrastructure built
// on top of it.
type ResourceManager interface {
	Name() string
	Priority() int

	// Invalidate drops all GPU handles the manager owns. It runs before
	// any reinitialization and must not touch the device.
	Invalidate()

	// Reinitialize rebuilds the manager's resources on the given device.
	Reinitialize(dev render.DeviceHandle) error
}

// RecoveryHooks adapts plain functions to the ResourceManager interface.
// Nil hooks are no-ops.
type RecoveryHooks struct {
	ManagerName     string
	ManagerPriority int
	InvalidateFn    func()
	ReinitializeFn  func(dev render.DeviceHandle) error
}

// Name returns the manager name.
func (h *RecoveryHooks) Name() string { return h.ManagerName }

// Priority returns the reinitialization priority.
func (h *RecoveryHooks) Priority() int { return h.ManagerPriority }

// Invalidate calls InvalidateFn when set.
func (h *RecoveryHooks) Invalidate() {
	if h.InvalidateFn != nil {
		h.InvalidateFn()
	}
}

// Reinitialize calls ReinitializeFn when set.
func (h *RecoveryHooks) Reinitialize(dev render.DeviceHandle) error {
	if h.ReinitializeFn != nil {
		return h.ReinitializeFn(dev)
	}
	return nil
}

var _ ResourceManager = (*RecoveryHooks)(nil)

// RecoveryEventKind tags the stages of a recovery run.
type RecoveryEventKind int

const (
	// RecoveryInvalidating marks the start of the invalidate phase.
	RecoveryInvalidating RecoveryEventKind = iota

	// RecoveryInvalidated marks the end of the invalidate phase.
	RecoveryInvalidated

	// RecoveryReinitializing precedes one manager's Reinitialize call.
	RecoveryReinitializing

	// RecoveryReinitialized follows one manager's successful Reinitialize.
	RecoveryReinitialized

	// RecoveryError reports one manager's failed Reinitialize.
	RecoveryError

	// RecoveryComplete marks the end of the run.
	RecoveryComplete
)

// String returns the event kind name.
func (k RecoveryEventKind) String() string {
	switch k {
	case RecoveryInvalidating:
		return "invalidating"
	case RecoveryInvalidated:
		return "invalidated"
	case RecoveryReinitializing:
		return "reinitializing"
	case RecoveryReinitialized:
		return "reinitialized"
	case RecoveryError:
		return "error"
	case RecoveryComplete:
		return "complete"
	}
	return "unknown"
}

// RecoveryEvent is one step of a recovery run, delivered to listeners in
// emission order. Manager is empty for run-level events; Err is non-nil
// only for RecoveryError.
type RecoveryEvent struct {
	Kind    RecoveryEventKind
	Manager string
	Err     error
}

// recoveryEntry pairs a manager with its registration sequence number,
// the tie-breaker for equal priorities.
type recoveryEntry struct {
	mgr ResourceManager
	seq uint64
}

type recoveryListener struct {
	id uint64
	fn func(RecoveryEvent)
}

// ResourceRecovery coordinates rebuilding GPU-backed resources after a
// graphics-context loss. Managers register once; Recover invalidates all
// of them and reinitializes them in ascending priority order, tolerating
// individual failures. Concurrent Recover calls coalesce into one
// physical run that all callers wait on.
//
// Create one coordinator per renderer instance and share it with every
// subsystem owning device resources.
type ResourceRecovery struct {
	mu        sync.Mutex
	managers  map[string]*recoveryEntry
	seq       uint64
	listeners []recoveryListener
	nextID    uint64
	inflight  chan struct{}
}

// NewResourceRecovery creates an empty recovery coordinator.
func NewResourceRecovery() *ResourceRecovery {
	return &ResourceRecovery{
		managers: make(map[string]*recoveryEntry),
	}
}

// Register adds a manager to the participant set. Registering an existing
// name replaces the manager in place: it keeps the original registration
// position for priority tie-breaking. Managers with an empty name are
// dropped.
func (r *ResourceRecovery) Register(mgr ResourceManager) {
	if mgr == nil || mgr.Name() == "" {
		Logger().Warn("dropping recovery manager with empty name")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.managers[mgr.Name()]; ok {
		Logger().Debug("replacing recovery manager", "name", mgr.Name())
		prev.mgr = mgr
		return
	}
	r.managers[mgr.Name()] = &recoveryEntry{mgr: mgr, seq: r.seq}
	r.seq++
}

// Unregister removes the named manager. Unknown names are a no-op.
func (r *ResourceRecovery) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.managers, name)
}

// ManagerNames returns the registered manager names in reinitialization
// order (ascending priority, ties by registration order).
func (r *ResourceRecovery) ManagerNames() []string {
	r.mu.Lock()
	entries := r.sortedLocked()
	r.mu.Unlock()

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.mgr.Name()
	}
	return names
}

// AddListener subscribes to recovery events and returns an unsubscribe
// function. Unsubscribing more than once is safe.
func (r *ResourceRecovery) AddListener(fn func(RecoveryEvent)) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners = append(r.listeners, recoveryListener{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, l := range r.listeners {
			if l.id == id {
				r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
				return
			}
		}
	}
}

// InProgress reports whether a recovery run is currently executing.
func (r *ResourceRecovery) InProgress() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inflight != nil
}

// Clear removes all managers and listeners. A run already in flight
// finishes with the participant snapshot it took at its start.
func (r *ResourceRecovery) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.managers)
	r.listeners = nil
}

// Recover rebuilds all registered managers on the given device: it
// invalidates every manager, then reinitializes them in ascending
// priority order. One manager's failure is logged and reported as a
// RecoveryError event, and the run continues with the rest.
//
// If a run is already in flight, Recover waits for that run instead of
// starting another; concurrent callers all return once the one physical
// run completes.
func (r *ResourceRecovery) Recover(dev render.DeviceHandle) {
	r.mu.Lock()
	if r.inflight != nil {
		done := r.inflight
		r.mu.Unlock()
		<-done
		return
	}
	done := make(chan struct{})
	r.inflight = done
	entries := r.sortedLocked()
	r.mu.Unlock()

	r.run(dev, entries)

	r.mu.Lock()
	r.inflight = nil
	r.mu.Unlock()
	close(done)
}

// sortedLocked returns the managers in reinitialization order.
// Callers must hold mu.
func (r *ResourceRecovery) sortedLocked() []*recoveryEntry {
	entries := make([]*recoveryEntry, 0, len(r.managers))
	for _, e := range r.managers {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		pi, pj := entries[i].mgr.Priority(), entries[j].mgr.Priority()
		if pi != pj {
			return pi < pj
		}
		return entries[i].seq < entries[j].seq
	})
	return entries
}

func (r *ResourceRecovery) run(dev render.DeviceHandle, entries []*recoveryEntry) {
	log := Logger()
	log.Info("resource recovery starting", "managers", len(entries))

	r.emit(RecoveryEvent{Kind: RecoveryInvalidating})
	for _, e := range entries {
		e.mgr.Invalidate()
	}
	r.emit(RecoveryEvent{Kind: RecoveryInvalidated})

	failed := 0
	for _, e := range entries {
		name := e.mgr.Name()
		r.emit(RecoveryEvent{Kind: RecoveryReinitializing, Manager: name})
		if err := e.mgr.Reinitialize(dev); err != nil {
			failed++
			log.Warn("resource manager failed to reinitialize",
				"manager", name, "error", err)
			r.emit(RecoveryEvent{Kind: RecoveryError, Manager: name, Err: err})
			continue
		}
		r.emit(RecoveryEvent{Kind: RecoveryReinitialized, Manager: name})
	}

	r.emit(RecoveryEvent{Kind: RecoveryComplete})
	log.Info("resource recovery complete", "managers", len(entries), "failed", failed)
}

func (r *ResourceRecovery) emit(ev RecoveryEvent) {
	r.mu.Lock()
	listeners := make([]recoveryListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, l := range listeners {
		l.fn(ev)
	}
}

// LogEvents returns a recovery listener that logs every event to the
// given logger, for hosts that want diagnostics without writing their
// own listener. A nil logger uses the package logger.
func LogEvents(l *slog.Logger) func(RecoveryEvent) {
	return func(ev RecoveryEvent) {
		log := l
		if log == nil {
			log = Logger()
		}
		switch {
		case ev.Err != nil:
			log.Warn("recovery event", "kind", ev.Kind.String(),
				"manager", ev.Manager, "error", ev.Err)
		case ev.Manager != "":
			log.Debug("recovery event", "kind", ev.Kind.String(),
				"manager", ev.Manager)
		default:
			log.Debug("recovery event", "kind", ev.Kind.String())
		}
	}
}

package framegraph

import (
	"fmt"
	"sort"
	"strings"
)

// Getter pulls a value from host-owned state. The Registry invokes it exactly
// once per frame, during CaptureAll; it must be side-effect-free so it can be
// called speculatively.
type Getter func() (any, error)

// Validator checks a freshly pulled value before it is frozen for the frame.
// Returning false marks the resource invalid for the frame.
type Validator func(any) bool

// Descriptor registers an external value source with a Registry.
type Descriptor struct {
	// ID is the dedup key. Registering the same ID again replaces the
	// earlier descriptor.
	ID string

	// Get produces the value captured once per frame.
	Get Getter

	// Validate optionally rejects a captured value. Nil accepts everything.
	Validate Validator

	// Description is an optional human-readable note shown in DebugInfo.
	Description string
}

// captured is the per-frame result of invoking a descriptor's getter.
type captured struct {
	value any
	valid bool
}

// Registry is a frame-scoped, freeze-on-capture cache of values pulled from
// outside the graph: effect toggles, numeric parameters, derived handles.
//
// The freeze guarantee: CaptureAll invokes every registered getter exactly
// once, and Get never invokes a getter, only returning what CaptureAll
// froze. Every read within one frame therefore observes the same value, even
// if the underlying source mutates after capture.
//
// A Registry is owned by the host's render loop and is not safe for
// concurrent use; per-frame capture replaces locking as the consistency
// device (one snapshot per frame, any number of readers).
type Registry struct {
	descriptors map[string]Descriptor
	values      map[string]captured
	frame       uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
		values:      make(map[string]captured),
	}
}

// Register adds or replaces the descriptor keyed by d.ID. Re-registration is
// deliberate behavior (hot-reload style reinitialization re-registers ids),
// so a duplicate replaces the old descriptor with a debug log rather than
// erroring. Descriptors with an empty ID or nil Get are dropped with a
// warning.
//
// The new descriptor takes effect at the next CaptureAll; it does not
// disturb a value already frozen for the current frame.
func (r *Registry) Register(d Descriptor) {
	if d.ID == "" || d.Get == nil {
		Logger().Warn("framegraph: dropping malformed resource descriptor",
			"id", d.ID, "hasGetter", d.Get != nil)
		return
	}
	if _, exists := r.descriptors[d.ID]; exists {
		Logger().Debug("framegraph: replacing resource descriptor", "id", d.ID)
	}
	r.descriptors[d.ID] = d
}

// Unregister removes the descriptor and any captured value for id.
// Unknown ids are a no-op.
func (r *Registry) Unregister(id string) {
	delete(r.descriptors, id)
	delete(r.values, id)
}

// CaptureAll invokes every registered getter exactly once and freezes the
// results for the current frame. A getter error or panic, or a validator
// rejection, marks that one resource invalid for the frame (Get returns nil,
// IsCaptured reports false) and never blocks capture of the others.
func (r *Registry) CaptureAll() {
	for id, d := range r.descriptors {
		value, err := capture(d)
		if err != nil {
			Logger().Warn("framegraph: resource capture failed",
				"id", id, "frame", r.frame, "error", err)
			r.values[id] = captured{value: nil, valid: false}
			continue
		}
		if d.Validate != nil && !d.Validate(value) {
			Logger().Warn("framegraph: resource failed validation",
				"id", id, "frame", r.frame)
			r.values[id] = captured{value: nil, valid: false}
			continue
		}
		r.values[id] = captured{value: value, valid: true}
	}
}

// capture invokes the getter, converting a panic into an error so one
// misbehaving source cannot abort the frame.
func capture(d Descriptor) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			value = nil
			err = fmt.Errorf("getter panicked: %v", p)
		}
	}()
	return d.Get()
}

// Get returns the value frozen for id this frame, or nil when the id is
// unknown, its capture failed, or no CaptureAll has run since the last
// AdvanceFrame. Get never invokes the underlying getter; the window between
// AdvanceFrame and the next CaptureAll deliberately reads as nil so a missed
// capture fails loudly instead of serving the previous frame's data.
func (r *Registry) Get(id string) any {
	c, ok := r.values[id]
	if !ok || !c.valid {
		return nil
	}
	return c.value
}

// IsCaptured reports whether id was successfully captured this frame.
// It is false before the first CaptureAll, false again after AdvanceFrame
// until the next CaptureAll, and false for a resource whose getter failed.
func (r *Registry) IsCaptured(id string) bool {
	c, ok := r.values[id]
	return ok && c.valid
}

// AdvanceFrame increments the monotonic frame counter and clears the
// captured-this-frame state for every resource.
func (r *Registry) AdvanceFrame() {
	r.frame++
	clear(r.values)
}

// InvalidateCaptures drops all captured values while preserving
// registrations and the frame counter. Used when frozen values are known to
// be stale mid-frame, such as after a graphics context loss.
func (r *Registry) InvalidateCaptures() {
	clear(r.values)
}

// Dispose drops every registration and captured value and resets the frame
// counter to zero. The Registry remains usable afterwards.
func (r *Registry) Dispose() {
	clear(r.descriptors)
	clear(r.values)
	r.frame = 0
}

// FrameNumber returns the current frame counter.
func (r *Registry) FrameNumber() uint64 {
	return r.frame
}

// ResourceIDs returns the registered resource ids in sorted order.
func (r *Registry) ResourceIDs() []string {
	ids := make([]string, 0, len(r.descriptors))
	for id := range r.descriptors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DebugInfo returns a human-readable listing of registered resources and
// their validity this frame.
func (r *Registry) DebugInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "frame %d, %d resources\n", r.frame, len(r.descriptors))
	for _, id := range r.ResourceIDs() {
		d := r.descriptors[id]
		c, captured := r.values[id]
		switch {
		case captured && c.valid:
			fmt.Fprintf(&b, "  %s: captured (%T)", id, c.value)
		case captured:
			fmt.Fprintf(&b, "  %s: capture failed", id)
		default:
			fmt.Fprintf(&b, "  %s: not captured", id)
		}
		if d.Description != "" {
			fmt.Fprintf(&b, " - %s", d.Description)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Frame returns the frozen per-frame view handed to pass enable predicates.
// The view is pinned to the current frame number: once AdvanceFrame runs, a
// retained Frame reads as empty rather than serving stale values.
func (r *Registry) Frame() *Frame {
	return &Frame{reg: r, number: r.frame}
}

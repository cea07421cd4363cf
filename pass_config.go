package framegraph

import (
	"fmt"
)

// Attachment selects a sub-channel of a multi-target resource.
// Non-negative values select a color channel by index; AttachmentDepth
// selects the depth channel.
type Attachment int

const (
	// AttachmentColor selects a resource's primary color channel.
	AttachmentColor Attachment = 0

	// AttachmentDepth selects a resource's depth channel. Only resources
	// whose producing pass declares a depth output carry one.
	AttachmentDepth Attachment = -1
)

// String returns the attachment name for diagnostics.
func (a Attachment) String() string {
	switch {
	case a == AttachmentDepth:
		return "depth"
	case a == AttachmentColor:
		return "color"
	case a > 0:
		return fmt.Sprintf("color%d", int(a))
	}
	return fmt.Sprintf("attachment(%d)", int(a))
}

// Input declares one resource read of a pass.
type Input struct {
	// Resource is the id of the resource being read.
	Resource string

	// Attachment selects which channel of the resource is read.
	// The zero value reads the primary color channel.
	Attachment Attachment
}

// Output declares one resource write of a pass. Each resource id has
// exactly one producing pass per graph.
type Output struct {
	// Resource is the id of the resource being written.
	Resource string

	// Depth requests a depth channel alongside the color channel, so
	// downstream passes can read it with AttachmentDepth.
	Depth bool
}

// PassConfig declares a pass's identity, its resource reads and writes,
// and an optional enable predicate. The config is fixed at construction;
// the graph validates and schedules from it.
type PassConfig struct {
	// ID identifies the pass within its graph.
	ID string

	// Name is an optional human-readable name for diagnostics and GPU
	// labels. Empty means use ID.
	Name string

	// Priority breaks scheduling ties between passes with no data
	// dependency. Lower runs first; equal values keep insertion order.
	Priority int

	// Inputs are the resource reads the pass may perform.
	Inputs []Input

	// Outputs are the resource writes the pass may perform.
	Outputs []Output

	// Enabled decides per frame whether the pass runs. Nil means always
	// enabled. The predicate must be pure; it sees only the frozen frame
	// snapshot.
	Enabled func(*Frame) bool
}

// Label returns the name for diagnostics, falling back to the ID.
func (c PassConfig) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// EnabledFor reports whether the pass should run for the given frame.
// A nil frame disables any pass with a predicate: without a frozen
// snapshot the predicate cannot be answered, so it fails closed.
func (c PassConfig) EnabledFor(f *Frame) bool {
	if c.Enabled == nil {
		return true
	}
	if f == nil {
		return false
	}
	return c.Enabled(f)
}

// EnabledWhen returns a predicate that is true when the named resource
// captured a true boolean this frame. Missing, invalid, or non-boolean
// captures read as disabled.
func EnabledWhen(id string) func(*Frame) bool {
	return func(f *Frame) bool {
		v, ok := Value[bool](f, id)
		return ok && v
	}
}

// BasePass carries a pass's immutable config and a no-op Dispose.
// Concrete passes embed it and override what they need.
type BasePass struct {
	cfg PassConfig
}

// NewBasePass creates the embedded base from a config.
func NewBasePass(cfg PassConfig) BasePass {
	return BasePass{cfg: cfg}
}

// Config returns the pass's declaration.
func (p *BasePass) Config() PassConfig { return p.cfg }

// Dispose releases nothing; passes owning GPU resources override it.
func (p *BasePass) Dispose() {}

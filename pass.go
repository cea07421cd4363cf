//go:build !nogpu

package framegraph

import (
	"errors"
	"fmt"

	"github.com/gogpu/framegraph/render"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ErrUndeclaredAccess is returned when a pass touches a resource id or
// attachment it did not declare in its config.
var ErrUndeclaredAccess = errors.New("framegraph: access to undeclared resource")

// Pass is the unit of work scheduled by the graph. A pass declares its
// resource reads and writes up front and is handed a RenderContext that
// resolves exactly those declarations to live GPU handles.
type Pass interface {
	// Config returns the pass's immutable declaration.
	Config() PassConfig

	// Execute records the pass's GPU work. It runs at most once per
	// frame, bracketed by the state barrier. Implementations must do no
	// GPU work when the context size is degenerate (zero width or
	// height).
	Execute(ctx *RenderContext) error

	// Dispose releases GPU resources the pass privately owns, not
	// graph-managed targets. It must be safe to call more than once.
	Dispose()
}

// GPUInvalidator is implemented by passes that can drop dead GPU handles
// after a graphics-context loss without issuing destroy calls. During
// recovery the graph invalidates passes that implement it and disposes
// the rest; either way the pass rebuilds lazily on its next Execute.
type GPUInvalidator interface {
	InvalidateGPU()
}

// RenderContext is the executor's per-pass view of one frame: the shared
// GPU handles, the authoritative size, and a resolver from declared
// resource ids to live texture views.
type RenderContext struct {
	// Device and Queue are the host's HAL handles, shared by all passes.
	Device hal.Device
	Queue  hal.Queue

	// Encoder records this frame's GPU work. The graph owns encoding
	// begin/end and submission; passes only record into it.
	Encoder hal.CommandEncoder

	// Width and Height are the authoritative frame size. Zero in either
	// dimension means the frame is degenerate and no GPU work may run.
	Width  uint32
	Height uint32

	// Format is the color format of all graph-managed targets.
	Format gputypes.TextureFormat

	// Renderer, Scene, and Camera are the host's ambient state. Passes
	// may mutate them freely; the state barrier restores them after each
	// pass. Any of the three may be nil when the host has no such state.
	Renderer render.Renderer
	Scene    render.Scene
	Camera   render.Camera

	frame  *Frame
	passID string
	reads  map[Input]bool
	writes map[string]bool

	// resolve maps a declared id and attachment to a live view. Depth
	// resolves to different views for reads (depth-aspect sample view)
	// and writes (render-pass attachment view).
	resolve    func(id string, att Attachment, write bool) (hal.TextureView, error)
	addCleanup func(fn func())
}

// Defer schedules fn to run after this frame's GPU work has completed.
// Passes use it to release per-frame buffers and bind groups that the
// command encoder still references at execution time.
func (c *RenderContext) Defer(fn func()) {
	if c.addCleanup != nil && fn != nil {
		c.addCleanup(fn)
	}
}

// Frame returns the frozen per-frame snapshot, or nil when the registry
// captured nothing this frame.
func (c *RenderContext) Frame() *Frame {
	return c.frame
}

// ReadTexture resolves a declared input to its live texture view.
// Reading an id or attachment the pass did not declare fails with
// ErrUndeclaredAccess.
func (c *RenderContext) ReadTexture(id string, att Attachment) (hal.TextureView, error) {
	if !c.reads[Input{Resource: id, Attachment: att}] {
		return nil, fmt.Errorf("pass %q: %w: read %s of %q",
			c.passID, ErrUndeclaredAccess, att, id)
	}
	return c.resolve(id, att, false)
}

// WriteTarget resolves a declared output to the color view the pass
// renders into. Writing an id the pass did not declare fails with
// ErrUndeclaredAccess.
func (c *RenderContext) WriteTarget(id string) (hal.TextureView, error) {
	if !c.writes[id] {
		return nil, fmt.Errorf("pass %q: %w: write %q",
			c.passID, ErrUndeclaredAccess, id)
	}
	return c.resolve(id, AttachmentColor, true)
}

// WriteDepth resolves the depth view of a declared output. The output
// must have been declared with Depth set, which makes the graph allocate
// a depth channel for the resource.
func (c *RenderContext) WriteDepth(id string) (hal.TextureView, error) {
	if !c.writes[id] {
		return nil, fmt.Errorf("pass %q: %w: write depth of %q",
			c.passID, ErrUndeclaredAccess, id)
	}
	return c.resolve(id, AttachmentDepth, true)
}

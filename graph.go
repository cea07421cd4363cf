//go:build !nogpu

package framegraph

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gogpu/framegraph/internal/gpu"
	"github.com/gogpu/framegraph/render"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

func init() {
	registerLoggerSink(gpu.SetLogger)
}

// Graph construction and execution errors.
var (
	// ErrNilProvider is returned when the device provider is nil.
	ErrNilProvider = errors.New("framegraph: device provider is nil")

	// ErrNoHALAccess is returned when the provider does not expose the
	// underlying HAL device and queue.
	ErrNoHALAccess = errors.New("framegraph: provider does not expose HAL types")

	// ErrGraphDisposed is returned when executing a disposed graph.
	ErrGraphDisposed = errors.New("framegraph: graph is disposed")

	// ErrNoOutput is returned when the final output is requested before
	// any frame produced one.
	ErrNoOutput = errors.New("framegraph: no output rendered yet")
)

// passPlan holds the per-pass lookup structures the schedule derives
// from a PassConfig, so frame execution allocates nothing for them.
type passPlan struct {
	reads  map[Input]bool
	writes map[string]bool
}

// Graph owns a set of passes and runs them once per frame: it freezes
// external state through its Registry, orders passes so producers run
// before consumers, brackets every pass with the state barrier, and
// submits all recorded GPU work as one command buffer.
//
// A Graph is single-threaded by contract: it lives on the host's render
// loop and every method except the Recovery coordinator's must be called
// from that loop.
type Graph struct {
	handle render.DeviceHandle

	session *gpu.Session
	pool    *gpu.TargetPool
	format  gputypes.TextureFormat

	registry *Registry
	recovery *ResourceRecovery
	barrier  *StateBarrier

	renderer render.Renderer
	scene    render.Scene
	camera   render.Camera

	passes []Pass
	order  []int
	plans  []passPlan

	// resourceDepth records, per resource id, whether its producer
	// declares a depth channel. Filled in by Validate.
	resourceDepth map[string]bool

	// outputID is the resource presented to the host. Empty means the
	// terminal resource detected at validation time.
	outputID string
	finalID  string

	width  uint32
	height uint32

	cleanups []func()
	stats    FrameStats

	validated bool
	disposed  bool
}

// FrameStats summarizes one executed frame.
type FrameStats struct {
	// Frame is the registry frame number the stats belong to.
	Frame uint64

	// Width and Height are the frame dimensions.
	Width  uint32
	Height uint32

	// Executed counts passes that ran; Skipped counts passes whose
	// enable predicate was false.
	Executed int
	Skipped  int

	// Timings records the CPU encoding time of each executed pass, in
	// execution order.
	Timings []PassTiming
}

// PassTiming is one executed pass's CPU encoding time. It measures the
// host-side recording cost, not GPU execution.
type PassTiming struct {
	ID       string
	Duration time.Duration
}

// New creates a graph rendering through the host's device. The provider
// must expose the underlying HAL device and queue; gogpu's context does.
func New(handle render.DeviceHandle) (*Graph, error) {
	if handle == nil {
		return nil, ErrNilProvider
	}

	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := handle.(halProvider)
	if !ok {
		return nil, ErrNoHALAccess
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALAccess)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALAccess)
	}

	format := handle.SurfaceFormat()
	if format == gputypes.TextureFormatUndefined {
		format = gputypes.TextureFormatBGRA8Unorm
	}

	g := &Graph{
		handle:   handle,
		session:  gpu.NewSession(device, queue),
		pool:     gpu.NewTargetPool(device, format),
		format:   format,
		registry: NewRegistry(),
		recovery: NewResourceRecovery(),
		barrier:  NewStateBarrier(),
	}

	g.recovery.Register(&RecoveryHooks{
		ManagerName: "framegraph.captures",
		InvalidateFn: func() {
			g.registry.InvalidateCaptures()
		},
	})
	g.recovery.Register(&RecoveryHooks{
		ManagerName:     "framegraph.targets",
		ManagerPriority: 10,
		InvalidateFn: func() {
			g.pool.Invalidate()
		},
	})
	g.recovery.Register(&RecoveryHooks{
		ManagerName:     "framegraph.passes",
		ManagerPriority: 20,
		InvalidateFn: func() {
			for _, p := range g.passes {
				if inv, ok := p.(GPUInvalidator); ok {
					inv.InvalidateGPU()
				} else {
					p.Dispose()
				}
			}
		},
	})

	return g, nil
}

// Registry returns the graph's external-resource registry. Hosts
// register their toggles, parameters, and derived handles here.
func (g *Graph) Registry() *Registry { return g.registry }

// Recovery returns the graph's resource-recovery coordinator. Hosts
// register additional managers and event listeners here.
func (g *Graph) Recovery() *ResourceRecovery { return g.recovery }

// Format returns the color format of all graph-managed targets.
func (g *Graph) Format() gputypes.TextureFormat { return g.format }

// SetAmbient wires the host's renderer, scene, and camera into pass
// execution. Any of the three may be nil. The graph snapshots and
// restores their state around every pass.
func (g *Graph) SetAmbient(r render.Renderer, s render.Scene, c render.Camera) {
	g.renderer, g.scene, g.camera = r, s, c
}

// AddPass appends a pass to the graph. The schedule is recomputed on
// the next Validate or Execute.
func (g *Graph) AddPass(p Pass) {
	if p == nil {
		Logger().Warn("framegraph: ignoring nil pass")
		return
	}
	g.passes = append(g.passes, p)
	g.validated = false
}

// SetOutput names the resource presented by Output and CaptureOutput.
// Without it the graph presents the terminal resource: the one written
// but never read. Takes effect at the next Validate or Execute.
func (g *Graph) SetOutput(resourceID string) {
	g.outputID = resourceID
	g.validated = false
}

// Validate checks the declared graph shape and computes the execution
// order. All configuration problems are reported together; a graph that
// fails validation must not execute.
func (g *Graph) Validate() error {
	configs := make([]PassConfig, len(g.passes))
	for i, p := range g.passes {
		configs[i] = p.Config()
	}
	if err := validateConfigs(configs); err != nil {
		return err
	}

	order, err := orderConfigs(configs)
	if err != nil {
		return err
	}

	plans := make([]passPlan, len(configs))
	depth := make(map[string]bool)
	readCount := make(map[string]int)
	for i, cfg := range configs {
		plan := passPlan{
			reads:  make(map[Input]bool, len(cfg.Inputs)),
			writes: make(map[string]bool, len(cfg.Outputs)),
		}
		for _, in := range cfg.Inputs {
			plan.reads[in] = true
			readCount[in.Resource]++
		}
		for _, out := range cfg.Outputs {
			plan.writes[out.Resource] = true
			depth[out.Resource] = depth[out.Resource] || out.Depth
		}
		plans[i] = plan
	}

	finalID := g.outputID
	if finalID == "" {
		// The terminal resource: written last in execution order among
		// those nothing reads.
		for _, idx := range order {
			for _, out := range configs[idx].Outputs {
				if readCount[out.Resource] == 0 {
					finalID = out.Resource
				}
			}
		}
	}

	g.order = order
	g.plans = plans
	g.resourceDepth = depth
	g.finalID = finalID
	g.validated = true
	return nil
}

// Execute renders one frame at the given size: it advances and captures
// the registry, then runs every enabled pass in dependency order inside
// a single command submission. A zero width or height is a degenerate
// frame: external state still advances, but no pass runs and no GPU
// work is recorded.
//
// The first pass error aborts the frame; recorded GPU work is discarded
// and the error is returned. The state barrier is restored around the
// failing pass either way.
func (g *Graph) Execute(width, height uint32) error {
	if g.disposed {
		return ErrGraphDisposed
	}
	if !g.validated {
		if err := g.Validate(); err != nil {
			return err
		}
	}

	g.registry.AdvanceFrame()
	g.registry.CaptureAll()
	frame := g.registry.Frame()

	g.width, g.height = width, height
	g.stats = FrameStats{Frame: g.registry.FrameNumber(), Width: width, Height: height}

	if width == 0 || height == 0 {
		return nil
	}

	defer g.runCleanups()

	return g.session.Frame("framegraph", func(encoder hal.CommandEncoder) error {
		for _, idx := range g.order {
			pass := g.passes[idx]
			cfg := pass.Config()
			if !cfg.EnabledFor(frame) {
				g.stats.Skipped++
				continue
			}

			for _, out := range cfg.Outputs {
				if _, err := g.pool.Ensure(out.Resource, width, height, g.resourceDepth[out.Resource]); err != nil {
					return fmt.Errorf("pass %q: %w", cfg.ID, err)
				}
			}

			ctx := &RenderContext{
				Device:     g.session.Device(),
				Queue:      g.session.Queue(),
				Encoder:    encoder,
				Width:      width,
				Height:     height,
				Format:     g.format,
				Renderer:   g.renderer,
				Scene:      g.scene,
				Camera:     g.camera,
				frame:      frame,
				passID:     cfg.ID,
				reads:      g.plans[idx].reads,
				writes:     g.plans[idx].writes,
				resolve:    g.resolveView,
				addCleanup: g.addCleanup,
			}

			start := time.Now()
			if err := g.executePass(pass, ctx); err != nil {
				Logger().Warn("framegraph: pass failed, aborting frame",
					"pass", cfg.ID, "frame", frame.Number(), "error", err)
				return err
			}
			g.stats.Executed++
			g.stats.Timings = append(g.stats.Timings, PassTiming{ID: cfg.ID, Duration: time.Since(start)})
		}
		return nil
	})
}

// executePass brackets one pass execution with the state barrier. The
// barrier restores even when the pass fails or panics; the executor
// never suppresses the pass's own error.
func (g *Graph) executePass(pass Pass, ctx *RenderContext) error {
	g.barrier.Capture(g.renderer, g.scene, g.camera)
	defer g.barrier.Restore()
	return pass.Execute(ctx)
}

// resolveView maps a declared resource id and attachment to a live
// texture view, allocating the backing target on first touch. A
// consumer can therefore read a resource whose producer is disabled
// this frame; it observes the producer's last output, or an empty
// texture when the producer never ran.
func (g *Graph) resolveView(id string, att Attachment, write bool) (hal.TextureView, error) {
	t := g.pool.Get(id)
	if t == nil || t.ColorView() == nil {
		var err error
		t, err = g.pool.Ensure(id, g.width, g.height, g.resourceDepth[id])
		if err != nil {
			return nil, err
		}
	}

	switch att {
	case AttachmentColor:
		return t.ColorView(), nil
	case AttachmentDepth:
		var view hal.TextureView
		if write {
			view = t.DepthAttachmentView()
		} else {
			view = t.DepthSampleView()
		}
		if view == nil {
			return nil, fmt.Errorf("framegraph: resource %q has no depth channel", id)
		}
		return view, nil
	}
	return nil, fmt.Errorf("framegraph: resource %q has no %s attachment", id, att)
}

func (g *Graph) addCleanup(fn func()) {
	g.cleanups = append(g.cleanups, fn)
}

// runCleanups releases per-frame resources in reverse registration
// order, after the frame's GPU work has completed or been discarded.
func (g *Graph) runCleanups() {
	for i := len(g.cleanups) - 1; i >= 0; i-- {
		g.cleanups[i]()
	}
	g.cleanups = g.cleanups[:0]
}

// Output returns the color view of the final output resource, for the
// host's presentation step. It fails before the first frame renders.
func (g *Graph) Output() (hal.TextureView, error) {
	t, err := g.outputTarget()
	if err != nil {
		return nil, err
	}
	return t.ColorView(), nil
}

func (g *Graph) outputTarget() (*gpu.Target, error) {
	if g.finalID == "" {
		return nil, ErrNoOutput
	}
	t := g.pool.Get(g.finalID)
	if t == nil || t.ColorView() == nil {
		return nil, fmt.Errorf("%w: %q not rendered", ErrNoOutput, g.finalID)
	}
	return t, nil
}

// Recover rebuilds GPU-backed resources after a graphics-context loss:
// every registered manager is invalidated, then reinitialized in
// ascending priority order. Frame targets and pass pipelines reallocate
// lazily on the next Execute.
func (g *Graph) Recover() {
	g.recovery.Recover(g.handle)
}

// Stats returns the statistics of the most recently executed frame.
func (g *Graph) Stats() FrameStats { return g.stats }

// DebugInfo returns a human-readable description of the schedule and
// the registry's captured resources this frame.
func (g *Graph) DebugInfo() string {
	var b strings.Builder
	b.WriteString("passes:\n")
	if !g.validated {
		for _, p := range g.passes {
			fmt.Fprintf(&b, "  %s (unscheduled)\n", p.Config().Label())
		}
	} else {
		for _, idx := range g.order {
			cfg := g.passes[idx].Config()
			fmt.Fprintf(&b, "  %s", cfg.Label())
			if len(cfg.Inputs) > 0 {
				ids := make([]string, len(cfg.Inputs))
				for i, in := range cfg.Inputs {
					ids[i] = in.Resource
					if in.Attachment != AttachmentColor {
						ids[i] += ":" + in.Attachment.String()
					}
				}
				fmt.Fprintf(&b, " reads %s", strings.Join(ids, ", "))
			}
			if len(cfg.Outputs) > 0 {
				ids := make([]string, len(cfg.Outputs))
				for i, out := range cfg.Outputs {
					ids[i] = out.Resource
					if out.Depth {
						ids[i] += "+depth"
					}
				}
				fmt.Fprintf(&b, " writes %s", strings.Join(ids, ", "))
			}
			b.WriteByte('\n')
		}
		if g.finalID != "" {
			fmt.Fprintf(&b, "output: %s\n", g.finalID)
		}
	}
	b.WriteString(g.registry.DebugInfo())
	return b.String()
}

// Dispose releases every pass's resources and all graph-managed
// targets. The graph cannot execute afterwards. Safe to call more than
// once.
func (g *Graph) Dispose() {
	if g.disposed {
		return
	}
	g.runCleanups()
	for _, p := range g.passes {
		p.Dispose()
	}
	g.pool.Destroy()
	g.registry.Dispose()
	g.recovery.Clear()
	g.disposed = true
}

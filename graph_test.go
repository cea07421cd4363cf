//go:build !nogpu

package framegraph

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/framegraph/render"
)

// testDeviceHandle exposes a noop HAL device the way a gogpu context
// exposes its real one.
type testDeviceHandle struct {
	device hal.Device
	queue  hal.Queue
	format gputypes.TextureFormat
}

func (h *testDeviceHandle) Device() gpucontext.Device             { return nil }
func (h *testDeviceHandle) Queue() gpucontext.Queue               { return nil }
func (h *testDeviceHandle) Adapter() gpucontext.Adapter           { return nil }
func (h *testDeviceHandle) SurfaceFormat() gputypes.TextureFormat { return h.format }
func (h *testDeviceHandle) HalDevice() any                        { return h.device }
func (h *testDeviceHandle) HalQueue() any                         { return h.queue }

func newTestGraph(t *testing.T) (*Graph, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	handle := &testDeviceHandle{
		device: openDev.Device,
		queue:  openDev.Queue,
		format: gputypes.TextureFormatRGBA8Unorm,
	}
	g, err := New(handle)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		t.Fatalf("New failed: %v", err)
	}
	cleanup := func() {
		g.Dispose()
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return g, cleanup
}

// scriptedPass runs a test-provided function and counts disposals.
type scriptedPass struct {
	BasePass
	onExecute func(*RenderContext) error
	disposals int
}

func newScriptedPass(cfg PassConfig, fn func(*RenderContext) error) *scriptedPass {
	return &scriptedPass{BasePass: NewBasePass(cfg), onExecute: fn}
}

func (p *scriptedPass) Execute(ctx *RenderContext) error {
	if p.onExecute != nil {
		return p.onExecute(ctx)
	}
	return nil
}

func (p *scriptedPass) Dispose() { p.disposals++ }

// invalidatingPass additionally implements GPUInvalidator.
type invalidatingPass struct {
	scriptedPass
	invalidations int
}

func (p *invalidatingPass) InvalidateGPU() { p.invalidations++ }

// logPass returns a pass that appends its id to log when executed.
func logPass(cfg PassConfig, log *[]string) *scriptedPass {
	return newScriptedPass(cfg, func(*RenderContext) error {
		*log = append(*log, cfg.ID)
		return nil
	})
}

func TestNewGraphNilProvider(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNilProvider) {
		t.Fatalf("New(nil) = %v, want ErrNilProvider", err)
	}
}

func TestNewGraphRequiresHALAccess(t *testing.T) {
	if _, err := New(render.NullDeviceHandle{}); !errors.Is(err, ErrNoHALAccess) {
		t.Fatalf("New(NullDeviceHandle) = %v, want ErrNoHALAccess", err)
	}
}

type bogusHALHandle struct{ testDeviceHandle }

func (h *bogusHALHandle) HalDevice() any { return "not a device" }

func TestNewGraphRejectsWrongHALTypes(t *testing.T) {
	if _, err := New(&bogusHALHandle{}); !errors.Is(err, ErrNoHALAccess) {
		t.Fatalf("New with bogus HalDevice = %v, want ErrNoHALAccess", err)
	}
}

func TestGraphSurfaceFormatFallback(t *testing.T) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	defer instance.Destroy()
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer openDev.Device.Destroy()

	handle := &testDeviceHandle{
		device: openDev.Device,
		queue:  openDev.Queue,
		format: gputypes.TextureFormatUndefined,
	}
	g, err := New(handle)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer g.Dispose()

	if got := g.Format(); got != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("Format() = %v, want BGRA8Unorm fallback", got)
	}
}

func TestGraphExecutionOrder(t *testing.T) {
	g, cleanup := newTestGraph(t)
	defer cleanup()

	var log []string
	// Registered consumer-first; the schedule must still run producers
	// before consumers.
	g.AddPass(logPass(PassConfig{
		ID:      "post",
		Inputs:  []Input{{Resource: "mid"}},
		Outputs: []Output{{Resource: "final"}},
	}, &log))
	g.AddPass(logPass(PassConfig{
		ID:      "blur",
		Inputs:  []Input{{Resource: "raw"}},
		Outputs: []Output{{Resource: "mid"}},
	}, &log))
	g.AddPass(logPass(PassConfig{
		ID:      "source",
		Outputs: []Output{{Resource: "raw"}},
	}, &log))

	if err := g.Execute(64, 64); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := []string{"source", "blur", "post"}
	if len(log) != len(want) {
		t.Fatalf("executed %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("executed %v, want %v", log, want)
		}
	}
}

func TestGraphPriorityOrder(t *testing.T) {
	g, cleanup := newTestGraph(t)
	defer cleanup()

	var log []string
	// No data dependencies: priority settles the order, insertion order
	// breaks the remaining tie between "b" and "c".
	g.AddPass(logPass(PassConfig{ID: "b", Priority: 5, Outputs: []Output{{Resource: "ob"}}}, &log))
	g.AddPass(logPass(PassConfig{ID: "c", Priority: 5, Outputs: []Output{{Resource: "oc"}}}, &log))
	g.AddPass(logPass(PassConfig{ID: "a", Priority: -5, Outputs: []Output{{Resource: "oa"}}}, &log))

	if err := g.Execute(32, 32); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := []string{"a", "b", "c"}
	for i := range want {
		if i >= len(log) || log[i] != want[i] {
			t.Fatalf("executed %v, want %v", log, want)
		}
	}
}

func TestGraphDisabledPassSkipped(t *testing.T) {
	g, cleanup := newTestGraph(t)
	defer cleanup()

	bloomOn := false
	g.Registry().Register(Descriptor{
		ID:  "fx.bloom",
		Get: func() (any, error) { return bloomOn, nil },
	})

	var log []string
	g.AddPass(logPass(PassConfig{ID: "source", Outputs: []Output{{Resource: "raw"}}}, &log))
	g.AddPass(logPass(PassConfig{
		ID:      "bloom",
		Inputs:  []Input{{Resource: "raw"}},
		Outputs: []Output{{Resource: "lit"}},
		Enabled: EnabledWhen("fx.bloom"),
	}, &log))

	if err := g.Execute(32, 32); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(log) != 1 || log[0] != "source" {
		t.Fatalf("executed %v, want only source", log)
	}
	if s := g.Stats(); s.Executed != 1 || s.Skipped != 1 {
		t.Errorf("Stats = %+v, want Executed 1 Skipped 1", s)
	}

	bloomOn = true
	log = log[:0]
	if err := g.Execute(32, 32); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("executed %v, want source and bloom", log)
	}
}

func TestGraphPredicateSeesFrozenSnapshot(t *testing.T) {
	g, cleanup := newTestGraph(t)
	defer cleanup()

	enabled := true
	g.Registry().Register(Descriptor{
		ID:  "fx.on",
		Get: func() (any, error) { return enabled, nil },
	})

	var log []string
	// The first pass flips the host variable mid-frame. The second
	// pass's predicate must still see the value frozen at capture.
	g.AddPass(newScriptedPass(PassConfig{
		ID:       "mutator",
		Priority: -100,
		Outputs:  []Output{{Resource: "m"}},
	}, func(*RenderContext) error {
		enabled = false
		return nil
	}))
	g.AddPass(logPass(PassConfig{
		ID:      "gated",
		Outputs: []Output{{Resource: "g"}},
		Enabled: EnabledWhen("fx.on"),
	}, &log))

	if err := g.Execute(16, 16); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(log) != 1 {
		t.Fatal("gated pass must run: its predicate reads the frame snapshot, not live state")
	}
}

func TestGraphDegenerateSize(t *testing.T) {
	g, cleanup := newTestGraph(t)
	defer cleanup()

	captured := 0
	g.Registry().Register(Descriptor{
		ID:  "tick",
		Get: func() (any, error) { captured++; return captured, nil },
	})

	executed := false
	g.AddPass(newScriptedPass(PassConfig{
		ID:      "p",
		Outputs: []Output{{Resource: "out"}},
	}, func(*RenderContext) error {
		executed = true
		return nil
	}))

	if err := g.Execute(0, 64); err != nil {
		t.Fatalf("Execute(0, 64) = %v, want nil", err)
	}
	if executed {
		t.Error("pass ran for a zero-width frame")
	}
	// External state still advances on degenerate frames.
	if captured != 1 {
		t.Errorf("captures = %d, want 1", captured)
	}
	if g.Registry().FrameNumber() != 1 {
		t.Errorf("FrameNumber = %d, want 1", g.Registry().FrameNumber())
	}
	if s := g.Stats(); s.Executed != 0 || s.Width != 0 || s.Height != 64 {
		t.Errorf("Stats = %+v, want zero Executed with recorded size", s)
	}
}

func TestGraphAmbientStateRestored(t *testing.T) {
	g, cleanup := newTestGraph(t)
	defer cleanup()

	r := render.NewRendererState()
	s := &render.SceneState{Background: "sky"}
	c := render.NewCameraState()
	g.SetAmbient(r, s, c)

	g.AddPass(newScriptedPass(PassConfig{
		ID:      "scribbler",
		Outputs: []Output{{Resource: "out"}},
	}, func(ctx *RenderContext) error {
		ctx.Renderer.RenderState().ClearAlpha = 0
		ctx.Renderer.RenderState().AutoClear = false
		ctx.Scene.SceneState().OverrideMaterial = "normals"
		ctx.Camera.CameraState().LayerMask = 0xFF
		return nil
	}))

	if err := g.Execute(16, 16); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if r.ClearAlpha != 1 || !r.AutoClear {
		t.Errorf("renderer state leaked: %+v", r)
	}
	if s.OverrideMaterial != nil || s.Background != "sky" {
		t.Errorf("scene state leaked: %+v", s)
	}
	if c.LayerMask != 1 {
		t.Errorf("camera state leaked: LayerMask = %#x", c.LayerMask)
	}
}

func TestGraphPassErrorAbortsFrame(t *testing.T) {
	g, cleanup := newTestGraph(t)
	defer cleanup()

	boom := errors.New("pipeline exploded")
	var log []string
	g.AddPass(logPass(PassConfig{ID: "a", Outputs: []Output{{Resource: "ra"}}}, &log))
	g.AddPass(newScriptedPass(PassConfig{
		ID:      "b",
		Inputs:  []Input{{Resource: "ra"}},
		Outputs: []Output{{Resource: "rb"}},
	}, func(*RenderContext) error {
		return boom
	}))
	g.AddPass(logPass(PassConfig{
		ID:      "c",
		Inputs:  []Input{{Resource: "rb"}},
		Outputs: []Output{{Resource: "rc"}},
	}, &log))

	err := g.Execute(32, 32)
	if !errors.Is(err, boom) {
		t.Fatalf("Execute = %v, want the pass's own error", err)
	}
	if len(log) != 1 || log[0] != "a" {
		t.Errorf("executed %v, want only a before the failure", log)
	}
	if g.barrier.HasCapturedState() {
		t.Error("barrier still holds a snapshot after the failing pass")
	}

	// The next frame is unaffected.
	if err := g.Execute(32, 32); !errors.Is(err, boom) {
		t.Fatalf("second Execute = %v, want same failure", err)
	}
}

func TestGraphFrameCleanups(t *testing.T) {
	g, cleanup := newTestGraph(t)
	defer cleanup()

	var order []string
	g.AddPass(newScriptedPass(PassConfig{
		ID:      "p",
		Outputs: []Output{{Resource: "out"}},
	}, func(ctx *RenderContext) error {
		ctx.Defer(func() { order = append(order, "first") })
		ctx.Defer(func() { order = append(order, "second") })
		return nil
	}))

	if err := g.Execute(16, 16); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Fatalf("cleanups ran as %v, want reverse registration order", order)
	}

	order = order[:0]
	if err := g.Execute(16, 16); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(order) != 2 {
		t.Fatalf("cleanups from the first frame leaked into the second: %v", order)
	}
}

func TestGraphCleanupsRunOnPassError(t *testing.T) {
	g, cleanup := newTestGraph(t)
	defer cleanup()

	released := false
	g.AddPass(newScriptedPass(PassConfig{
		ID:      "p",
		Outputs: []Output{{Resource: "out"}},
	}, func(ctx *RenderContext) error {
		ctx.Defer(func() { released = true })
		return errors.New("after allocating")
	}))

	if err := g.Execute(16, 16); err == nil {
		t.Fatal("Execute should fail")
	}
	if !released {
		t.Error("per-frame resource not released on the error path")
	}
}

func TestGraphUndeclaredAccess(t *testing.T) {
	g, cleanup := newTestGraph(t)
	defer cleanup()

	g.AddPass(logPass(PassConfig{ID: "other", Outputs: []Output{{Resource: "secret"}}}, &[]string{}))
	g.AddPass(newScriptedPass(PassConfig{
		ID:      "snoop",
		Inputs:  []Input{{Resource: "secret"}},
		Outputs: []Output{{Resource: "out"}},
	}, func(ctx *RenderContext) error {
		_, err := ctx.ReadTexture("undeclared", AttachmentColor)
		return err
	}))

	if err := g.Execute(16, 16); !errors.Is(err, ErrUndeclaredAccess) {
		t.Fatalf("Execute = %v, want ErrUndeclaredAccess", err)
	}
}

func TestGraphDisabledProducerStillReadable(t *testing.T) {
	g, cleanup := newTestGraph(t)
	defer cleanup()

	g.AddPass(newScriptedPass(PassConfig{
		ID:      "producer",
		Outputs: []Output{{Resource: "tex"}},
		Enabled: func(*Frame) bool { return false },
	}, nil))

	sawView := false
	g.AddPass(newScriptedPass(PassConfig{
		ID:      "consumer",
		Inputs:  []Input{{Resource: "tex"}},
		Outputs: []Output{{Resource: "out"}},
	}, func(ctx *RenderContext) error {
		view, err := ctx.ReadTexture("tex", AttachmentColor)
		if err != nil {
			return err
		}
		sawView = view != nil
		return nil
	}))

	if err := g.Execute(32, 32); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !sawView {
		t.Error("consumer must resolve a live view even when the producer is disabled")
	}
}

func TestGraphOutput(t *testing.T) {
	g, cleanup := newTestGraph(t)
	defer cleanup()

	if _, err := g.Output(); !errors.Is(err, ErrNoOutput) {
		t.Fatalf("Output before first frame = %v, want ErrNoOutput", err)
	}

	g.AddPass(newScriptedPass(PassConfig{ID: "a", Outputs: []Output{{Resource: "raw"}}}, nil))
	g.AddPass(newScriptedPass(PassConfig{
		ID:      "b",
		Inputs:  []Input{{Resource: "raw"}},
		Outputs: []Output{{Resource: "final"}},
	}, nil))

	if err := g.Execute(32, 32); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	view, err := g.Output()
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	if view == nil {
		t.Fatal("Output returned a nil view")
	}

	// An explicit output overrides terminal detection.
	g.SetOutput("raw")
	if err := g.Execute(32, 32); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if _, err := g.Output(); err != nil {
		t.Fatalf("Output after SetOutput failed: %v", err)
	}
}

func TestGraphValidationFailure(t *testing.T) {
	g, cleanup := newTestGraph(t)
	defer cleanup()

	g.AddPass(newScriptedPass(PassConfig{ID: "p1", Outputs: []Output{{Resource: "same"}}}, nil))
	g.AddPass(newScriptedPass(PassConfig{ID: "p2", Outputs: []Output{{Resource: "same"}}}, nil))

	if err := g.Execute(16, 16); !errors.Is(err, ErrDuplicateOutput) {
		t.Fatalf("Execute = %v, want ErrDuplicateOutput", err)
	}
}

func TestGraphRecovery(t *testing.T) {
	g, cleanup := newTestGraph(t)
	defer cleanup()

	plain := newScriptedPass(PassConfig{ID: "plain", Outputs: []Output{{Resource: "a"}}}, nil)
	inv := &invalidatingPass{scriptedPass: scriptedPass{
		BasePass: NewBasePass(PassConfig{
			ID:      "smart",
			Inputs:  []Input{{Resource: "a"}},
			Outputs: []Output{{Resource: "b"}},
		}),
	}}
	g.AddPass(plain)
	g.AddPass(inv)

	if err := g.Execute(32, 32); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var events []RecoveryEvent
	unsubscribe := g.Recovery().AddListener(func(e RecoveryEvent) {
		events = append(events, e)
	})
	defer unsubscribe()

	g.Recover()

	if inv.invalidations != 1 {
		t.Errorf("invalidations = %d, want 1 (GPUInvalidator path)", inv.invalidations)
	}
	if plain.disposals != 1 {
		t.Errorf("disposals = %d, want 1 (fallback path)", plain.disposals)
	}
	if len(events) == 0 {
		t.Fatal("no recovery events observed")
	}
	last := events[len(events)-1]
	if last.Kind != RecoveryComplete {
		t.Errorf("last event = %v, want RecoveryComplete", last.Kind)
	}

	// The graph reallocates lazily and renders again.
	if err := g.Execute(32, 32); err != nil {
		t.Fatalf("Execute after Recover failed: %v", err)
	}
	if _, err := g.Output(); err != nil {
		t.Fatalf("Output after Recover failed: %v", err)
	}
}

func TestGraphDispose(t *testing.T) {
	g, cleanup := newTestGraph(t)
	defer cleanup()

	p := newScriptedPass(PassConfig{ID: "p", Outputs: []Output{{Resource: "out"}}}, nil)
	g.AddPass(p)
	if err := g.Execute(16, 16); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	g.Dispose()
	g.Dispose()
	if p.disposals != 1 {
		t.Errorf("disposals = %d, want 1 for repeated graph Dispose", p.disposals)
	}
	if err := g.Execute(16, 16); !errors.Is(err, ErrGraphDisposed) {
		t.Fatalf("Execute after Dispose = %v, want ErrGraphDisposed", err)
	}
}

func TestGraphAddNilPass(t *testing.T) {
	g, cleanup := newTestGraph(t)
	defer cleanup()

	g.AddPass(nil)
	g.AddPass(newScriptedPass(PassConfig{ID: "p", Outputs: []Output{{Resource: "out"}}}, nil))
	if err := g.Execute(16, 16); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
}

func TestGraphDebugInfo(t *testing.T) {
	g, cleanup := newTestGraph(t)
	defer cleanup()

	g.AddPass(newScriptedPass(PassConfig{
		ID:      "shade",
		Name:    "scene shading",
		Outputs: []Output{{Resource: "raw", Depth: true}},
	}, nil))
	g.AddPass(newScriptedPass(PassConfig{
		ID: "fog",
		Inputs: []Input{
			{Resource: "raw"},
			{Resource: "raw", Attachment: AttachmentDepth},
		},
		Outputs: []Output{{Resource: "final"}},
	}, nil))
	g.Registry().Register(Descriptor{
		ID:  "fog.density",
		Get: func() (any, error) { return 0.5, nil },
	})

	if err := g.Execute(32, 32); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	info := g.DebugInfo()
	for _, want := range []string{
		"scene shading",
		"raw+depth",
		"raw:depth",
		"output: final",
		"fog.density",
	} {
		if !strings.Contains(info, want) {
			t.Errorf("DebugInfo missing %q:\n%s", want, info)
		}
	}
}

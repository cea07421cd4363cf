// Command fgdemo runs the post-processing graph headlessly on the noop
// GPU backend: it builds the canonical effect chain, renders a few
// frames, simulates a graphics-context loss, and hot-reloads effect
// parameters from a TOML file.
package main

import (
	"flag"
	"fmt"
	"image/png"
	"log"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/effect"
	"github.com/gogpu/framegraph/render"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// demoHandle exposes the noop HAL device to the graph the way a gogpu
// context exposes its real one.
type demoHandle struct {
	device hal.Device
	queue  hal.Queue
}

func (h *demoHandle) Device() gpucontext.Device   { return nil }
func (h *demoHandle) Queue() gpucontext.Queue     { return nil }
func (h *demoHandle) Adapter() gpucontext.Adapter { return nil }
func (h *demoHandle) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}
func (h *demoHandle) HalDevice() any { return h.device }
func (h *demoHandle) HalQueue() any  { return h.queue }

// params is the TOML-backed effect configuration.
type params struct {
	Bloom struct {
		Enabled   bool    `toml:"enabled"`
		Strength  float32 `toml:"strength"`
		Radius    float32 `toml:"radius"`
		Threshold float32 `toml:"threshold"`
		Levels    int     `toml:"levels"`
		HDRPeak   float32 `toml:"hdr_peak"`
	} `toml:"bloom"`
	Lensing struct {
		Enabled  bool    `toml:"enabled"`
		Strength float32 `toml:"strength"`
		CenterX  float32 `toml:"center_x"`
		CenterY  float32 `toml:"center_y"`
	} `toml:"lensing"`
	Composite struct {
		NormalWeight float32    `toml:"normal_weight"`
		Background   [4]float64 `toml:"background"`
	} `toml:"composite"`
}

func defaultParams() params {
	var p params
	p.Bloom.Enabled = true
	p.Bloom.Strength = 1
	p.Bloom.Radius = 1
	p.Bloom.Threshold = 0.8
	p.Bloom.Levels = 3
	p.Bloom.HDRPeak = 8
	p.Lensing.Enabled = true
	p.Lensing.Strength = 0.05
	p.Lensing.CenterX = 0.5
	p.Lensing.CenterY = 0.5
	p.Composite.NormalWeight = 0.25
	p.Composite.Background = [4]float64{0.02, 0.02, 0.05, 1}
	return p
}

func loadParams(path string) (params, error) {
	p := defaultParams()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse %s: %w", path, err)
	}
	return p, nil
}

// paramStore shares the current parameters between the render loop and
// the config watcher goroutine.
type paramStore struct {
	mu sync.RWMutex
	p  params
}

func (s *paramStore) get() params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p
}

func (s *paramStore) set(p params) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

func main() {
	var (
		width  = flag.Int("width", 800, "frame width")
		height = flag.Int("height", 600, "frame height")
		frames = flag.Int("frames", 8, "frames to render")
		config = flag.String("config", "", "TOML effect parameters (optional)")
		watch  = flag.Bool("watch", false, "hot-reload the config file on change")
		output = flag.String("output", "", "write the final frame as PNG (optional)")
		debug  = flag.Bool("debug", false, "verbose graph logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	framegraph.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	store := &paramStore{p: defaultParams()}
	if *config != "" {
		p, err := loadParams(*config)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		store.set(p)
	}

	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		log.Fatalf("Failed to create instance: %v", err)
	}
	defer instance.Destroy()
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		log.Fatalf("Failed to open adapter: %v", err)
	}
	defer openDev.Device.Destroy()

	g, err := framegraph.New(&demoHandle{device: openDev.Device, queue: openDev.Queue})
	if err != nil {
		log.Fatalf("Failed to create graph: %v", err)
	}
	defer g.Dispose()
	g.Recovery().AddListener(framegraph.LogEvents(nil))
	g.SetAmbient(render.NewRendererState(), &render.SceneState{}, render.NewCameraState())

	bloom, lensing, composite := buildChain(g, store)
	registerToggles(g.Registry(), store)
	applyParams(store.get(), bloom, lensing, composite)

	if *watch && *config != "" {
		stop, err := watchConfig(*config, store, func(p params) {
			registerToggles(g.Registry(), store)
			applyParams(p, bloom, lensing, composite)
			fmt.Printf("reloaded %s\n", *config)
		})
		if err != nil {
			log.Fatalf("Failed to watch config: %v", err)
		}
		defer stop()
	}

	for frame := 0; frame < *frames; frame++ {
		if frame == *frames/2 {
			fmt.Println("simulating graphics context loss")
			g.Recover()
		}
		if err := g.Execute(uint32(*width), uint32(*height)); err != nil {
			log.Fatalf("Frame %d failed: %v", frame, err)
		}
		printStats(g.Stats())
		if *watch {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Print(g.DebugInfo())

	if *output != "" {
		img, err := g.CaptureOutput()
		if err != nil {
			log.Fatalf("Failed to capture output: %v", err)
		}
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", *output, err)
		}
		defer f.Close()
		if err := png.Encode(f, img); err != nil {
			log.Fatalf("Failed to encode PNG: %v", err)
		}
		fmt.Printf("final frame saved to %s (%dx%d)\n", *output, *width, *height)
	}
}

// buildChain assembles scene and normal sources feeding bloom, lensing,
// composite, and environment composite.
func buildChain(g *framegraph.Graph, store *paramStore) (*effect.Bloom, *effect.Lensing, *effect.Composite) {
	g.AddPass(effect.NewSceneSource("scene", effect.SceneSourceConfig{
		Output:     "scene",
		WithDepth:  true,
		Layers:     1,
		ClearColor: gputypes.Color{R: 0.05, G: 0.07, B: 0.12, A: 1},
		ClearAlpha: 1,
		AutoClear:  true,
		Priority:   -10,
		OnStats: func(s effect.RenderStats) {
			if s.DrawCalls > 0 {
				fmt.Printf("  scene: %d draws, %d triangles\n", s.DrawCalls, s.Triangles)
			}
		},
	}))
	g.AddPass(effect.NewNormalSource("normals", effect.NormalSourceConfig{
		Output:    "normals",
		WithDepth: true,
		Layers:    1,
		Material:  "normal-override",
		Priority:  -10,
	}))

	bloom := effect.NewBloom("bloom", effect.BloomConfig{
		Input:   "scene",
		Output:  "bloomed",
		Enabled: framegraph.EnabledWhen("fx.bloom"),
	})
	g.AddPass(bloom)

	lensing := effect.NewLensing("lensing", effect.LensingConfig{
		Input:   "bloomed",
		Output:  "lensed",
		Enabled: framegraph.EnabledWhen("fx.lensing"),
	})
	g.AddPass(lensing)

	bg := store.get().Composite.Background
	composite := effect.NewComposite("composite", effect.CompositeConfig{
		Inputs: []effect.CompositeInput{
			{Resource: "lensed", Mode: effect.BlendAdd, Weight: 1},
			{Resource: "normals", Mode: effect.BlendMultiply, Weight: 0.25},
		},
		Output:     "combined",
		Background: gputypes.Color{R: bg[0], G: bg[1], B: bg[2], A: bg[3]},
	})
	g.AddPass(composite)

	g.AddPass(effect.NewEnvComposite("env", effect.EnvCompositeConfig{
		Environment: "combined",
		Foreground:  "scene",
		Output:      "final",
	}))

	return bloom, lensing, composite
}

// registerToggles publishes the enable flags into the graph's registry.
// Registering again replaces the previous descriptors, which is how a
// config reload takes effect on the next frame.
func registerToggles(reg *framegraph.Registry, store *paramStore) {
	reg.Register(framegraph.Descriptor{
		ID:          "fx.bloom",
		Description: "bloom enabled",
		Get:         func() (any, error) { return store.get().Bloom.Enabled, nil },
	})
	reg.Register(framegraph.Descriptor{
		ID:          "fx.lensing",
		Description: "lensing enabled",
		Get:         func() (any, error) { return store.get().Lensing.Enabled, nil },
	})
}

func applyParams(p params, bloom *effect.Bloom, lensing *effect.Lensing, composite *effect.Composite) {
	bloom.SetStrength(p.Bloom.Strength)
	bloom.SetRadius(p.Bloom.Radius)
	bloom.SetThreshold(p.Bloom.Threshold)
	bloom.SetLevels(p.Bloom.Levels)
	bloom.SetHDRPeak(p.Bloom.HDRPeak)
	lensing.SetStrength(p.Lensing.Strength)
	lensing.SetCenter(p.Lensing.CenterX, p.Lensing.CenterY)
	composite.SetWeight("normals", p.Composite.NormalWeight)
	bg := p.Composite.Background
	composite.SetBackground(gputypes.Color{R: bg[0], G: bg[1], B: bg[2], A: bg[3]})
}

// watchConfig reloads the file whenever it is written and hands the new
// parameters to apply. Editors that replace the file on save produce
// Create or Rename events, so those re-arm the watch.
func watchConfig(path string, store *paramStore, apply func(params)) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if event.Op&fsnotify.Rename != 0 {
					// Re-arm after an atomic replace.
					_ = watcher.Add(path)
				}
				p, err := loadParams(path)
				if err != nil {
					framegraph.Logger().Warn("config reload failed", "path", path, "error", err)
					continue
				}
				store.set(p)
				apply(p)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				framegraph.Logger().Warn("config watch error", "error", err)
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}

func printStats(s framegraph.FrameStats) {
	var cpu time.Duration
	for _, t := range s.Timings {
		cpu += t.Duration
	}
	fmt.Printf("frame %d: %dx%d, %d passes run, %d skipped, %v cpu\n",
		s.Frame, s.Width, s.Height, s.Executed, s.Skipped, cpu.Round(time.Microsecond))
}

//go:build !nogpu

package effect

import (
	"fmt"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// RenderStats reports what a source pass drew in one frame.
type RenderStats struct {
	DrawCalls int
	Triangles int
	Lines     int
	Points    int
}

// DrawFunc records host geometry into an open render pass. The returned
// stats feed the pass's statistics callback.
type DrawFunc func(ctx *framegraph.RenderContext, rp hal.RenderPassEncoder) (RenderStats, error)

// SceneSourceConfig wires a scene source into the graph.
type SceneSourceConfig struct {
	// Output is the resource id the pass writes. Required.
	Output string

	// WithDepth allocates a depth channel on the output so downstream
	// passes can read it with framegraph.AttachmentDepth.
	WithDepth bool

	// Layers is the camera layer mask applied for the draw. Zero leaves
	// the camera's current mask untouched.
	Layers uint32

	// ClearColor and ClearAlpha fill the target before drawing when
	// AutoClear is set.
	ClearColor gputypes.Color
	ClearAlpha float32
	AutoClear  bool

	Priority int
	Enabled  func(*framegraph.Frame) bool

	// Draw records the host's geometry. A nil Draw clears only.
	Draw DrawFunc

	// OnStats receives draw statistics after each executed frame.
	OnStats func(RenderStats)
}

// SceneSource renders host content into a graph target. The ambient
// settings it applies for its draw (camera layer mask, renderer clear
// state) are restored by the graph's state barrier afterwards.
type SceneSource struct {
	framegraph.BasePass

	output     string
	withDepth  bool
	layers     uint32
	clearColor gputypes.Color
	clearAlpha float32
	autoClear  bool
	draw       DrawFunc
	onStats    func(RenderStats)
}

// NewSceneSource creates a scene source pass with the given graph id.
func NewSceneSource(id string, cfg SceneSourceConfig) *SceneSource {
	return &SceneSource{
		BasePass: framegraph.NewBasePass(framegraph.PassConfig{
			ID:       id,
			Name:     "scene source",
			Priority: cfg.Priority,
			Outputs: []framegraph.Output{
				{Resource: cfg.Output, Depth: cfg.WithDepth},
			},
			Enabled: cfg.Enabled,
		}),
		output:     cfg.Output,
		withDepth:  cfg.WithDepth,
		layers:     cfg.Layers,
		clearColor: cfg.ClearColor,
		clearAlpha: cfg.ClearAlpha,
		autoClear:  cfg.AutoClear,
		draw:       cfg.Draw,
		onStats:    cfg.OnStats,
	}
}

// SetLayers changes the camera layer mask applied during the draw.
func (p *SceneSource) SetLayers(mask uint32) { p.layers = mask }

// SetClearColor changes the clear color and alpha.
func (p *SceneSource) SetClearColor(c gputypes.Color, alpha float32) {
	p.clearColor = c
	p.clearAlpha = alpha
}

// SetAutoClear toggles clearing the target before the draw.
func (p *SceneSource) SetAutoClear(on bool) { p.autoClear = on }

// Execute applies the pass's ambient settings, opens a render pass on
// the output target, and hands it to the host's draw callback.
func (p *SceneSource) Execute(ctx *framegraph.RenderContext) error {
	if ctx.Width == 0 || ctx.Height == 0 {
		return nil
	}

	p.applyAmbient(ctx)

	rp, err := beginSourcePass(ctx, p.output, p.withDepth, p.autoClear, p.clearColor, p.clearAlpha)
	if err != nil {
		return err
	}

	stats := RenderStats{}
	if p.draw != nil {
		stats, err = p.draw(ctx, rp)
	}
	rp.End()
	if err != nil {
		return fmt.Errorf("scene source %q: %w", p.Config().ID, err)
	}

	if p.onStats != nil {
		p.onStats(stats)
	}
	return nil
}

// applyAmbient pushes the pass's draw settings into the shared state.
// The graph's barrier restores the previous values after the pass.
func (p *SceneSource) applyAmbient(ctx *framegraph.RenderContext) {
	if ctx.Camera != nil && p.layers != 0 {
		ctx.Camera.CameraState().LayerMask = p.layers
	}
	if ctx.Renderer != nil {
		rs := ctx.Renderer.RenderState()
		rs.ClearColor = p.clearColor
		rs.ClearAlpha = p.clearAlpha
		rs.AutoClear = p.autoClear
	}
}

// beginSourcePass opens a render pass on a declared output, optionally
// clearing color and depth.
func beginSourcePass(ctx *framegraph.RenderContext, output string, withDepth, autoClear bool, clearColor gputypes.Color, clearAlpha float32) (hal.RenderPassEncoder, error) {
	view, err := ctx.WriteTarget(output)
	if err != nil {
		return nil, err
	}

	colorAtt := hal.RenderPassColorAttachment{
		View:    view,
		LoadOp:  gputypes.LoadOpLoad,
		StoreOp: gputypes.StoreOpStore,
	}
	if autoClear {
		colorAtt.LoadOp = gputypes.LoadOpClear
		colorAtt.ClearValue = gputypes.Color{
			R: clearColor.R, G: clearColor.G, B: clearColor.B, A: float64(clearAlpha),
		}
	}

	rpDesc := &hal.RenderPassDescriptor{
		Label:            "fg_" + output + "_source",
		ColorAttachments: []hal.RenderPassColorAttachment{colorAtt},
	}
	if withDepth {
		depthView, err := ctx.WriteDepth(output)
		if err != nil {
			return nil, err
		}
		rpDesc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              depthView,
			DepthLoadOp:       gputypes.LoadOpClear,
			DepthStoreOp:      gputypes.StoreOpStore,
			DepthClearValue:   1.0,
			StencilLoadOp:     gputypes.LoadOpClear,
			StencilStoreOp:    gputypes.StoreOpDiscard,
			StencilClearValue: 0,
		}
	}
	return ctx.Encoder.BeginRenderPass(rpDesc), nil
}

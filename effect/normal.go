//go:build !nogpu

package effect

import (
	"fmt"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/gputypes"
)

// NormalSourceConfig wires a normal source into the graph.
type NormalSourceConfig struct {
	// Output is the resource id the pass writes. Required.
	Output string

	// WithDepth allocates a depth channel on the output.
	WithDepth bool

	// Layers is the camera layer mask applied for the draw. Zero leaves
	// the camera's current mask untouched.
	Layers uint32

	// Material is the host-owned override material that shades geometry
	// as normals. It is installed on the scene for the duration of the
	// draw and restored by the state barrier.
	Material any

	Priority int
	Enabled  func(*framegraph.Frame) bool

	// Draw records the host's geometry, shaded by the override material.
	Draw DrawFunc

	// OnStats receives draw statistics after each executed frame.
	OnStats func(RenderStats)
}

// NormalSource renders host geometry with a normal-output override
// material, producing a per-pixel normal buffer for downstream effects.
// The target clears to the encoding of a camera-facing normal.
type NormalSource struct {
	framegraph.BasePass

	output    string
	withDepth bool
	layers    uint32
	material  any
	draw      DrawFunc
	onStats   func(RenderStats)
}

// NewNormalSource creates a normal source pass with the given graph id.
func NewNormalSource(id string, cfg NormalSourceConfig) *NormalSource {
	return &NormalSource{
		BasePass: framegraph.NewBasePass(framegraph.PassConfig{
			ID:       id,
			Name:     "normal source",
			Priority: cfg.Priority,
			Outputs: []framegraph.Output{
				{Resource: cfg.Output, Depth: cfg.WithDepth},
			},
			Enabled: cfg.Enabled,
		}),
		output:    cfg.Output,
		withDepth: cfg.WithDepth,
		layers:    cfg.Layers,
		material:  cfg.Material,
		draw:      cfg.Draw,
		onStats:   cfg.OnStats,
	}
}

// SetMaterial swaps the override material used for subsequent frames.
func (p *NormalSource) SetMaterial(m any) { p.material = m }

// SetLayers changes the camera layer mask applied during the draw.
func (p *NormalSource) SetLayers(mask uint32) { p.layers = mask }

// Execute installs the override material, draws the scene, and writes
// the normal buffer.
func (p *NormalSource) Execute(ctx *framegraph.RenderContext) error {
	if ctx.Width == 0 || ctx.Height == 0 {
		return nil
	}

	if ctx.Camera != nil && p.layers != 0 {
		ctx.Camera.CameraState().LayerMask = p.layers
	}
	if ctx.Scene != nil {
		ctx.Scene.SceneState().OverrideMaterial = p.material
	}

	// +Z in the 0..1 normal encoding: flat, camera-facing.
	clear := gputypes.Color{R: 0.5, G: 0.5, B: 1, A: 1}
	rp, err := beginSourcePass(ctx, p.output, p.withDepth, true, clear, 1)
	if err != nil {
		return err
	}

	stats := RenderStats{}
	if p.draw != nil {
		stats, err = p.draw(ctx, rp)
	}
	rp.End()
	if err != nil {
		return fmt.Errorf("normal source %q: %w", p.Config().ID, err)
	}

	if p.onStats != nil {
		p.onStats(stats)
	}
	return nil
}

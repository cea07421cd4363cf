//go:build !nogpu

package effect

import (
	_ "embed"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/internal/gpu"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/lensing.wgsl
var lensingShaderSource string

// defaultLensingStrength sets the apparent Einstein radius when the host
// does not configure one.
const defaultLensingStrength = 0.05

// LensingConfig wires a gravitational-lensing pass into the graph.
type LensingConfig struct {
	// Input is the environment color resource to distort. Required.
	Input string

	// Output is the resource id the distorted copy is written to.
	// Required.
	Output string

	// Strength controls how far the warp reaches from the center, in
	// normalized screen units squared. Zero means the default of 0.05.
	Strength float32

	Priority int
	Enabled  func(*framegraph.Frame) bool
}

// Lensing warps an environment buffer around a movable center point,
// bending background texels the way a compact mass bends light. The
// center defaults to mid-screen and can be overridden per frame.
type Lensing struct {
	framegraph.BasePass

	input  string
	output string

	strength float32
	centerX  float32
	centerY  float32

	pipe    *gpu.Pipeline
	sampler hal.Sampler
	device  hal.Device
}

// NewLensing creates a lensing pass reading cfg.Input and writing
// cfg.Output.
func NewLensing(id string, cfg LensingConfig) *Lensing {
	p := &Lensing{
		BasePass: framegraph.NewBasePass(framegraph.PassConfig{
			ID:       id,
			Name:     "lensing",
			Priority: cfg.Priority,
			Inputs:   []framegraph.Input{{Resource: cfg.Input}},
			Outputs:  []framegraph.Output{{Resource: cfg.Output}},
			Enabled:  cfg.Enabled,
		}),
		input:    cfg.Input,
		output:   cfg.Output,
		strength: defaultLensingStrength,
		centerX:  0.5,
		centerY:  0.5,
	}
	if cfg.Strength != 0 {
		p.strength = cfg.Strength
	}
	return p
}

// SetCenter overrides the distortion center in normalized coordinates.
// Both components are clamped to [0, 1].
func (p *Lensing) SetCenter(x, y float32) {
	p.centerX = math32.Min(math32.Max(x, 0), 1)
	p.centerY = math32.Min(math32.Max(y, 0), 1)
}

// Center returns the current distortion center.
func (p *Lensing) Center() (x, y float32) {
	return p.centerX, p.centerY
}

// SetStrength sets the warp reach in normalized units squared.
func (p *Lensing) SetStrength(v float32) { p.strength = v }

// Execute writes the distorted copy of the input into the output.
func (p *Lensing) Execute(ctx *framegraph.RenderContext) error {
	if ctx.Width == 0 || ctx.Height == 0 {
		return nil
	}
	if err := p.ensurePipeline(ctx.Device, ctx.Format); err != nil {
		return fmt.Errorf("lensing %q: %w", p.Config().ID, err)
	}

	srcView, err := ctx.ReadTexture(p.input, framegraph.AttachmentColor)
	if err != nil {
		return fmt.Errorf("lensing %q: %w", p.Config().ID, err)
	}
	outView, err := ctx.WriteTarget(p.output)
	if err != nil {
		return fmt.Errorf("lensing %q: %w", p.Config().ID, err)
	}

	var data [16]byte
	off := gpu.PutVec2(data[:], 0, p.centerX, p.centerY)
	off = gpu.PutFloat32(data[:], off, p.strength)
	gpu.PutFloat32(data[:], off, float32(ctx.Width)/float32(ctx.Height))

	buf, err := gpu.UploadUniform(ctx.Device, ctx.Queue, "lensing_params", data[:])
	if err != nil {
		return fmt.Errorf("lensing %q: %w", p.Config().ID, err)
	}
	ctx.Defer(func() { ctx.Device.DestroyBuffer(buf) })

	bg, err := p.pipe.CreateBindGroup("lensing_bind", []gputypes.BindGroupEntry{
		gpu.BindBuffer(0, buf, uint64(len(data))),
		gpu.BindTexture(1, srcView),
		gpu.BindSampler(2, p.sampler),
	})
	if err != nil {
		return fmt.Errorf("lensing %q: %w", p.Config().ID, err)
	}
	ctx.Defer(func() { ctx.Device.DestroyBindGroup(bg) })

	rp := gpu.BeginColorPass(ctx.Encoder, "lensing", outView, nil)
	p.pipe.Draw(rp, bg)
	rp.End()
	return nil
}

func (p *Lensing) ensurePipeline(device hal.Device, format gputypes.TextureFormat) error {
	if p.pipe != nil {
		return nil
	}
	p.device = device

	pipe, err := gpu.NewPipeline(device, gpu.PipelineSpec{
		Label:  "lensing",
		Source: lensingShaderSource,
		Format: format,
		Entries: []gputypes.BindGroupLayoutEntry{
			gpu.UniformEntry(0),
			gpu.TextureEntry(1),
			gpu.SamplerEntry(2),
		},
	})
	if err != nil {
		return err
	}
	p.pipe = pipe

	sampler, err := gpu.NewLinearSampler(device, "lensing_sampler")
	if err != nil {
		p.Dispose()
		return err
	}
	p.sampler = sampler
	return nil
}

// Dispose releases the pass's pipeline and sampler. Safe to call more
// than once.
func (p *Lensing) Dispose() {
	if p.pipe != nil {
		p.pipe.Destroy()
		p.pipe = nil
	}
	if p.sampler != nil && p.device != nil {
		p.device.DestroySampler(p.sampler)
		p.sampler = nil
	}
	p.device = nil
}

// InvalidateGPU forgets the pipeline and sampler without destroying
// them, for use after a context loss.
func (p *Lensing) InvalidateGPU() {
	p.pipe = nil
	p.sampler = nil
	p.device = nil
}

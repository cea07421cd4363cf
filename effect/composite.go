//go:build !nogpu

package effect

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/internal/gpu"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/composite.wgsl
var compositeShaderSource string

// BlendMode selects how one composite input combines with the layers
// beneath it. The numeric values match the mode switch in
// composite.wgsl.
type BlendMode uint32

const (
	BlendAdd BlendMode = iota
	BlendMultiply
	BlendScreen
	BlendAlpha
	BlendOverlay
)

// String returns the blend mode name for diagnostics.
func (m BlendMode) String() string {
	switch m {
	case BlendAdd:
		return "add"
	case BlendMultiply:
		return "multiply"
	case BlendScreen:
		return "screen"
	case BlendAlpha:
		return "alpha"
	case BlendOverlay:
		return "overlay"
	}
	return fmt.Sprintf("blend(%d)", uint32(m))
}

// CompositeInput declares one layer of a composite pass.
type CompositeInput struct {
	// Resource is the color resource id this layer reads.
	Resource string

	// Mode selects how the layer combines with the layers beneath it.
	Mode BlendMode

	// Weight scales the layer's contribution. Zero means the default
	// of 1.
	Weight float32
}

// CompositeConfig wires a composite pass into the graph.
type CompositeConfig struct {
	// Inputs are the layers, combined bottom-up in declaration order.
	Inputs []CompositeInput

	// Output is the resource id the pass writes. Required.
	Output string

	// Background is the color beneath the bottom layer. The zero value
	// is transparent black.
	Background gputypes.Color

	Priority int
	Enabled  func(*framegraph.Frame) bool
}

// Composite folds any number of input layers over a background color
// into one output, one fullscreen draw per layer. Intermediate results
// ping-pong through two privately owned scratch buffers; the final
// layer draws straight into the declared output.
type Composite struct {
	framegraph.BasePass

	inputs     []CompositeInput
	output     string
	background gputypes.Color

	pipe    *gpu.Pipeline
	sampler hal.Sampler
	device  hal.Device

	scratch [2]*gpu.Target
}

// NewComposite creates a composite pass writing cfg.Output.
func NewComposite(id string, cfg CompositeConfig) *Composite {
	declared := make([]framegraph.Input, len(cfg.Inputs))
	inputs := make([]CompositeInput, len(cfg.Inputs))
	for i, in := range cfg.Inputs {
		declared[i] = framegraph.Input{Resource: in.Resource}
		inputs[i] = in
		if inputs[i].Weight == 0 {
			inputs[i].Weight = 1
		}
	}
	return &Composite{
		BasePass: framegraph.NewBasePass(framegraph.PassConfig{
			ID:       id,
			Name:     "composite",
			Priority: cfg.Priority,
			Inputs:   declared,
			Outputs:  []framegraph.Output{{Resource: cfg.Output}},
			Enabled:  cfg.Enabled,
		}),
		inputs:     inputs,
		output:     cfg.Output,
		background: cfg.Background,
	}
}

// SetBackground sets the color beneath the bottom layer.
func (p *Composite) SetBackground(c gputypes.Color) { p.background = c }

// SetWeight sets the contribution of the layer reading resource.
// Unlike the config default, zero here mutes the layer. Unknown
// resources are ignored.
func (p *Composite) SetWeight(resource string, w float32) {
	for i := range p.inputs {
		if p.inputs[i].Resource == resource {
			p.inputs[i].Weight = w
		}
	}
}

// SetMode sets the blend mode of the layer reading resource. Unknown
// resources are ignored.
func (p *Composite) SetMode(resource string, m BlendMode) {
	for i := range p.inputs {
		if p.inputs[i].Resource == resource {
			p.inputs[i].Mode = m
		}
	}
}

// Execute folds the layers into the output, bottom-up.
func (p *Composite) Execute(ctx *framegraph.RenderContext) error {
	if ctx.Width == 0 || ctx.Height == 0 {
		return nil
	}

	outView, err := ctx.WriteTarget(p.output)
	if err != nil {
		return fmt.Errorf("composite %q: %w", p.Config().ID, err)
	}

	// No layers: the output is just the background color.
	if len(p.inputs) == 0 {
		rp := gpu.BeginColorPass(ctx.Encoder, "composite_background", outView, &p.background)
		rp.End()
		return nil
	}

	if err := p.ensurePipeline(ctx.Device, ctx.Format); err != nil {
		return fmt.Errorf("composite %q: %w", p.Config().ID, err)
	}

	for i, in := range p.inputs {
		srcView, err := ctx.ReadTexture(in.Resource, framegraph.AttachmentColor)
		if err != nil {
			return fmt.Errorf("composite %q: %w", p.Config().ID, err)
		}

		// The bottom layer blends over the background color; every
		// later layer blends over the previous draw's scratch buffer.
		accView := srcView
		useBackground := i == 0
		if !useBackground {
			accView = p.scratch[(i-1)%2].ColorView()
		}

		dstView := outView
		if i < len(p.inputs)-1 {
			s, err := p.ensureScratch(ctx, i%2)
			if err != nil {
				return fmt.Errorf("composite %q: %w", p.Config().ID, err)
			}
			dstView = s.ColorView()
		}

		if err := p.drawLayer(ctx, i, in, accView, srcView, dstView, useBackground); err != nil {
			return fmt.Errorf("composite %q: layer %q: %w", p.Config().ID, in.Resource, err)
		}
	}
	return nil
}

func (p *Composite) drawLayer(ctx *framegraph.RenderContext, index int, in CompositeInput, acc, src, dst hal.TextureView, useBackground bool) error {
	var data [32]byte
	off := gpu.PutColor(data[:], 0, p.background)
	off = gpu.PutUint32(data[:], off, uint32(in.Mode))
	off = gpu.PutFloat32(data[:], off, in.Weight)
	flag := uint32(0)
	if useBackground {
		flag = 1
	}
	gpu.PutUint32(data[:], off, flag)

	label := fmt.Sprintf("composite_layer_%d", index)
	buf, err := gpu.UploadUniform(ctx.Device, ctx.Queue, label+"_params", data[:])
	if err != nil {
		return err
	}
	ctx.Defer(func() { ctx.Device.DestroyBuffer(buf) })

	bg, err := p.pipe.CreateBindGroup(label+"_bind", []gputypes.BindGroupEntry{
		gpu.BindBuffer(0, buf, uint64(len(data))),
		gpu.BindTexture(1, acc),
		gpu.BindTexture(2, src),
		gpu.BindSampler(3, p.sampler),
	})
	if err != nil {
		return err
	}
	ctx.Defer(func() { ctx.Device.DestroyBindGroup(bg) })

	rp := gpu.BeginColorPass(ctx.Encoder, label, dst, nil)
	p.pipe.Draw(rp, bg)
	rp.End()
	return nil
}

func (p *Composite) ensurePipeline(device hal.Device, format gputypes.TextureFormat) error {
	if p.pipe != nil {
		return nil
	}
	p.device = device

	pipe, err := gpu.NewPipeline(device, gpu.PipelineSpec{
		Label:  "composite",
		Source: compositeShaderSource,
		Format: format,
		Entries: []gputypes.BindGroupLayoutEntry{
			gpu.UniformEntry(0),
			gpu.TextureEntry(1),
			gpu.TextureEntry(2),
			gpu.SamplerEntry(3),
		},
	})
	if err != nil {
		return err
	}
	p.pipe = pipe

	sampler, err := gpu.NewLinearSampler(device, "composite_sampler")
	if err != nil {
		p.Dispose()
		return err
	}
	p.sampler = sampler
	return nil
}

func (p *Composite) ensureScratch(ctx *framegraph.RenderContext, slot int) (*gpu.Target, error) {
	if p.scratch[slot] == nil {
		label := fmt.Sprintf("composite_%s_scratch%d", p.Config().ID, slot)
		p.scratch[slot] = gpu.NewTarget(ctx.Device, label, ctx.Format, false)
	}
	if err := p.scratch[slot].Ensure(ctx.Width, ctx.Height); err != nil {
		return nil, err
	}
	return p.scratch[slot], nil
}

// Dispose releases the pass's pipeline, sampler, and scratch buffers.
// Safe to call more than once.
func (p *Composite) Dispose() {
	if p.pipe != nil {
		p.pipe.Destroy()
		p.pipe = nil
	}
	if p.sampler != nil && p.device != nil {
		p.device.DestroySampler(p.sampler)
		p.sampler = nil
	}
	for i, s := range p.scratch {
		if s != nil {
			s.Destroy()
			p.scratch[i] = nil
		}
	}
	p.device = nil
}

// InvalidateGPU forgets all GPU handles without destroying them, for use
// after a context loss.
func (p *Composite) InvalidateGPU() {
	p.pipe = nil
	p.sampler = nil
	p.scratch[0], p.scratch[1] = nil, nil
	p.device = nil
}

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

//go:embed shaders/env_composite.wgsl
var envCompositeShaderSource string

// EnvCompositeConfig wires an environment-composite pass into the graph.
type EnvCompositeConfig struct {
	// Environment is the (typically lensed) background color resource.
	// Required.
	Environment string

	// Foreground is a resource produced with a depth channel. The pass
	// reads both its color and its depth sub-attachment. Required.
	Foreground string

	// Output is the resource id the pass writes. Required.
	Output string

	Priority int
	Enabled  func(*framegraph.Frame) bool
}

// EnvComposite places a foreground object over a distorted environment.
// The foreground's depth buffer decides coverage: texels the foreground
// pass never touched show the environment through, so the background
// appears to wrap behind the object.
type EnvComposite struct {
	framegraph.BasePass

	environment string
	foreground  string
	output      string

	pipe    *gpu.Pipeline
	sampler hal.Sampler
	device  hal.Device
}

// NewEnvComposite creates an environment-composite pass writing
// cfg.Output.
func NewEnvComposite(id string, cfg EnvCompositeConfig) *EnvComposite {
	return &EnvComposite{
		BasePass: framegraph.NewBasePass(framegraph.PassConfig{
			ID:       id,
			Name:     "env composite",
			Priority: cfg.Priority,
			Inputs: []framegraph.Input{
				{Resource: cfg.Environment},
				{Resource: cfg.Foreground},
				{Resource: cfg.Foreground, Attachment: framegraph.AttachmentDepth},
			},
			Outputs: []framegraph.Output{{Resource: cfg.Output}},
			Enabled: cfg.Enabled,
		}),
		environment: cfg.Environment,
		foreground:  cfg.Foreground,
		output:      cfg.Output,
	}
}

// Execute merges the environment and foreground into the output.
func (p *EnvComposite) Execute(ctx *framegraph.RenderContext) error {
	if ctx.Width == 0 || ctx.Height == 0 {
		return nil
	}
	if err := p.ensurePipeline(ctx.Device, ctx.Format); err != nil {
		return fmt.Errorf("env composite %q: %w", p.Config().ID, err)
	}

	envView, err := ctx.ReadTexture(p.environment, framegraph.AttachmentColor)
	if err != nil {
		return fmt.Errorf("env composite %q: %w", p.Config().ID, err)
	}
	fgView, err := ctx.ReadTexture(p.foreground, framegraph.AttachmentColor)
	if err != nil {
		return fmt.Errorf("env composite %q: %w", p.Config().ID, err)
	}
	depthView, err := ctx.ReadTexture(p.foreground, framegraph.AttachmentDepth)
	if err != nil {
		return fmt.Errorf("env composite %q: %w", p.Config().ID, err)
	}
	outView, err := ctx.WriteTarget(p.output)
	if err != nil {
		return fmt.Errorf("env composite %q: %w", p.Config().ID, err)
	}

	bg, err := p.pipe.CreateBindGroup("env_composite_bind", []gputypes.BindGroupEntry{
		gpu.BindTexture(0, envView),
		gpu.BindTexture(1, fgView),
		gpu.BindTexture(2, depthView),
		gpu.BindSampler(3, p.sampler),
	})
	if err != nil {
		return fmt.Errorf("env composite %q: %w", p.Config().ID, err)
	}
	ctx.Defer(func() { ctx.Device.DestroyBindGroup(bg) })

	rp := gpu.BeginColorPass(ctx.Encoder, "env_composite", outView, nil)
	p.pipe.Draw(rp, bg)
	rp.End()
	return nil
}

func (p *EnvComposite) ensurePipeline(device hal.Device, format gputypes.TextureFormat) error {
	if p.pipe != nil {
		return nil
	}
	p.device = device

	pipe, err := gpu.NewPipeline(device, gpu.PipelineSpec{
		Label:  "env_composite",
		Source: envCompositeShaderSource,
		Format: format,
		Entries: []gputypes.BindGroupLayoutEntry{
			gpu.TextureEntry(0),
			gpu.TextureEntry(1),
			gpu.DepthTextureEntry(2),
			gpu.SamplerEntry(3),
		},
	})
	if err != nil {
		return err
	}
	p.pipe = pipe

	sampler, err := gpu.NewLinearSampler(device, "env_composite_sampler")
	if err != nil {
		p.Dispose()
		return err
	}
	p.sampler = sampler
	return nil
}

// Dispose releases the pass's pipeline and sampler. Safe to call more
// than once.
func (p *EnvComposite) Dispose() {
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
func (p *EnvComposite) InvalidateGPU() {
	p.pipe = nil
	p.sampler = nil
	p.device = nil
}

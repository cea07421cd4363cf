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

//go:embed shaders/bloom_threshold.wgsl
var bloomThresholdShaderSource string

//go:embed shaders/bloom_blur.wgsl
var bloomBlurShaderSource string

//go:embed shaders/bloom_combine.wgsl
var bloomCombineShaderSource string

// Bloom default parameters. Hosts override them through the setters.
const (
	defaultBloomStrength  = 1.0
	defaultBloomRadius    = 1.0
	defaultBloomThreshold = 0.8
	defaultBloomSmoothing = 0.1
	defaultBloomLevels    = 3
)

// BloomConfig wires a bloom pass into the graph.
type BloomConfig struct {
	// Input is the color resource the pass brightens. Required.
	Input string

	// Output is the resource id the pass writes. Required.
	Output string

	// Strength scales the blurred highlights added back onto the input.
	// Zero means the default of 1.
	Strength float32

	// Radius scales the blur spread in texels. Zero means the default
	// of 1.
	Radius float32

	// Threshold is the luminance below which a texel contributes
	// nothing. Zero means the default of 0.8.
	Threshold float32

	// Smoothing is the soft-knee width around the threshold. Zero means
	// the default of 0.1.
	Smoothing float32

	// Levels is how many blur iterations to run, each doubling the
	// spread. Zero means the default of 3.
	Levels int

	// HDRPeak caps the bright-pass output. Values below 1 are clamped
	// up to 1; zero means 1.
	HDRPeak float32

	Priority int
	Enabled  func(*framegraph.Frame) bool
}

// Bloom extracts bright regions from its input, blurs them through
// internally owned ping-pong buffers, and adds the result back onto the
// input. Pipelines and buffers are created lazily on first execution and
// released by Dispose.
type Bloom struct {
	framegraph.BasePass

	input  string
	output string

	strength  float32
	radius    float32
	threshold float32
	smoothing float32
	levels    int
	hdrPeak   float32

	brightPipe  *gpu.Pipeline
	blurPipe    *gpu.Pipeline
	combinePipe *gpu.Pipeline
	sampler     hal.Sampler
	device      hal.Device

	ping *gpu.Target
	pong *gpu.Target
}

// NewBloom creates a bloom pass reading cfg.Input and writing cfg.Output.
func NewBloom(id string, cfg BloomConfig) *Bloom {
	p := &Bloom{
		BasePass: framegraph.NewBasePass(framegraph.PassConfig{
			ID:       id,
			Name:     "bloom",
			Priority: cfg.Priority,
			Inputs:   []framegraph.Input{{Resource: cfg.Input}},
			Outputs:  []framegraph.Output{{Resource: cfg.Output}},
			Enabled:  cfg.Enabled,
		}),
		input:     cfg.Input,
		output:    cfg.Output,
		strength:  defaultBloomStrength,
		radius:    defaultBloomRadius,
		threshold: defaultBloomThreshold,
		smoothing: defaultBloomSmoothing,
		levels:    defaultBloomLevels,
		hdrPeak:   1,
	}
	if cfg.Strength != 0 {
		p.strength = cfg.Strength
	}
	if cfg.Radius != 0 {
		p.radius = cfg.Radius
	}
	if cfg.Threshold != 0 {
		p.threshold = cfg.Threshold
	}
	if cfg.Smoothing != 0 {
		p.smoothing = cfg.Smoothing
	}
	if cfg.Levels != 0 {
		p.levels = cfg.Levels
	}
	if cfg.HDRPeak != 0 {
		p.SetHDRPeak(cfg.HDRPeak)
	}
	return p
}

// SetStrength scales the highlights added back onto the input.
func (p *Bloom) SetStrength(v float32) { p.strength = v }

// SetRadius scales the blur spread in texels.
func (p *Bloom) SetRadius(v float32) { p.radius = v }

// SetThreshold sets the luminance cutoff for the bright pass.
func (p *Bloom) SetThreshold(v float32) { p.threshold = v }

// SetSmoothing sets the soft-knee width around the threshold.
func (p *Bloom) SetSmoothing(v float32) { p.smoothing = v }

// SetLevels sets how many blur iterations to run. Values below 1 are
// clamped to 1.
func (p *Bloom) SetLevels(n int) {
	if n < 1 {
		n = 1
	}
	p.levels = n
}

// SetHDRPeak caps the bright-pass output. Values below 1 are clamped
// to 1 so the cap never darkens in-range texels.
func (p *Bloom) SetHDRPeak(v float32) {
	p.hdrPeak = math32.Max(v, 1)
}

// Strength returns the current highlight strength.
func (p *Bloom) Strength() float32 { return p.strength }

// HDRPeak returns the current bright-pass cap.
func (p *Bloom) HDRPeak() float32 { return p.hdrPeak }

// Execute runs the bright pass and the blur chain, then adds the result
// back over the input.
func (p *Bloom) Execute(ctx *framegraph.RenderContext) error {
	if ctx.Width == 0 || ctx.Height == 0 {
		return nil
	}
	if err := p.ensurePipelines(ctx.Device, ctx.Format); err != nil {
		return fmt.Errorf("bloom %q: %w", p.Config().ID, err)
	}
	if err := p.ensureBuffers(ctx); err != nil {
		return fmt.Errorf("bloom %q: %w", p.Config().ID, err)
	}

	srcView, err := ctx.ReadTexture(p.input, framegraph.AttachmentColor)
	if err != nil {
		return fmt.Errorf("bloom %q: %w", p.Config().ID, err)
	}
	outView, err := ctx.WriteTarget(p.output)
	if err != nil {
		return fmt.Errorf("bloom %q: %w", p.Config().ID, err)
	}

	if err := p.drawBright(ctx, srcView); err != nil {
		return fmt.Errorf("bloom %q: bright pass: %w", p.Config().ID, err)
	}

	// Separable blur through the ping-pong pair. Each level doubles the
	// spread, approximating a wide Gaussian with few taps.
	for level := 0; level < p.levels; level++ {
		spread := p.radius * float32(int(1)<<level)
		dx := spread / float32(ctx.Width)
		dy := spread / float32(ctx.Height)
		if err := p.drawBlur(ctx, level, true, p.ping.ColorView(), p.pong.ColorView(), dx, 0); err != nil {
			return fmt.Errorf("bloom %q: blur level %d: %w", p.Config().ID, level, err)
		}
		if err := p.drawBlur(ctx, level, false, p.pong.ColorView(), p.ping.ColorView(), 0, dy); err != nil {
			return fmt.Errorf("bloom %q: blur level %d: %w", p.Config().ID, level, err)
		}
	}

	if err := p.drawCombine(ctx, srcView, outView); err != nil {
		return fmt.Errorf("bloom %q: combine pass: %w", p.Config().ID, err)
	}
	return nil
}

func (p *Bloom) ensurePipelines(device hal.Device, format gputypes.TextureFormat) error {
	if p.brightPipe != nil {
		return nil
	}
	p.device = device

	entries := []gputypes.BindGroupLayoutEntry{
		gpu.UniformEntry(0),
		gpu.TextureEntry(1),
		gpu.SamplerEntry(2),
	}

	bright, err := gpu.NewPipeline(device, gpu.PipelineSpec{
		Label:   "bloom_bright",
		Source:  bloomThresholdShaderSource,
		Format:  format,
		Entries: entries,
	})
	if err != nil {
		return err
	}
	p.brightPipe = bright

	blur, err := gpu.NewPipeline(device, gpu.PipelineSpec{
		Label:   "bloom_blur",
		Source:  bloomBlurShaderSource,
		Format:  format,
		Entries: entries,
	})
	if err != nil {
		p.Dispose()
		return err
	}
	p.blurPipe = blur

	combine, err := gpu.NewPipeline(device, gpu.PipelineSpec{
		Label:  "bloom_combine",
		Source: bloomCombineShaderSource,
		Format: format,
		Entries: []gputypes.BindGroupLayoutEntry{
			gpu.UniformEntry(0),
			gpu.TextureEntry(1),
			gpu.TextureEntry(2),
			gpu.SamplerEntry(3),
		},
	})
	if err != nil {
		p.Dispose()
		return err
	}
	p.combinePipe = combine

	sampler, err := gpu.NewLinearSampler(device, "bloom_sampler")
	if err != nil {
		p.Dispose()
		return err
	}
	p.sampler = sampler
	return nil
}

func (p *Bloom) ensureBuffers(ctx *framegraph.RenderContext) error {
	id := p.Config().ID
	if p.ping == nil {
		p.ping = gpu.NewTarget(ctx.Device, "bloom_"+id+"_ping", ctx.Format, false)
		p.pong = gpu.NewTarget(ctx.Device, "bloom_"+id+"_pong", ctx.Format, false)
	}
	if err := p.ping.Ensure(ctx.Width, ctx.Height); err != nil {
		return err
	}
	return p.pong.Ensure(ctx.Width, ctx.Height)
}

// drawBright writes thresholded highlights from src into the ping buffer.
func (p *Bloom) drawBright(ctx *framegraph.RenderContext, src hal.TextureView) error {
	var data [16]byte
	off := gpu.PutFloat32(data[:], 0, p.threshold)
	off = gpu.PutFloat32(data[:], off, p.smoothing)
	gpu.PutFloat32(data[:], off, p.hdrPeak)

	bg, err := p.frameBind(ctx, p.brightPipe, "bloom_bright_bind", data[:], src, nil)
	if err != nil {
		return err
	}

	clear := gputypes.Color{}
	rp := gpu.BeginColorPass(ctx.Encoder, "bloom_bright", p.ping.ColorView(), &clear)
	p.brightPipe.Draw(rp, bg)
	rp.End()
	return nil
}

// drawBlur runs one directional blur from src into dst.
func (p *Bloom) drawBlur(ctx *framegraph.RenderContext, level int, horizontal bool, src, dst hal.TextureView, dx, dy float32) error {
	var data [16]byte
	gpu.PutVec2(data[:], 0, dx, dy)

	axis := "v"
	if horizontal {
		axis = "h"
	}
	label := fmt.Sprintf("bloom_blur_%d%s", level, axis)
	bg, err := p.frameBind(ctx, p.blurPipe, label+"_bind", data[:], src, nil)
	if err != nil {
		return err
	}

	clear := gputypes.Color{}
	rp := gpu.BeginColorPass(ctx.Encoder, label, dst, &clear)
	p.blurPipe.Draw(rp, bg)
	rp.End()
	return nil
}

// drawCombine adds the blurred highlights in ping back onto src, writing
// the declared output.
func (p *Bloom) drawCombine(ctx *framegraph.RenderContext, src, out hal.TextureView) error {
	var data [16]byte
	gpu.PutFloat32(data[:], 0, p.strength)

	bg, err := p.frameBind(ctx, p.combinePipe, "bloom_combine_bind", data[:], src, p.ping.ColorView())
	if err != nil {
		return err
	}

	rp := gpu.BeginColorPass(ctx.Encoder, "bloom_combine", out, nil)
	p.combinePipe.Draw(rp, bg)
	rp.End()
	return nil
}

// frameBind uploads a per-draw uniform buffer and builds the matching
// bind group. Both are released after the frame's GPU work completes.
// extra, when non-nil, binds a second texture before the sampler.
func (p *Bloom) frameBind(ctx *framegraph.RenderContext, pipe *gpu.Pipeline, label string, data []byte, tex hal.TextureView, extra hal.TextureView) (hal.BindGroup, error) {
	buf, err := gpu.UploadUniform(ctx.Device, ctx.Queue, label+"_params", data)
	if err != nil {
		return nil, err
	}
	ctx.Defer(func() { ctx.Device.DestroyBuffer(buf) })

	entries := []gputypes.BindGroupEntry{
		gpu.BindBuffer(0, buf, uint64(len(data))),
		gpu.BindTexture(1, tex),
	}
	if extra != nil {
		entries = append(entries,
			gpu.BindTexture(2, extra),
			gpu.BindSampler(3, p.sampler),
		)
	} else {
		entries = append(entries, gpu.BindSampler(2, p.sampler))
	}

	bg, err := pipe.CreateBindGroup(label, entries)
	if err != nil {
		return nil, err
	}
	ctx.Defer(func() { ctx.Device.DestroyBindGroup(bg) })
	return bg, nil
}

// Dispose releases the pass's pipelines, sampler, and ping-pong buffers.
// Safe to call multiple times.
func (p *Bloom) Dispose() {
	if p.brightPipe != nil {
		p.brightPipe.Destroy()
		p.brightPipe = nil
	}
	if p.blurPipe != nil {
		p.blurPipe.Destroy()
		p.blurPipe = nil
	}
	if p.combinePipe != nil {
		p.combinePipe.Destroy()
		p.combinePipe = nil
	}
	if p.sampler != nil && p.device != nil {
		p.device.DestroySampler(p.sampler)
		p.sampler = nil
	}
	if p.ping != nil {
		p.ping.Destroy()
		p.ping = nil
	}
	if p.pong != nil {
		p.pong.Destroy()
		p.pong = nil
	}
	p.device = nil
}

// InvalidateGPU forgets all GPU handles without destroying them, for use
// after a context loss. Pipelines and buffers rebuild on the next Execute.
func (p *Bloom) InvalidateGPU() {
	p.brightPipe, p.blurPipe, p.combinePipe = nil, nil, nil
	p.sampler = nil
	p.ping, p.pong = nil, nil
	p.device = nil
}

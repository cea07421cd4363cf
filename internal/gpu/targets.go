//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Target is one pooled render target: a color texture sized to the frame,
// plus an optional depth texture for passes that depth-test. The color
// texture carries TextureBinding and CopySrc usage so later passes can
// sample it and the host can read it back.
type Target struct {
	device hal.Device
	label  string

	colorTex  hal.Texture
	colorView hal.TextureView

	// depthTex is Depth24PlusStencil8. attachView covers all aspects for
	// render-pass use; sampleView exposes the depth aspect for binding.
	depthTex        hal.Texture
	depthAttachView hal.TextureView
	depthSampleView hal.TextureView

	width, height uint32
	format        gputypes.TextureFormat
	hasDepth      bool
}

// NewTarget creates an unallocated standalone target, for scratch
// textures a pass owns privately rather than through a pool. Call
// Ensure before use and Destroy when done.
func NewTarget(device hal.Device, label string, format gputypes.TextureFormat, withDepth bool) *Target {
	return &Target{
		device:   device,
		label:    label,
		format:   format,
		hasDepth: withDepth,
	}
}

// Width returns the current width in pixels, zero when unallocated.
func (t *Target) Width() uint32 { return t.width }

// Height returns the current height in pixels, zero when unallocated.
func (t *Target) Height() uint32 { return t.height }

// Format returns the color format.
func (t *Target) Format() gputypes.TextureFormat { return t.format }

// HasDepth reports whether the target carries a depth channel.
func (t *Target) HasDepth() bool { return t.hasDepth }

// ColorTexture returns the color texture, nil when unallocated.
func (t *Target) ColorTexture() hal.Texture { return t.colorTex }

// ColorView returns the color view, nil when unallocated.
func (t *Target) ColorView() hal.TextureView { return t.colorView }

// DepthAttachmentView returns the view used as a render-pass depth
// attachment, nil without a depth channel.
func (t *Target) DepthAttachmentView() hal.TextureView { return t.depthAttachView }

// DepthSampleView returns the depth-aspect view for shader binding,
// nil without a depth channel.
func (t *Target) DepthSampleView() hal.TextureView { return t.depthSampleView }

// Ensure creates or recreates the textures if the requested dimensions
// differ from the current size. Matching dimensions are a no-op.
//
// On resize, existing textures are destroyed before creating new ones to
// avoid GPU memory leaks. On error, partially created resources are
// cleaned up.
func (t *Target) Ensure(width, height uint32) error {
	if t.width == width && t.height == height && t.colorTex != nil {
		return nil
	}

	t.Destroy()

	size := hal.Extent3D{
		Width:              width,
		Height:             height,
		DepthOrArrayLayers: 1,
	}

	colorTex, err := t.device.CreateTexture(&hal.TextureDescriptor{
		Label:         t.label + "_color",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        t.format,
		Usage: gputypes.TextureUsageRenderAttachment |
			gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create color texture: %w", err)
	}
	t.colorTex = colorTex

	colorView, err := t.device.CreateTextureView(colorTex, &hal.TextureViewDescriptor{
		Label:         t.label + "_color_view",
		Format:        t.format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		t.Destroy()
		return fmt.Errorf("create color view: %w", err)
	}
	t.colorView = colorView

	if t.hasDepth {
		depthTex, err := t.device.CreateTexture(&hal.TextureDescriptor{
			Label:         t.label + "_depth",
			Size:          size,
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        gputypes.TextureFormatDepth24PlusStencil8,
			Usage: gputypes.TextureUsageRenderAttachment |
				gputypes.TextureUsageTextureBinding,
		})
		if err != nil {
			t.Destroy()
			return fmt.Errorf("create depth texture: %w", err)
		}
		t.depthTex = depthTex

		attachView, err := t.device.CreateTextureView(depthTex, &hal.TextureViewDescriptor{
			Label:         t.label + "_depth_view",
			Format:        gputypes.TextureFormatDepth24PlusStencil8,
			Dimension:     gputypes.TextureViewDimension2D,
			Aspect:        gputypes.TextureAspectAll,
			MipLevelCount: 1,
		})
		if err != nil {
			t.Destroy()
			return fmt.Errorf("create depth attachment view: %w", err)
		}
		t.depthAttachView = attachView

		sampleView, err := t.device.CreateTextureView(depthTex, &hal.TextureViewDescriptor{
			Label:         t.label + "_depth_sample_view",
			Format:        gputypes.TextureFormatDepth24PlusStencil8,
			Dimension:     gputypes.TextureViewDimension2D,
			Aspect:        gputypes.TextureAspectDepthOnly,
			MipLevelCount: 1,
		})
		if err != nil {
			t.Destroy()
			return fmt.Errorf("create depth sample view: %w", err)
		}
		t.depthSampleView = sampleView
	}

	t.width = width
	t.height = height
	return nil
}

// Destroy releases all texture views and textures, resetting dimensions
// to zero. Each resource is nil-checked to support partial cleanup.
func (t *Target) Destroy() {
	if t.depthSampleView != nil {
		t.device.DestroyTextureView(t.depthSampleView)
		t.depthSampleView = nil
	}
	if t.depthAttachView != nil {
		t.device.DestroyTextureView(t.depthAttachView)
		t.depthAttachView = nil
	}
	if t.depthTex != nil {
		t.device.DestroyTexture(t.depthTex)
		t.depthTex = nil
	}
	if t.colorView != nil {
		t.device.DestroyTextureView(t.colorView)
		t.colorView = nil
	}
	if t.colorTex != nil {
		t.device.DestroyTexture(t.colorTex)
		t.colorTex = nil
	}
	t.width = 0
	t.height = 0
}

// Invalidate forgets all GPU handles without destroying them, for use
// after a context loss when the handles are already dead.
func (t *Target) Invalidate() {
	t.colorTex, t.colorView = nil, nil
	t.depthTex, t.depthAttachView, t.depthSampleView = nil, nil, nil
	t.width, t.height = 0, 0
}

// TargetPool allocates and reuses one Target per resource id. Targets
// resize lazily: Ensure with a new frame size recreates only the targets
// actually requested at that size.
type TargetPool struct {
	device  hal.Device
	format  gputypes.TextureFormat
	targets map[string]*Target
}

// NewTargetPool creates an empty pool allocating targets in the given
// color format.
func NewTargetPool(device hal.Device, format gputypes.TextureFormat) *TargetPool {
	return &TargetPool{
		device:  device,
		format:  format,
		targets: make(map[string]*Target),
	}
}

// Format returns the pool's color format.
func (p *TargetPool) Format() gputypes.TextureFormat { return p.format }

// Ensure returns the target for id, allocated or resized to the given
// dimensions. withDepth requests a depth channel; changing it for an
// existing id reallocates the target.
func (p *TargetPool) Ensure(id string, width, height uint32, withDepth bool) (*Target, error) {
	t := p.targets[id]
	if t == nil {
		t = &Target{
			device:   p.device,
			label:    "fg_" + id,
			format:   p.format,
			hasDepth: withDepth,
		}
		p.targets[id] = t
	}
	if t.hasDepth != withDepth {
		t.Destroy()
		t.hasDepth = withDepth
	}
	if err := t.Ensure(width, height); err != nil {
		return nil, fmt.Errorf("target %q: %w", id, err)
	}
	return t, nil
}

// Get returns the target for id, or nil when none was ever ensured.
func (p *TargetPool) Get(id string) *Target {
	return p.targets[id]
}

// Invalidate forgets every target's GPU handles without destroying them.
// Used after a context loss; the next Ensure reallocates.
func (p *TargetPool) Invalidate() {
	for _, t := range p.targets {
		t.Invalidate()
	}
}

// Destroy releases every target's GPU resources. The pool stays usable;
// the next Ensure reallocates. Safe to call multiple times.
func (p *TargetPool) Destroy() {
	for _, t := range p.targets {
		t.Destroy()
	}
}

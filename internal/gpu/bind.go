//go:build !nogpu

package gpu

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Bind group layout entry constructors shared by the effect pipelines.
// Every post-processing pass binds some mix of one uniform buffer, source
// textures, and a sampler, so the layouts are built from these instead of
// spelling the structs out per pass.

// UniformEntry returns a layout entry for a uniform buffer visible to
// both shader stages.
func UniformEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
}

// TextureEntry returns a layout entry for a filterable 2D color texture
// sampled in the fragment stage.
func TextureEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageFragment,
		Texture: &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		},
	}
}

// DepthTextureEntry returns a layout entry for a depth texture read in
// the fragment stage. The bound view must cover the depth aspect only.
func DepthTextureEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageFragment,
		Texture: &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeDepth,
			ViewDimension: gputypes.TextureViewDimension2D,
		},
	}
}

// SamplerEntry returns a layout entry for a filtering sampler in the
// fragment stage.
func SamplerEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageFragment,
		Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
	}
}

// Bind group entry constructors. The hal objects expose native handles
// for the gputypes resource bindings.

// BindBuffer returns a bind group entry for a whole buffer.
func BindBuffer(binding uint32, buf hal.Buffer, size uint64) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding: binding,
		Resource: gputypes.BufferBinding{
			Buffer: buf.NativeHandle(), Offset: 0, Size: size,
		},
	}
}

// BindTexture returns a bind group entry for a texture view.
func BindTexture(binding uint32, view hal.TextureView) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding: binding,
		Resource: gputypes.TextureViewBinding{
			TextureView: view.NativeHandle(),
		},
	}
}

// BindSampler returns a bind group entry for a sampler.
func BindSampler(binding uint32, sampler hal.Sampler) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding: binding,
		Resource: gputypes.SamplerBinding{
			Sampler: sampler.NativeHandle(),
		},
	}
}

// NewLinearSampler creates a clamp-to-edge linear sampler, the filtering
// every post-processing pass wants when sampling an upstream target.
func NewLinearSampler(device hal.Device, label string) (hal.Sampler, error) {
	return device.CreateSampler(&hal.SamplerDescriptor{
		Label:        label,
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
}

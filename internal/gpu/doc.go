//go:build !nogpu

// Package gpu wraps the HAL with the small set of primitives the pass
// graph needs each frame.
//
// This is an internal package used by the framegraph library. It talks to
// the gogpu/wgpu Pure Go WebGPU implementation (zero CGO), which supports
// Vulkan, Metal, and DX12 backends depending on the platform.
//
// Key components:
//
//   - Session: Command recording and submission for one frame
//   - TargetPool: Named offscreen render targets, resized on demand
//   - Pipeline: Fullscreen render pipeline with its bind group layout
//   - Bind entry helpers: Layout and binding construction for uniforms,
//     textures, and samplers
//   - Uniform packing helpers: std140-style byte layout and upload
//   - ReadTargetPixels: Row-aligned GPU-to-CPU readback
//
// Shaders are written in WGSL and compiled to SPIR-V through gogpu/naga
// before reaching the HAL. Constructs naga does not handle yet are handed
// to the backend as WGSL source instead.
//
// # Context Loss
//
// Everything here holds raw HAL handles, so after a device loss the owner
// must call Invalidate on pools and drop cached pipelines rather than
// destroying them. The recovery flow in the root package coordinates this.
//
// # Related Packages
//
//   - github.com/gogpu/framegraph: Pass graph built on this package
//   - github.com/gogpu/wgpu: Pure Go WebGPU implementation
package gpu

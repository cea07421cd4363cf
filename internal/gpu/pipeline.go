//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// PipelineSpec describes one fullscreen post-processing pipeline. The
// WGSL source must expose vs_main and fs_main entry points; vs_main
// generates a fullscreen triangle from the vertex index, so the pipeline
// has no vertex buffers.
type PipelineSpec struct {
	Label   string
	Source  string
	Format  gputypes.TextureFormat
	Entries []gputypes.BindGroupLayoutEntry

	// Blend is the color target blend state. Nil writes source color
	// directly, which is what most full-frame filters want.
	Blend *gputypes.BlendState
}

// Pipeline bundles the shader module, layouts, and render pipeline for
// one fullscreen effect. Bind groups are created per frame against
// BindLayout and drawn with Draw.
type Pipeline struct {
	device     hal.Device
	label      string
	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline
}

// NewPipeline compiles the shader and creates the pipeline objects.
// Partially created resources are released on error.
func NewPipeline(device hal.Device, spec PipelineSpec) (*Pipeline, error) {
	p := &Pipeline{device: device, label: spec.Label}

	shader, err := CreateShaderModule(device, spec.Label+"_shader", spec.Source)
	if err != nil {
		return nil, err
	}
	p.shader = shader

	bindLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   spec.Label + "_bind_layout",
		Entries: spec.Entries,
	})
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("create %s bind layout: %w", spec.Label, err)
	}
	p.bindLayout = bindLayout

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            spec.Label + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("create %s pipeline layout: %w", spec.Label, err)
	}
	p.pipeLayout = pipeLayout

	pipeline, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  spec.Label + "_pipeline",
		Layout: p.pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.shader,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     p.shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    spec.Format,
					Blend:     spec.Blend,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("create %s pipeline: %w", spec.Label, err)
	}
	p.pipeline = pipeline

	return p, nil
}

// BindLayout returns the bind group layout for creating bind groups.
func (p *Pipeline) BindLayout() hal.BindGroupLayout { return p.bindLayout }

// CreateBindGroup creates a bind group against the pipeline's layout.
func (p *Pipeline) CreateBindGroup(label string, entries []gputypes.BindGroupEntry) (hal.BindGroup, error) {
	bg, err := p.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   label,
		Layout:  p.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s bind group: %w", p.label, err)
	}
	return bg, nil
}

// Draw records the fullscreen triangle into an open render pass.
func (p *Pipeline) Draw(rp hal.RenderPassEncoder, bindGroup hal.BindGroup) {
	rp.SetPipeline(p.pipeline)
	rp.SetBindGroup(0, bindGroup, nil)
	rp.Draw(3, 1, 0, 0)
}

// Destroy releases all pipeline resources in reverse creation order.
// Safe to call multiple times.
func (p *Pipeline) Destroy() {
	if p.device == nil {
		return
	}
	if p.pipeline != nil {
		p.device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		p.device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bindLayout != nil {
		p.device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.shader != nil {
		p.device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}

//go:build !nogpu

package gpu

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// testShaderWGSL is a minimal fullscreen pass used by pipeline tests.
const testShaderWGSL = `
struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> VertexOutput {
    var out: VertexOutput;
    let x = f32(i32(index) / 2) * 4.0 - 1.0;
    let y = f32(i32(index) % 2) * 4.0 - 1.0;
    out.position = vec4<f32>(x, y, 0.0, 1.0);
    out.uv = vec2<f32>(x, y) * 0.5 + 0.5;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return vec4<f32>(in.uv, 0.0, 1.0);
}
`

// skipOnNagaLimitation skips the test when the compile error is a known
// naga gap rather than a broken shader.
func skipOnNagaLimitation(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		return
	}
	errStr := err.Error()
	if strings.Contains(errStr, "not yet implemented") || strings.Contains(errStr, "not supported") {
		t.Skipf("Skipping: naga feature not yet implemented: %v", err)
	}
}

func TestCompileWGSL(t *testing.T) {
	words, err := CompileWGSL(testShaderWGSL)
	if err != nil {
		skipOnNagaLimitation(t, err)
		t.Fatalf("CompileWGSL failed: %v", err)
	}
	if len(words) == 0 {
		t.Fatal("SPIR-V output is empty")
	}
	// SPIR-V magic number.
	if words[0] != 0x07230203 {
		t.Errorf("invalid SPIR-V magic: 0x%08X, want 0x07230203", words[0])
	}
}

func TestCompileWGSLEmptySourceViaModule(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	if _, err := CreateShaderModule(device, "empty", ""); err == nil {
		t.Error("expected error for empty shader source")
	}
}

func TestCompileWGSLInvalid(t *testing.T) {
	if _, err := CompileWGSL("this is not wgsl"); err == nil {
		t.Error("expected error for invalid WGSL")
	}
}

func TestNewPipeline(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	p, err := NewPipeline(device, PipelineSpec{
		Label:   "test_fx",
		Source:  testShaderWGSL,
		Format:  gputypes.TextureFormatRGBA8Unorm,
		Entries: nil,
	})
	if err != nil {
		skipOnNagaLimitation(t, err)
		t.Fatalf("NewPipeline failed: %v", err)
	}
	defer p.Destroy()

	if p.BindLayout() == nil {
		t.Error("expected bind group layout")
	}
	if p.pipeline == nil {
		t.Error("expected render pipeline")
	}
}

func TestNewPipelineWithBindings(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	blend := gputypes.BlendStatePremultiplied()
	p, err := NewPipeline(device, PipelineSpec{
		Label:  "test_blend_fx",
		Source: testShaderWGSL,
		Format: gputypes.TextureFormatBGRA8Unorm,
		Entries: []gputypes.BindGroupLayoutEntry{
			UniformEntry(0),
			TextureEntry(1),
			SamplerEntry(2),
		},
		Blend: &blend,
	})
	if err != nil {
		skipOnNagaLimitation(t, err)
		t.Fatalf("NewPipeline failed: %v", err)
	}
	defer p.Destroy()
}

func TestPipelineDestroyIsIdempotent(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	p, err := NewPipeline(device, PipelineSpec{
		Label:  "test_destroy",
		Source: testShaderWGSL,
		Format: gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		skipOnNagaLimitation(t, err)
		t.Fatalf("NewPipeline failed: %v", err)
	}
	p.Destroy()
	p.Destroy()
}

func TestNewLinearSampler(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	sampler, err := NewLinearSampler(device, "test_sampler")
	if err != nil {
		t.Fatalf("NewLinearSampler failed: %v", err)
	}
	device.DestroySampler(sampler)
}

func TestSessionFrame(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	session := NewSession(device, queue)
	ran := false
	err := session.Frame("test_frame", func(_ hal.CommandEncoder) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if !ran {
		t.Error("expected record callback to run")
	}
}

func TestSessionFrameRecordError(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	session := NewSession(device, queue)
	wantErr := errors.New("record failed")
	err := session.Frame("test_frame_err", func(_ hal.CommandEncoder) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected record error, got %v", err)
	}
}

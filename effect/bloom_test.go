//go:build !nogpu

package effect

import (
	"testing"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/gputypes"
)

func TestNewBloomDefaults(t *testing.T) {
	p := NewBloom("bloom", BloomConfig{Input: "scene", Output: "glow"})

	if p.strength != 1 {
		t.Errorf("strength = %v, want 1", p.strength)
	}
	if p.radius != 1 {
		t.Errorf("radius = %v, want 1", p.radius)
	}
	if p.threshold != 0.8 {
		t.Errorf("threshold = %v, want 0.8", p.threshold)
	}
	if p.smoothing != float32(0.1) {
		t.Errorf("smoothing = %v, want 0.1", p.smoothing)
	}
	if p.levels != 3 {
		t.Errorf("levels = %d, want 3", p.levels)
	}
	if p.hdrPeak != 1 {
		t.Errorf("hdrPeak = %v, want 1", p.hdrPeak)
	}
}

func TestNewBloomConfigOverrides(t *testing.T) {
	p := NewBloom("bloom", BloomConfig{
		Input:     "scene",
		Output:    "glow",
		Strength:  2.5,
		Radius:    3,
		Threshold: 0.5,
		Smoothing: 0.2,
		Levels:    5,
		HDRPeak:   4,
	})

	if p.strength != 2.5 || p.radius != 3 || p.threshold != 0.5 {
		t.Errorf("got strength=%v radius=%v threshold=%v",
			p.strength, p.radius, p.threshold)
	}
	if p.smoothing != float32(0.2) || p.levels != 5 || p.hdrPeak != 4 {
		t.Errorf("got smoothing=%v levels=%d hdrPeak=%v",
			p.smoothing, p.levels, p.hdrPeak)
	}
}

func TestBloomHDRPeakClamped(t *testing.T) {
	p := NewBloom("bloom", BloomConfig{Input: "scene", Output: "glow", HDRPeak: 0.5})
	if got := p.HDRPeak(); got != 1 {
		t.Errorf("HDRPeak after config 0.5 = %v, want 1", got)
	}

	p.SetHDRPeak(0.25)
	if got := p.HDRPeak(); got != 1 {
		t.Errorf("HDRPeak after SetHDRPeak(0.25) = %v, want 1", got)
	}

	p.SetHDRPeak(3)
	if got := p.HDRPeak(); got != 3 {
		t.Errorf("HDRPeak after SetHDRPeak(3) = %v, want 3", got)
	}
}

func TestBloomSetLevelsClamped(t *testing.T) {
	p := NewBloom("bloom", BloomConfig{Input: "scene", Output: "glow"})

	p.SetLevels(0)
	if p.levels != 1 {
		t.Errorf("levels after SetLevels(0) = %d, want 1", p.levels)
	}
	p.SetLevels(-2)
	if p.levels != 1 {
		t.Errorf("levels after SetLevels(-2) = %d, want 1", p.levels)
	}
	p.SetLevels(6)
	if p.levels != 6 {
		t.Errorf("levels after SetLevels(6) = %d, want 6", p.levels)
	}
}

func TestBloomDeclaration(t *testing.T) {
	p := NewBloom("bloom", BloomConfig{Input: "scene", Output: "glow", Priority: 7})
	cfg := p.Config()

	if cfg.ID != "bloom" || cfg.Name != "bloom" || cfg.Priority != 7 {
		t.Errorf("got id=%q name=%q priority=%d", cfg.ID, cfg.Name, cfg.Priority)
	}
	wantIn := framegraph.Input{Resource: "scene", Attachment: framegraph.AttachmentColor}
	if len(cfg.Inputs) != 1 || cfg.Inputs[0] != wantIn {
		t.Errorf("inputs = %v, want [%v]", cfg.Inputs, wantIn)
	}
	if len(cfg.Outputs) != 1 || cfg.Outputs[0].Resource != "glow" || cfg.Outputs[0].Depth {
		t.Errorf("outputs = %v, want color-only glow", cfg.Outputs)
	}
}

func TestBloomDisposeBeforeInit(t *testing.T) {
	p := NewBloom("bloom", BloomConfig{Input: "scene", Output: "glow"})
	p.Dispose()
	p.Dispose()
}

func TestBloomPipelineInit(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	p := NewBloom("bloom", BloomConfig{Input: "scene", Output: "glow"})
	err := p.ensurePipelines(device, gputypes.TextureFormatRGBA8Unorm)
	if err != nil {
		skipOnNagaLimitation(t, err)
		t.Fatalf("ensurePipelines failed: %v", err)
	}

	if p.brightPipe == nil || p.blurPipe == nil || p.combinePipe == nil {
		t.Fatal("pipelines not created")
	}
	if p.sampler == nil {
		t.Fatal("sampler not created")
	}

	// Second call is a no-op.
	if err := p.ensurePipelines(device, gputypes.TextureFormatRGBA8Unorm); err != nil {
		t.Fatalf("second ensurePipelines failed: %v", err)
	}

	p.Dispose()
	if p.brightPipe != nil || p.sampler != nil {
		t.Error("Dispose did not release pipelines")
	}
	p.Dispose()
}

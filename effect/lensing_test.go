//go:build !nogpu

package effect

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestNewLensingDefaults(t *testing.T) {
	p := NewLensing("lens", LensingConfig{Input: "env", Output: "lensed"})

	x, y := p.Center()
	if x != 0.5 || y != 0.5 {
		t.Errorf("center = (%v, %v), want (0.5, 0.5)", x, y)
	}
	if p.strength != float32(defaultLensingStrength) {
		t.Errorf("strength = %v, want %v", p.strength, defaultLensingStrength)
	}

	p = NewLensing("lens", LensingConfig{Input: "env", Output: "lensed", Strength: 0.2})
	if p.strength != 0.2 {
		t.Errorf("strength = %v, want 0.2", p.strength)
	}
}

func TestLensingCenterClamped(t *testing.T) {
	tests := []struct {
		name           string
		inX, inY       float32
		wantX, wantY   float32
	}{
		{"inside", 0.25, 0.75, 0.25, 0.75},
		{"below range", -1, -0.5, 0, 0},
		{"above range", 2, 1.5, 1, 1},
		{"mixed", -0.1, 0.6, 0, 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewLensing("lens", LensingConfig{Input: "env", Output: "lensed"})
			p.SetCenter(tt.inX, tt.inY)
			x, y := p.Center()
			if x != tt.wantX || y != tt.wantY {
				t.Errorf("SetCenter(%v, %v) = (%v, %v), want (%v, %v)",
					tt.inX, tt.inY, x, y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestLensingDeclaration(t *testing.T) {
	p := NewLensing("lens", LensingConfig{Input: "env", Output: "lensed"})
	cfg := p.Config()

	if cfg.Name != "lensing" {
		t.Errorf("name = %q, want lensing", cfg.Name)
	}
	if len(cfg.Inputs) != 1 || cfg.Inputs[0].Resource != "env" {
		t.Errorf("inputs = %v, want [env]", cfg.Inputs)
	}
	if len(cfg.Outputs) != 1 || cfg.Outputs[0].Resource != "lensed" {
		t.Errorf("outputs = %v, want [lensed]", cfg.Outputs)
	}
}

func TestLensingDisposeIdempotent(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	p := NewLensing("lens", LensingConfig{Input: "env", Output: "lensed"})
	err := p.ensurePipeline(device, gputypes.TextureFormatRGBA8Unorm)
	if err != nil {
		skipOnNagaLimitation(t, err)
		t.Fatalf("ensurePipeline failed: %v", err)
	}

	p.Dispose()
	if p.pipe != nil || p.sampler != nil {
		t.Error("Dispose did not release resources")
	}
	p.Dispose()
}

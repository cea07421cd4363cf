//go:build !nogpu

package gpu

import (
	"fmt"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// CompileWGSL compiles WGSL source to a SPIR-V uint32 slice. Compiling
// through naga up front surfaces shader errors during graph setup with
// the offending source line, instead of a backend-dependent failure at
// first draw.
func CompileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// CreateShaderModule compiles WGSL and wraps it in a HAL shader module.
// When naga declines the source over an unimplemented feature, the WGSL
// is handed to the backend untranslated instead.
func CreateShaderModule(device hal.Device, label, source string) (hal.ShaderModule, error) {
	if source == "" {
		return nil, fmt.Errorf("%s: shader source is empty", label)
	}
	words, err := CompileWGSL(source)
	if err != nil {
		if !isNagaGap(err) {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		slogger().Debug("naga declined shader, passing WGSL to backend",
			"label", label, "error", err)
		return device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  label,
			Source: hal.ShaderSource{WGSL: source},
		})
	}
	return device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: words},
	})
}

// isNagaGap reports whether the error is naga declining a feature rather
// than rejecting a broken shader.
func isNagaGap(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported")
}

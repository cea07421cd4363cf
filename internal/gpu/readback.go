//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// copyPitchAlignment is the BytesPerRow alignment WebGPU and DX12
// require for texture-to-buffer copies.
const copyPitchAlignment = 256

// ReadTargetPixels copies a target's color texture to CPU memory and
// returns tightly packed rows in the pool's color format. The texture is
// transitioned back to render-attachment usage afterwards so the target
// stays renderable.
func ReadTargetPixels(session *Session, t *Target) ([]byte, error) {
	if t == nil || t.colorTex == nil || t.width == 0 || t.height == 0 {
		return nil, errors.New("target has no allocated texture")
	}
	w, h := t.width, t.height

	bytesPerRow := w * 4
	alignedBytesPerRow := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	stagingBufSize := uint64(alignedBytesPerRow) * uint64(h)

	stagingBuf, err := session.device.CreateBuffer(&hal.BufferDescriptor{
		Label: t.label + "_staging",
		Size:  stagingBufSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer session.device.DestroyBuffer(stagingBuf)

	err = session.Frame(t.label+"_readback", func(encoder hal.CommandEncoder) error {
		// CopyTextureToBuffer requires copy-source usage. Transition back
		// afterwards so the next frame's render pass sees the expected
		// render-attachment state.
		encoder.TransitionTextures([]hal.TextureBarrier{{
			Texture: t.colorTex,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageRenderAttachment,
				NewUsage: gputypes.TextureUsageCopySrc,
			},
		}})
		encoder.CopyTextureToBuffer(t.colorTex, stagingBuf, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: alignedBytesPerRow, RowsPerImage: h},
			TextureBase:  hal.ImageCopyTexture{Texture: t.colorTex, MipLevel: 0},
			Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		}})
		encoder.TransitionTextures([]hal.TextureBarrier{{
			Texture: t.colorTex,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageCopySrc,
				NewUsage: gputypes.TextureUsageRenderAttachment,
			},
		}})
		return nil
	})
	if err != nil {
		return nil, err
	}

	readback := make([]byte, stagingBufSize)
	if err := session.queue.ReadBuffer(stagingBuf, 0, readback); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}

	if alignedBytesPerRow == bytesPerRow {
		return readback, nil
	}

	// Strip per-row padding.
	tight := make([]byte, uint64(bytesPerRow)*uint64(h))
	for row := uint32(0); row < h; row++ {
		srcOff := int(row) * int(alignedBytesPerRow)
		dstOff := int(row) * int(bytesPerRow)
		copy(tight[dstOff:dstOff+int(bytesPerRow)], readback[srcOff:srcOff+int(bytesPerRow)])
	}
	return tight, nil
}

// SwizzleBGRAToRGBA converts pixels in place from BGRA to RGBA byte
// order. Surface formats are commonly BGRA while image encoders expect
// RGBA.
func SwizzleBGRAToRGBA(pixels []byte) {
	for i := 0; i+3 < len(pixels); i += 4 {
		pixels[i], pixels[i+2] = pixels[i+2], pixels[i]
	}
}

//go:build !nogpu

package framegraph

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/framegraph/internal/gpu"
	"github.com/gogpu/gputypes"
)

// CaptureOutput reads the final output target back to CPU memory as an
// RGBA image. It submits its own copy commands and blocks until the GPU
// finishes, so it is a diagnostics and testing path, not something to
// call every frame.
func (g *Graph) CaptureOutput() (*image.NRGBA, error) {
	if g.disposed {
		return nil, ErrGraphDisposed
	}
	t, err := g.outputTarget()
	if err != nil {
		return nil, err
	}

	pixels, err := gpu.ReadTargetPixels(g.session, t)
	if err != nil {
		return nil, fmt.Errorf("capture %q: %w", g.finalID, err)
	}

	switch g.format {
	case gputypes.TextureFormatBGRA8Unorm:
		gpu.SwizzleBGRAToRGBA(pixels)
	case gputypes.TextureFormatRGBA8Unorm:
		// Already in image byte order.
	default:
		return nil, fmt.Errorf("capture %q: unsupported color format %v", g.finalID, g.format)
	}

	img := image.NewNRGBA(image.Rect(0, 0, int(t.Width()), int(t.Height())))
	copy(img.Pix, pixels)
	return img, nil
}

// Thumbnail captures the final output downscaled so its longer side is
// at most maxDim pixels, preserving aspect ratio. Output already within
// the bound is returned at full size.
func (g *Graph) Thumbnail(maxDim int) (*image.NRGBA, error) {
	if maxDim <= 0 {
		return nil, fmt.Errorf("thumbnail: non-positive max dimension %d", maxDim)
	}
	full, err := g.CaptureOutput()
	if err != nil {
		return nil, err
	}

	b := full.Bounds()
	w, h := b.Dx(), b.Dy()
	longer := max(w, h)
	if longer <= maxDim {
		return full, nil
	}

	tw := w * maxDim / longer
	th := h * maxDim / longer
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}

	thumb := image.NewNRGBA(image.Rect(0, 0, tw, th))
	xdraw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), full, b, xdraw.Src, nil)
	return thumb, nil
}

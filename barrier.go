package framegraph

import (
	"github.com/gogpu/framegraph/render"
)

// StateBarrier snapshots and restores renderer, scene, and camera ambient
// state around a pass boundary. The executor brackets every pass execution
// with Capture then Restore so a pass's mutations of shared state never leak
// into the next pass.
//
// The barrier holds a single, non-stacking slot: a second Capture before a
// Restore discards the first snapshot. If nested pass execution is ever
// needed, this becomes a stack; until then the single slot keeps the
// common bracket cheap.
type StateBarrier struct {
	renderer render.Renderer
	scene    render.Scene
	camera   render.Camera

	rendererSnap render.RendererState
	sceneSnap    render.SceneState
	cameraSnap   render.CameraState

	captured bool
}

// NewStateBarrier creates an empty state barrier.
func NewStateBarrier() *StateBarrier {
	return &StateBarrier{}
}

// Capture snapshots the ambient state of the given renderer, scene, and
// camera. Nil arguments are allowed and simply omit that section from the
// snapshot. A previous unrestored snapshot is discarded.
func (b *StateBarrier) Capture(r render.Renderer, s render.Scene, c render.Camera) {
	if b.captured {
		Logger().Debug("state barrier capture over unrestored snapshot, discarding previous")
	}

	b.renderer, b.scene, b.camera = r, s, c
	if r != nil {
		b.rendererSnap = *r.RenderState()
	}
	if s != nil {
		b.sceneSnap = *s.SceneState()
	}
	if c != nil {
		b.cameraSnap = *c.CameraState()
	}
	b.captured = true
}

// Restore writes the stored snapshot back to the objects it was captured
// from and releases the slot. Without a prior Capture it does nothing.
func (b *StateBarrier) Restore() {
	if !b.captured {
		return
	}
	if b.renderer != nil {
		*b.renderer.RenderState() = b.rendererSnap
	}
	if b.scene != nil {
		*b.scene.SceneState() = b.sceneSnap
	}
	if b.camera != nil {
		*b.camera.CameraState() = b.cameraSnap
	}
	b.clearSlot()
}

// Clear drops the stored snapshot without restoring it.
func (b *StateBarrier) Clear() {
	b.clearSlot()
}

func (b *StateBarrier) clearSlot() {
	b.renderer, b.scene, b.camera = nil, nil, nil
	b.rendererSnap = render.RendererState{}
	b.sceneSnap = render.SceneState{}
	b.cameraSnap = render.CameraState{}
	b.captured = false
}

// HasCapturedState reports whether a snapshot is currently held.
func (b *StateBarrier) HasCapturedState() bool {
	return b.captured
}

// CapturedRendererState returns a copy of the held renderer snapshot.
// ok is false when no snapshot is held or the renderer was nil at capture.
func (b *StateBarrier) CapturedRendererState() (state render.RendererState, ok bool) {
	if !b.captured || b.renderer == nil {
		return render.RendererState{}, false
	}
	return b.rendererSnap, true
}

// CapturedSceneState returns a copy of the held scene snapshot.
// ok is false when no snapshot is held or the scene was nil at capture.
func (b *StateBarrier) CapturedSceneState() (state render.SceneState, ok bool) {
	if !b.captured || b.scene == nil {
		return render.SceneState{}, false
	}
	return b.sceneSnap, true
}

// CapturedCameraState returns a copy of the held camera snapshot.
// ok is false when no snapshot is held or the camera was nil at capture.
func (b *StateBarrier) CapturedCameraState() (state render.CameraState, ok bool) {
	if !b.captured || b.camera == nil {
		return render.CameraState{}, false
	}
	return b.cameraSnap, true
}

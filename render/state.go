// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"github.com/gogpu/gputypes"
)

// Renderer exposes the mutable output state of a host renderer.
//
// The graph reads and rewrites this state while executing passes, so the
// returned pointer must stay stable for the lifetime of the renderer.
// RendererState implements Renderer itself; hosts can embed it to satisfy
// the interface with no extra code.
type Renderer interface {
	RenderState() *RendererState
}

// Scene exposes the mutable presentation state of a host scene.
type Scene interface {
	SceneState() *SceneState
}

// Camera exposes the mutable visibility state of a host camera.
type Camera interface {
	CameraState() *CameraState
}

// RendererState holds the renderer output settings that passes are allowed
// to rewrite mid-frame: the active target, clear values, and auto-clear
// behavior.
type RendererState struct {
	// Target is the active output destination. Nil means the host's
	// default surface.
	Target Target

	// ClearColor is the color used when clearing the active target.
	ClearColor gputypes.Color

	// ClearAlpha is the alpha used when clearing the active target.
	ClearAlpha float32

	// AutoClear controls whether the renderer clears the target before
	// drawing. The three fields below select which aspects are cleared.
	AutoClear        bool
	AutoClearColor   bool
	AutoClearDepth   bool
	AutoClearStencil bool
}

// NewRendererState returns renderer state with the conventional defaults:
// no explicit target, opaque black clear, all auto-clear flags on.
func NewRendererState() *RendererState {
	return &RendererState{
		ClearAlpha:       1,
		AutoClear:        true,
		AutoClearColor:   true,
		AutoClearDepth:   true,
		AutoClearStencil: true,
	}
}

// RenderState returns the state itself, satisfying Renderer.
func (s *RendererState) RenderState() *RendererState { return s }

// SceneState holds the scene presentation settings that passes may swap out
// while rendering: background, environment, and a forced material.
//
// The fields are host-specific objects; the graph only saves and restores
// them, it never inspects them.
type SceneState struct {
	// Background is drawn behind all scene content. Nil means none.
	Background any

	// Environment provides image-based lighting for the scene. Nil means
	// none.
	Environment any

	// OverrideMaterial forces every object to render with one material,
	// e.g. a normal or depth material. Nil disables the override.
	OverrideMaterial any
}

// SceneState returns the state itself, satisfying Scene.
func (s *SceneState) SceneState() *SceneState { return s }

// CameraState holds the camera visibility settings passes may narrow while
// rendering subsets of the scene.
type CameraState struct {
	// LayerMask selects which scene layers the camera sees. Bit n set
	// means layer n is visible.
	LayerMask uint32
}

// NewCameraState returns camera state seeing only the default layer 0.
func NewCameraState() *CameraState {
	return &CameraState{LayerMask: 1}
}

// CameraState returns the state itself, satisfying Camera.
func (s *CameraState) CameraState() *CameraState { return s }

// SeesLayer reports whether the camera sees the given layer.
func (s *CameraState) SeesLayer(layer uint) bool {
	return s.LayerMask&(1<<layer) != 0
}

// EnableLayer makes the given layer visible to the camera.
func (s *CameraState) EnableLayer(layer uint) {
	s.LayerMask |= 1 << layer
}

// DisableLayer hides the given layer from the camera.
func (s *CameraState) DisableLayer(layer uint) {
	s.LayerMask &^= 1 << layer
}

// SetOnlyLayer makes the given layer the single visible layer.
func (s *CameraState) SetOnlyLayer(layer uint) {
	s.LayerMask = 1 << layer
}

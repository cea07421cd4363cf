// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render provides the integration layer between the frame graph and
// host applications.
//
// This package defines the device plumbing and the host-side state the graph
// saves and restores around a frame: renderer output settings, scene
// presentation settings, and camera visibility.
//
// # Key Principle
//
// The frame graph RECEIVES a GPU device from the host application, it does
// NOT create its own. This follows the Vello/femtovg/Skia pattern where the
// rendering library is injected with GPU resources rather than managing them
// itself.
//
// # Core Interfaces
//
//   - DeviceHandle: GPU device access from the host application
//   - Target: final output destination (Pixmap, Surface)
//   - Renderer, Scene, Camera: mutable host state the graph snapshots
//
// # Usage
//
// Integration with gogpu:
//
//	app := gogpu.NewApp(gogpu.Config{...})
//	var graph *framegraph.Graph
//
//	app.OnInit(func(gc *gogpu.Context) {
//	    // The graph receives the GPU device from gogpu (zero overhead).
//	    graph, _ = framegraph.New(gc.DeviceHandle())
//	})
//
// Hosts that have no renderer/scene/camera types of their own can use the
// state structs directly:
//
//	renderer := render.NewRendererState()
//	scene := &render.SceneState{}
//	camera := render.NewCameraState()
//
// # Thread Safety
//
// The state types are NOT thread-safe. They belong to the render loop
// goroutine, matching the graph's own execution model.
package render

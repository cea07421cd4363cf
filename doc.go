// Package framegraph composes GPU post-processing passes into a frame
// graph. Declared resource reads and writes order the passes, and
// external state freezes once per frame. Every pass runs bracketed by a
// state barrier so its mutations of shared renderer state never leak.
//
// # Overview
//
// A Graph owns passes. Each pass declares its inputs and outputs by
// resource id; the graph validates the declarations, schedules producers
// before consumers, allocates one offscreen target per resource, and
// records all enabled passes into a single command submission per frame.
//
// Host state enters through two doors. The Registry freezes host-owned
// values once per frame, so every pass and enable predicate observes one
// consistent snapshot. The DeviceHandle hands the graph the host's GPU
// device; the graph never creates its own.
//
// # Quick Start
//
//	g, err := framegraph.New(deviceHandle)
//	if err != nil {
//		return err
//	}
//	defer g.Dispose()
//
//	g.AddPass(effect.NewSceneSource("scene", effect.SceneSourceConfig{
//		Output:    "scene",
//		WithDepth: true,
//		AutoClear: true,
//		Draw:      drawWorld,
//	}))
//	g.AddPass(effect.NewBloom("bloom", effect.BloomConfig{
//		Input:  "scene",
//		Output: "final",
//	}))
//
//	// Once per frame:
//	if err := g.Execute(width, height); err != nil {
//		return err
//	}
//	view, _ := g.Output()
//
// # Architecture
//
// The package splits into:
//   - Root: Graph, Registry, StateBarrier, ResourceRecovery, scheduling
//   - effect: concrete passes (scene and normal sources, bloom, lensing,
//     composite, environment composite)
//   - render: host integration types (DeviceHandle, ambient state)
//   - internal/gpu: target pool, pipelines, per-frame sessions, readback
//
// # Frame Protocol
//
// Execute advances the registry, captures all external values, then runs
// every enabled pass in dependency order. Ties break by pass priority,
// then registration order. A zero-sized frame advances external state
// without recording GPU work. The first pass error aborts the frame and
// discards its recorded work.
//
// # Context Loss
//
// After a graphics-context loss, call Recover: registered managers drop
// dead handles and rebuild in priority order, and graph-owned targets
// and pipelines reallocate lazily on the next Execute.
package framegraph

// Version information
const (
	// Version is the current version of the library
	Version = "0.2.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 2

	// VersionPatch is the patch version
	VersionPatch = 0
)

// Package effect provides the concrete render-graph passes: scene and
// normal sources that draw host content, and the post-processing chain
// (bloom, gravitational lensing, N-input composite, environment
// composite) that filters it.
//
// Every pass implements framegraph.Pass. Construction takes the pass's
// resource wiring (which graph ids it reads and writes); visual
// parameters have live setters that take effect on the next frame.
// Pipelines and private buffers are created lazily on first execution
// and released by Dispose.
package effect

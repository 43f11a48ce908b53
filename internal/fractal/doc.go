// Package fractal holds the pure rendering kernel: palettes, the quadratic
// escape-time evaluator, line ranges and the per-worker line renderer.
//
// Nothing in this package owns goroutines or shared state. The coordinator
// in internal/render/engine builds one Palette per session and hands each
// worker a Job; workers answer with Messages.
package fractal

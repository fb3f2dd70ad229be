// Package motion owns the wake-up motion detector.
//
// Responsibilities: per-pixel baseline capture, the fluctuation filter that
// retires chronically noisy pixels, per-frame motion scoring, and the bounded
// success counter that turns consecutive motion frames into a one-shot
// confirmation with smooth progress.
// Key types: Detector, DetectorConfig, Outcome.
//
// Dependency rule: motion depends on depth and config only. It performs no
// I/O and no locking; frames must be delivered by a single goroutine.
package motion

// Package depth owns the depth-frame data model.
//
// Responsibilities: per-pixel samples, frame resolution, the binary frame
// codec shared by the serial sensor link and replay files, and mapping of raw
// sensor readings (including negative sentinels) to known/unknown samples.
// Key types: Sample, Frame, Resolution, Encoder, Decoder.
//
// Dependency rule: depth depends on nothing else in this module.
package depth

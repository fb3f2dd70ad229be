package depth

import (
	"fmt"
	"time"
)

// Sample is a single pixel reading.
type Sample struct {
	Depth int32 // millimetres; raw sentinels may be negative
	Known bool  // false when the sensor could not resolve a depth
}

// Resolution is the fixed pixel grid of a depth stream.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultResolution matches the 640x480 depth stream the detector was tuned on.
var DefaultResolution = Resolution{Width: 640, Height: 480}

// DefaultFrameRate is the nominal sensor rate in frames per second.
const DefaultFrameRate = 30

// Pixels returns the number of samples in a frame of this resolution.
func (r Resolution) Pixels() int {
	return r.Width * r.Height
}

// Validate checks the resolution is usable.
func (r Resolution) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("resolution must be positive, got %dx%d", r.Width, r.Height)
	}
	if r.Width > 0xFFFF || r.Height > 0xFFFF {
		return fmt.Errorf("resolution %dx%d exceeds 65535 on an axis", r.Width, r.Height)
	}
	return nil
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Frame is one sampled snapshot of the depth stream, stored row-major.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	Width      int
	Height     int
	Samples    []Sample
}

// NewFrame allocates a frame for the given resolution with every sample unknown.
func NewFrame(res Resolution, seq uint64, at time.Time) Frame {
	return Frame{
		Seq:        seq,
		CapturedAt: at,
		Width:      res.Width,
		Height:     res.Height,
		Samples:    make([]Sample, res.Pixels()),
	}
}

// Resolution reports the frame's declared resolution.
func (f Frame) Resolution() Resolution {
	return Resolution{Width: f.Width, Height: f.Height}
}

// Len returns the number of samples carried by the frame.
func (f Frame) Len() int {
	return len(f.Samples)
}

// Index returns the row-major sample index for pixel (x, y).
func (f Frame) Index(x, y int) int {
	return y*f.Width + x
}

// Fill sets every sample to the same reading.
func (f Frame) Fill(depthMM int32, known bool) {
	for i := range f.Samples {
		f.Samples[i] = Sample{Depth: depthMM, Known: known}
	}
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	c := f
	c.Samples = make([]Sample, len(f.Samples))
	copy(c.Samples, f.Samples)
	return c
}

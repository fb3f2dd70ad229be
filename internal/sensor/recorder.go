package sensor

import (
	"context"
	"errors"
	"io"

	"github.com/banshee-data/wakewatch/internal/depth"
)

// Recorder tees the frames of a Source into a replay log. A failed write
// stops recording but never interrupts the frames flowing to the caller.
type Recorder struct {
	src Source
	w   io.Writer
	enc *depth.Encoder

	recorded int
	err      error
}

// NewRecorder wraps src. If w is an io.Closer it is closed with the recorder.
func NewRecorder(src Source, w io.Writer) *Recorder {
	return &Recorder{src: src, w: w, enc: depth.NewEncoder(w)}
}

// Next returns the next frame from the wrapped source and records it.
func (r *Recorder) Next(ctx context.Context) (depth.Frame, error) {
	f, err := r.src.Next(ctx)
	if err != nil {
		return f, err
	}
	if r.err == nil {
		if err := r.enc.Encode(f); err != nil {
			r.err = err
			opsf("recording stopped after %d frames: %v", r.recorded, err)
		} else {
			r.recorded++
		}
	}
	return f, nil
}

// Recorded returns the number of frames written so far.
func (r *Recorder) Recorded() int {
	return r.recorded
}

// Err returns the write error that stopped recording, if any.
func (r *Recorder) Err() error {
	return r.err
}

// Close closes the wrapped source and the recording.
func (r *Recorder) Close() error {
	srcErr := r.src.Close()
	var wErr error
	if c, ok := r.w.(io.Closer); ok {
		wErr = c.Close()
	}
	diagf("recorded %d frames", r.recorded)
	return errors.Join(srcErr, wErr)
}

package sensor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/banshee-data/wakewatch/internal/depth"
	"github.com/banshee-data/wakewatch/internal/timeutil"
)

// ReplaySource plays back a recorded frame log.
type ReplaySource struct {
	r      io.Reader
	dec    *depth.Decoder
	ticker timeutil.Ticker
	served int
	closed bool
}

// NewReplaySource replays frames from r. With rate > 0 the first frame is
// served immediately and each later one waits for the next tick of clock.
func NewReplaySource(r io.Reader, rate float64, clock timeutil.Clock) *ReplaySource {
	s := &ReplaySource{r: r, dec: depth.NewDecoder(r)}
	if rate > 0 {
		if clock == nil {
			clock = timeutil.RealClock{}
		}
		s.ticker = clock.NewTicker(time.Duration(float64(time.Second) / rate))
	}
	return s
}

// OpenReplay opens a frame log written by a Recorder or gen-depthlog.
// A missing file is reported as ErrNoSensor.
func OpenReplay(path string, rate float64, clock timeutil.Clock) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: replay %s not found", ErrNoSensor, path)
		}
		return nil, fmt.Errorf("open replay %s: %w", path, err)
	}
	diagf("replaying %s at %.1f fps", path, rate)
	return NewReplaySource(f, rate, clock), nil
}

// Next returns the next recorded frame. The end of the log is reported as
// ErrSourceLost, the same way an unplugged sensor is.
func (s *ReplaySource) Next(ctx context.Context) (depth.Frame, error) {
	if s.closed {
		return depth.Frame{}, ErrClosed
	}
	if s.ticker != nil && s.served > 0 {
		select {
		case <-s.ticker.C():
		case <-ctx.Done():
			return depth.Frame{}, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return depth.Frame{}, err
	}

	f, err := s.dec.Decode()
	if err != nil {
		if errors.Is(err, io.EOF) {
			diagf("replay exhausted after %d frames", s.served)
			return depth.Frame{}, fmt.Errorf("%w: replay exhausted", ErrSourceLost)
		}
		opsf("replay corrupt after %d frames: %v", s.served, err)
		return depth.Frame{}, fmt.Errorf("%w: %v", ErrSourceLost, err)
	}
	s.served++
	tracef("replay frame seq=%d", f.Seq)
	return f, nil
}

// Close stops pacing and closes the underlying reader when it is closable.
func (s *ReplaySource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

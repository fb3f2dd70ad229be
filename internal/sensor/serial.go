package sensor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/banshee-data/wakewatch/internal/depth"
)

const (
	startCommandFormat = "S=%dx%d@%d\n"
	stopCommand        = "X\n"
)

// SerialSource reads encoded frames from a serial-attached depth bridge.
//
// On construction it asks the bridge to start streaming at the requested
// resolution and rate; Close asks it to stop and releases the port. Any read
// error, end of stream or corrupt frame is treated as loss of the source, since
// the byte stream cannot be resynchronised.
type SerialSource struct {
	port Porter
	res  depth.Resolution

	frames chan depth.Frame
	stop   chan struct{}
	done   chan struct{}

	mu     sync.Mutex
	err    error
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// NewSerialSource starts the stream on an opened port. The source takes
// ownership of port; it is closed on failure.
func NewSerialSource(port Porter, res depth.Resolution, fps int) (*SerialSource, error) {
	if err := res.Validate(); err != nil {
		_ = port.Close()
		return nil, err
	}
	if fps <= 0 {
		fps = depth.DefaultFrameRate
	}
	if _, err := fmt.Fprintf(port, startCommandFormat, res.Width, res.Height, fps); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: start stream: %v", ErrNoSensor, err)
	}
	diagf("stream started at %s@%d", res, fps)

	s := &SerialSource{
		port:   port,
		res:    res,
		frames: make(chan depth.Frame, 2),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.readLoop(depth.NewDecoder(port))
	return s, nil
}

func (s *SerialSource) readLoop(dec *depth.Decoder) {
	defer close(s.done)
	defer close(s.frames)

	for {
		f, err := dec.Decode()
		if err != nil {
			s.fail(err)
			return
		}
		tracef("frame seq=%d %dx%d", f.Seq, f.Width, f.Height)
		select {
		case s.frames <- f:
		case <-s.stop:
			return
		}
	}
}

func (s *SerialSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if errors.Is(err, io.EOF) {
		s.err = fmt.Errorf("%w: stream ended", ErrSourceLost)
	} else {
		s.err = fmt.Errorf("%w: %v", ErrSourceLost, err)
	}
	opsf("%v", s.err)
}

// Next returns the next frame from the bridge.
func (s *SerialSource) Next(ctx context.Context) (depth.Frame, error) {
	select {
	case f, ok := <-s.frames:
		if ok {
			return f, nil
		}
	case <-ctx.Done():
		return depth.Frame{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return depth.Frame{}, ErrClosed
	}
	return depth.Frame{}, s.err
}

// Close stops the stream and releases the port. It is safe to call more than once.
func (s *SerialSource) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.stop)
		if _, err := io.WriteString(s.port, stopCommand); err != nil {
			opsf("stop command failed: %v", err)
		}
		s.closeErr = s.port.Close()
		<-s.done
		diagf("stream stopped")
	})
	return s.closeErr
}

package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/banshee-data/wakewatch/internal/depth"
	"github.com/banshee-data/wakewatch/internal/timeutil"
)

var (
	// ErrSourceLost marks a terminal loss of the frame source. It is distinct
	// from an invalid frame and is never retried by the session.
	ErrSourceLost = errors.New("sensor: source lost")

	// ErrNoSensor is returned when no frame source could be acquired.
	ErrNoSensor = errors.New("sensor: no sensor found")

	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("sensor: source closed")
)

// Source supplies depth frames one at a time. Next blocks until a frame is
// available, the context is done, or the source is lost. Implementations are
// not safe for concurrent calls to Next.
type Source interface {
	Next(ctx context.Context) (depth.Frame, error)
	Close() error
}

// Kind selects a Source implementation.
type Kind string

const (
	KindSerial    Kind = "serial"
	KindReplay    Kind = "replay"
	KindSynthetic Kind = "synthetic"
)

// ParseKind validates a source kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindSerial, KindReplay, KindSynthetic:
		return k, nil
	case "":
		return KindSerial, nil
	default:
		return "", fmt.Errorf("unknown source kind %q: expected serial, replay, or synthetic", s)
	}
}

// Options configures Open.
type Options struct {
	Kind Kind

	// Path is the serial device (empty auto-detects) or the replay file.
	Path string
	Port PortOptions

	Resolution depth.Resolution
	FrameRate  int

	// ReplayRate paces replays in frames per second; 0 replays unpaced.
	ReplayRate float64

	Scene Scene

	// MinDepthMM and MaxDepthMM bound the sensor's reliable range; known
	// samples outside it are delivered as unknown. Zero MaxDepthMM disables.
	MinDepthMM int32
	MaxDepthMM int32

	// RecordPath, when set, tees every delivered frame into a replay file.
	RecordPath string

	Clock  timeutil.Clock
	Opener PortOpener
}

// Open acquires a Source. The caller owns the result and must Close it.
func Open(ctx context.Context, opts Options) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Resolution == (depth.Resolution{}) {
		opts.Resolution = depth.DefaultResolution
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = depth.DefaultFrameRate
	}

	var (
		src Source
		err error
	)
	switch opts.Kind {
	case KindSerial, "":
		src, err = openSerial(opts)
	case KindReplay:
		src, err = OpenReplay(opts.Path, opts.ReplayRate, opts.Clock)
	case KindSynthetic:
		scene := opts.Scene
		if scene == (Scene{}) {
			scene = DefaultScene()
			scene.Resolution = opts.Resolution
			scene.FrameRate = float64(opts.FrameRate)
		}
		if scene.Resolution == (depth.Resolution{}) {
			scene.Resolution = opts.Resolution
		}
		src, err = NewSyntheticSource(scene, opts.Clock)
	default:
		return nil, fmt.Errorf("unknown source kind %q", opts.Kind)
	}
	if err != nil {
		return nil, err
	}
	if opts.MaxDepthMM > 0 {
		src = &rangeSource{Source: src, minMM: opts.MinDepthMM, maxMM: opts.MaxDepthMM}
	}

	if opts.RecordPath == "" {
		return src, nil
	}
	f, err := os.Create(opts.RecordPath)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("create recording %s: %w", opts.RecordPath, err)
	}
	diagf("recording frames to %s", opts.RecordPath)
	return NewRecorder(src, &bufferedFile{Writer: bufio.NewWriterSize(f, 256*1024), f: f}), nil
}

func openSerial(opts Options) (Source, error) {
	path := opts.Path
	if path == "" {
		var err error
		if path, err = DetectPort(); err != nil {
			return nil, err
		}
	}
	opener := opts.Opener
	if opener == nil {
		opener = OpenSerialPort
	}
	port, err := opener(path, opts.Port)
	if err != nil {
		return nil, err
	}
	diagf("opened %s", path)
	return NewSerialSource(port, opts.Resolution, opts.FrameRate)
}

type bufferedFile struct {
	*bufio.Writer
	f *os.File
}

func (b *bufferedFile) Close() error {
	flushErr := b.Flush()
	closeErr := b.f.Close()
	return errors.Join(flushErr, closeErr)
}

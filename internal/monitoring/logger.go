package monitoring

import (
	"io"
	"log"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// RotatingFileOptions controls the on-disk ops log.
type RotatingFileOptions struct {
	Path       string
	MaxSizeMB  int // rotate after this many megabytes (default 10)
	MaxBackups int // rotated files to keep (default 5)
	MaxAgeDays int // days to keep rotated files (default 14)
	Compress   bool
}

// NewRotatingFile returns a size-rotated log file writer. An empty path
// returns nil so callers can pass the result straight to SetLogWriters.
func NewRotatingFile(opts RotatingFileOptions) io.WriteCloser {
	if opts.Path == "" {
		return nil
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 5
	}
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = 14
	}
	return &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
}

// Tee returns a writer duplicating to every non-nil writer, or nil if none.
func Tee(writers ...io.Writer) io.Writer {
	var ws []io.Writer
	for _, w := range writers {
		if w != nil {
			ws = append(ws, w)
		}
	}
	switch len(ws) {
	case 0:
		return nil
	case 1:
		return ws[0]
	default:
		return io.MultiWriter(ws...)
	}
}

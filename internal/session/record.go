package session

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/wakewatch/internal/motion"
)

// Record summarises a finished session for history.
type Record struct {
	ID        uuid.UUID `json:"id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Outcome   EndReason `json:"outcome"`
	Source    string    `json:"source,omitempty"`

	FramesScored   uint64  `json:"frames_scored"`
	MotionFrames   uint64  `json:"motion_frames"`
	InvalidFrames  uint64  `json:"invalid_frames"`
	ExcludedPixels int     `json:"excluded_pixels"`
	PeakProgress   float64 `json:"peak_progress"`

	// Qualifying pixel counts over every scored frame.
	QualifyingMean   float64 `json:"qualifying_mean"`
	QualifyingStdDev float64 `json:"qualifying_stddev"`

	Config motion.DetectorConfig `json:"config"`
}

// Duration returns how long the session ran.
func (r Record) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// ProgressPoint is one change of the progress value.
type ProgressPoint struct {
	Seq          uint64    `json:"seq"`
	At           time.Time `json:"at"`
	Progress     float64   `json:"progress"`
	SuccessCount int       `json:"success_count"`
}

// Store persists session history. Implementations must be safe for use by
// several sessions in sequence.
type Store interface {
	InsertSession(ctx context.Context, r Record) error
	InsertProgress(ctx context.Context, id uuid.UUID, points []ProgressPoint) error
}

// qualifyingHistogram counts scored frames by qualifying pixel count. Its size
// is bounded by the number of distinct counts, not by the session length.
type qualifyingHistogram map[int]float64

func (h qualifyingHistogram) add(qualifying int) {
	h[qualifying]++
}

// meanStdDev returns the weighted mean and sample standard deviation of the
// recorded counts.
func (h qualifyingHistogram) meanStdDev() (mean, std float64) {
	if len(h) == 0 {
		return 0, 0
	}
	keys := make([]int, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	x := make([]float64, len(keys))
	w := make([]float64, len(keys))
	for i, k := range keys {
		x[i] = float64(k)
		w[i] = h[k]
	}
	mean, std = stat.MeanStdDev(x, w)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

package motion

import (
	"errors"
	"fmt"

	"github.com/banshee-data/wakewatch/internal/depth"
)

var (
	// ErrInvalidFrame is returned for a frame whose sample count does not match
	// the configured resolution. Detector state is left untouched.
	ErrInvalidFrame = errors.New("motion: invalid frame")

	// ErrReleased is returned when a frame arrives after Release.
	ErrReleased = errors.New("motion: detector released")
)

// State is the lifecycle position of a detection session.
type State int

const (
	StateUninitialized State = iota
	StateBaselineCapturing
	StateAccumulating
	StateConfirmed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBaselineCapturing:
		return "baseline_capturing"
	case StateAccumulating:
		return "accumulating"
	case StateConfirmed:
		return "confirmed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// OutcomeKind classifies what OnFrame did with a frame.
type OutcomeKind int

const (
	// OutcomeIgnored: the session already confirmed; nothing changed.
	OutcomeIgnored OutcomeKind = iota
	// OutcomeBaseline: the frame became the baseline; nothing was scored.
	OutcomeBaseline
	// OutcomeScored: the frame was scored and carries a progress value.
	OutcomeScored
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeBaseline:
		return "baseline"
	case OutcomeScored:
		return "scored"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the per-frame result of OnFrame.
type Outcome struct {
	Kind OutcomeKind
	Seq  uint64

	// Set only for OutcomeScored.
	Motion           bool    // qualifying pixels met the match threshold
	Progress         float64 // SuccessCount / RequiredSuccessFrames
	Confirmed        bool    // true on exactly one frame per session
	SuccessCount     int
	QualifyingPixels int
	NoisyPixels      int // flagged by the fluctuation filter this frame
	NewlyExcluded    int // pixels that hit the fluctuation ceiling this frame
	ExcludedPixels   int // total permanently excluded pixels
}

// HasProgress reports whether the outcome should be forwarded as a progress signal.
func (o Outcome) HasProgress() bool {
	return o.Kind == OutcomeScored
}

// Stats is a point-in-time summary of detector state.
type Stats struct {
	State          State
	SuccessCount   int
	Required       int
	Progress       float64
	FramesScored   uint64
	MotionFrames   uint64
	ExcludedPixels int
}

// Detector turns a stream of depth frames into wake-up progress and a single
// confirmation. It is not safe for concurrent use: each frame is scored
// against the one before it, so frames must arrive one at a time.
type Detector struct {
	cfg DetectorConfig
	n   int

	state        State
	baseline     []int32
	last         []int32
	fluctuations []uint16
	maxFluct     uint16

	successCount int
	excluded     int
	framesScored uint64
	motionFrames uint64
}

// NewDetector validates cfg and returns a detector waiting for its baseline frame.
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}
	d := &Detector{cfg: cfg, n: cfg.Resolution.Pixels()}
	d.allocate()
	return d, nil
}

func (d *Detector) allocate() {
	d.baseline = make([]int32, d.n)
	d.last = make([]int32, d.n)
	d.fluctuations = make([]uint16, d.n)
	d.maxFluct = uint16(d.cfg.MaxFluctuationTriggers)
	d.state = StateBaselineCapturing
}

// Config returns a copy of the detector's configuration.
func (d *Detector) Config() DetectorConfig {
	return d.cfg
}

// State returns the current lifecycle state.
func (d *Detector) State() State {
	return d.state
}

// OnFrame scores one frame. Frames must be delivered sequentially.
//
// The first accepted frame becomes the baseline and is not scored. Frames of
// the wrong length return ErrInvalidFrame without changing state. Once the
// session has confirmed, further frames return an OutcomeIgnored and nil.
func (d *Detector) OnFrame(frame depth.Frame) (Outcome, error) {
	switch d.state {
	case StateUninitialized:
		return Outcome{}, ErrReleased
	case StateConfirmed:
		return Outcome{Kind: OutcomeIgnored, Seq: frame.Seq}, nil
	}

	if len(frame.Samples) != d.n {
		opsf("rejecting frame seq=%d: %d samples, want %d", frame.Seq, len(frame.Samples), d.n)
		return Outcome{}, fmt.Errorf("%w: %d samples, want %d (%s)", ErrInvalidFrame, len(frame.Samples), d.n, d.cfg.Resolution)
	}

	if d.state == StateBaselineCapturing {
		for i, s := range frame.Samples {
			d.baseline[i] = s.Depth
			d.last[i] = s.Depth
		}
		d.state = StateAccumulating
		diagf("baseline captured from frame seq=%d (%d pixels)", frame.Seq, d.n)
		return Outcome{Kind: OutcomeBaseline, Seq: frame.Seq}, nil
	}

	out := Outcome{Kind: OutcomeScored, Seq: frame.Seq}
	distance := int64(d.cfg.DistanceDecreaseThreshold)
	fluct := int64(d.cfg.FluctuationChangeThreshold)

	for i, s := range frame.Samples {
		if d.fluctuations[i] >= d.maxFluct {
			continue
		}

		cur := int64(s.Depth)
		delta := int64(d.last[i]) - cur
		if delta < 0 {
			delta = -delta
		}

		if delta >= fluct || !s.Known {
			d.fluctuations[i]++
			out.NoisyPixels++
			if d.fluctuations[i] >= d.maxFluct {
				out.NewlyExcluded++
			}
		} else if int64(d.baseline[i])-cur >= distance {
			out.QualifyingPixels++
		}

		d.last[i] = s.Depth
	}

	d.excluded += out.NewlyExcluded
	d.framesScored++
	out.ExcludedPixels = d.excluded

	required := d.cfg.RequiredSuccessFrames
	if out.QualifyingPixels >= d.cfg.PixelMatchThreshold {
		out.Motion = true
		d.motionFrames++
		if d.successCount < required {
			d.successCount++
		}
		if d.successCount == required {
			out.Confirmed = true
			d.state = StateConfirmed
			diagf("wake-up confirmed at frame seq=%d after %d consecutive motion frames", frame.Seq, required)
		}
	} else {
		d.successCount = 0
	}

	out.SuccessCount = d.successCount
	out.Progress = float64(d.successCount) / float64(required)

	if out.NewlyExcluded > 0 {
		diagf("frame seq=%d retired %d noisy pixels (total %d)", frame.Seq, out.NewlyExcluded, d.excluded)
	}
	tracef("frame seq=%d qualifying=%d noisy=%d motion=%t success=%d/%d",
		frame.Seq, out.QualifyingPixels, out.NoisyPixels, out.Motion, d.successCount, required)

	return out, nil
}

// Stats returns a summary of the current state.
func (d *Detector) Stats() Stats {
	st := Stats{
		State:          d.state,
		SuccessCount:   d.successCount,
		Required:       d.cfg.RequiredSuccessFrames,
		FramesScored:   d.framesScored,
		MotionFrames:   d.motionFrames,
		ExcludedPixels: d.excluded,
	}
	if st.Required > 0 {
		st.Progress = float64(st.SuccessCount) / float64(st.Required)
	}
	return st
}

// FluctuationCount returns the fluctuation counter of pixel i.
func (d *Detector) FluctuationCount(i int) int {
	if i < 0 || i >= len(d.fluctuations) {
		return 0
	}
	return int(d.fluctuations[i])
}

// Excluded reports whether pixel i is permanently excluded.
func (d *Detector) Excluded(i int) bool {
	if i < 0 || i >= len(d.fluctuations) {
		return false
	}
	return d.fluctuations[i] >= d.maxFluct
}

// Baseline returns the baseline depth of pixel i and whether a baseline exists.
func (d *Detector) Baseline(i int) (int32, bool) {
	if d.state == StateUninitialized || d.state == StateBaselineCapturing || i < 0 || i >= len(d.baseline) {
		return 0, false
	}
	return d.baseline[i], true
}

// Reset discards all per-pixel and session state and waits for a new baseline.
func (d *Detector) Reset() {
	d.successCount = 0
	d.excluded = 0
	d.framesScored = 0
	d.motionFrames = 0
	if d.baseline == nil {
		d.allocate()
		return
	}
	for i := range d.baseline {
		d.baseline[i] = 0
		d.last[i] = 0
		d.fluctuations[i] = 0
	}
	d.state = StateBaselineCapturing
}

// Release drops the per-pixel arrays. Subsequent frames return ErrReleased
// until Reset is called.
func (d *Detector) Release() {
	d.baseline = nil
	d.last = nil
	d.fluctuations = nil
	d.state = StateUninitialized
}

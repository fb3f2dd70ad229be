package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/wakewatch/internal/motion"
	"github.com/banshee-data/wakewatch/internal/monitoring"
	"github.com/banshee-data/wakewatch/internal/sensor"
	"github.com/banshee-data/wakewatch/internal/timeutil"
)

// ErrAlreadyRun is returned when Run is called more than once.
var ErrAlreadyRun = errors.New("session: already run")

// persistTimeout bounds the history write after the session ends.
const persistTimeout = 5 * time.Second

// Config configures a Session.
type Config struct {
	Detector motion.DetectorConfig

	// Source is owned by the session and closed when Run returns.
	Source     sensor.Source
	SourceName string

	// Store is optional; nil disables history.
	Store Store
	// RecordProgress stores the progress timeline alongside the summary.
	RecordProgress bool

	Clock timeutil.Clock
}

// Status is a point-in-time view of a session, safe to read from any goroutine.
type Status struct {
	ID             string     `json:"id"`
	Source         string     `json:"source,omitempty"`
	State          string     `json:"state"`
	Running        bool       `json:"running"`
	Progress       float64    `json:"progress"`
	PeakProgress   float64    `json:"peak_progress"`
	SuccessCount   int        `json:"success_count"`
	Required       int        `json:"required"`
	FramesScored   uint64     `json:"frames_scored"`
	MotionFrames   uint64     `json:"motion_frames"`
	InvalidFrames  uint64     `json:"invalid_frames"`
	ExcludedPixels int        `json:"excluded_pixels"`
	LastSeq        uint64     `json:"last_seq"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Outcome        EndReason  `json:"outcome,omitempty"`
}

// Session drives one detector from one source until the user is confirmed
// awake, the source is lost, or the caller cancels.
type Session struct {
	id    uuid.UUID
	cfg   Config
	clock timeutil.Clock
	det   *motion.Detector
	queue *signalQueue

	started atomic.Bool

	mu     sync.RWMutex
	status Status

	// Owned by Run.
	hist     qualifyingHistogram
	timeline []ProgressPoint
}

// New validates cfg and prepares a session. Nothing is read from the source
// until Run.
func New(cfg Config) (*Session, error) {
	if cfg.Source == nil {
		return nil, errors.New("session: nil source")
	}
	det, err := motion.NewDetector(cfg.Detector)
	if err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	id := uuid.New()
	return &Session{
		id:    id,
		cfg:   cfg,
		clock: cfg.Clock,
		det:   det,
		queue: newSignalQueue(),
		hist:  make(qualifyingHistogram),
		status: Status{
			ID:       id.String(),
			Source:   cfg.SourceName,
			State:    motion.StateBaselineCapturing.String(),
			Required: cfg.Detector.RequiredSuccessFrames,
		},
	}, nil
}

// ID returns the session identifier used in history.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Signals returns the ordered signal stream. The channel is closed after
// SignalEnded, or without further signals when the session is cancelled. It
// stays open and empty until Run is called.
func (s *Session) Signals() <-chan Signal {
	return s.queue.out
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Run reads frames until the session ends. It returns nil on confirmation, an
// error wrapping sensor.ErrSourceLost when the source goes away, and the
// context's error on cancellation. The source is closed on every path.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	s.queue.start()

	// Cancellation silences the signal stream at once, not when the source
	// next returns.
	stop := context.AfterFunc(ctx, s.queue.cancel)
	defer stop()

	start := s.clock.Now()
	s.mu.Lock()
	s.status.Running = true
	s.status.StartedAt = &start
	s.mu.Unlock()
	monitoring.Logf("session %s started on %s", s.id, s.sourceName())

	reason, runErr := s.loop(ctx)

	if err := s.cfg.Source.Close(); err != nil {
		monitoring.Logf("session %s: closing source: %v", s.id, err)
	}
	stats := s.det.Stats()
	s.det.Release()

	end := s.clock.Now()
	s.mu.Lock()
	s.status.Running = false
	s.status.EndedAt = &end
	s.status.Outcome = reason
	s.status.State = string(reason)
	s.mu.Unlock()

	if reason == ReasonCancelled {
		s.queue.cancel()
	} else {
		s.queue.push(Signal{Kind: SignalEnded, Seq: s.Status().LastSeq, At: end, Reason: reason})
		s.queue.finish()
	}

	s.persist(ctx, s.record(start, end, reason, stats))
	monitoring.Logf("session %s ended: %s after %d scored frames", s.id, reason, stats.FramesScored)
	return runErr
}

func (s *Session) loop(ctx context.Context) (EndReason, error) {
	for {
		frame, err := s.cfg.Source.Next(ctx)
		if ctx.Err() != nil {
			return ReasonCancelled, ctx.Err()
		}
		if err != nil {
			if !errors.Is(err, sensor.ErrSourceLost) {
				err = fmt.Errorf("%w: %v", sensor.ErrSourceLost, err)
			}
			return ReasonSourceLost, fmt.Errorf("session %s: %w", s.id, err)
		}

		out, err := s.det.OnFrame(frame)
		if err != nil {
			if errors.Is(err, motion.ErrInvalidFrame) {
				s.mu.Lock()
				s.status.InvalidFrames++
				s.mu.Unlock()
				continue
			}
			return ReasonSourceLost, fmt.Errorf("session %s: %w", s.id, err)
		}

		s.observe(frame.Seq, out)
		if out.Confirmed {
			return ReasonConfirmed, nil
		}
	}
}

// observe folds one detector outcome into the status, history and signals.
func (s *Session) observe(seq uint64, out motion.Outcome) {
	now := s.clock.Now()
	stats := s.det.Stats()

	s.mu.Lock()
	s.status.LastSeq = seq
	s.status.State = stats.State.String()
	s.status.SuccessCount = stats.SuccessCount
	s.status.Progress = stats.Progress
	s.status.FramesScored = stats.FramesScored
	s.status.MotionFrames = stats.MotionFrames
	s.status.ExcludedPixels = stats.ExcludedPixels
	if stats.Progress > s.status.PeakProgress {
		s.status.PeakProgress = stats.Progress
	}
	s.mu.Unlock()

	if !out.HasProgress() {
		return
	}

	s.hist.add(out.QualifyingPixels)
	if s.cfg.RecordProgress {
		n := len(s.timeline)
		if n == 0 || s.timeline[n-1].Progress != out.Progress {
			s.timeline = append(s.timeline, ProgressPoint{
				Seq:          seq,
				At:           now,
				Progress:     out.Progress,
				SuccessCount: out.SuccessCount,
			})
		}
	}

	s.queue.push(Signal{Kind: SignalProgress, Seq: seq, At: now, Progress: out.Progress})
	if out.Confirmed {
		s.queue.push(Signal{Kind: SignalConfirmed, Seq: seq, At: now, Progress: out.Progress})
	}
}

func (s *Session) record(start, end time.Time, reason EndReason, stats motion.Stats) Record {
	st := s.Status()
	mean, std := s.hist.meanStdDev()
	return Record{
		ID:               s.id,
		StartedAt:        start,
		EndedAt:          end,
		Outcome:          reason,
		Source:           s.cfg.SourceName,
		FramesScored:     stats.FramesScored,
		MotionFrames:     stats.MotionFrames,
		InvalidFrames:    st.InvalidFrames,
		ExcludedPixels:   stats.ExcludedPixels,
		PeakProgress:     st.PeakProgress,
		QualifyingMean:   mean,
		QualifyingStdDev: std,
		Config:           s.cfg.Detector,
	}
}

func (s *Session) persist(ctx context.Context, r Record) {
	if s.cfg.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.cfg.Store.InsertSession(ctx, r); err != nil {
		monitoring.Logf("session %s: store summary: %v", s.id, err)
		return
	}
	if len(s.timeline) == 0 {
		return
	}
	if err := s.cfg.Store.InsertProgress(ctx, s.id, s.timeline); err != nil {
		monitoring.Logf("session %s: store progress: %v", s.id, err)
	}
}

func (s *Session) sourceName() string {
	if s.cfg.SourceName == "" {
		return "unnamed source"
	}
	return s.cfg.SourceName
}

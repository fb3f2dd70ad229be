package session

import (
	"context"
	"sync/atomic"
)

// Presenter is the presentation layer's view of a session.
type Presenter interface {
	OnProgress(value float64)
	OnConfirmed()
}

// EndedPresenter is implemented by presenters that also want the end reason.
type EndedPresenter interface {
	Presenter
	OnEnded(reason EndReason)
}

// Dispatch calls p for each signal in order until the stream closes or ctx is
// done. It returns the end reason, or ReasonCancelled if the stream closed
// without one. p is never called once ctx is done.
func Dispatch(ctx context.Context, signals <-chan Signal, p Presenter) EndReason {
	for {
		if ctx.Err() != nil {
			return ReasonCancelled
		}
		select {
		case <-ctx.Done():
			return ReasonCancelled
		case sig, ok := <-signals:
			if !ok || ctx.Err() != nil {
				return ReasonCancelled
			}
			switch sig.Kind {
			case SignalProgress:
				p.OnProgress(sig.Progress)
			case SignalConfirmed:
				p.OnConfirmed()
			case SignalEnded:
				if ep, ok := p.(EndedPresenter); ok {
					ep.OnEnded(sig.Reason)
				}
				return sig.Reason
			}
		}
	}
}

// Presenters fans each callback out to every presenter in order.
func Presenters(ps ...Presenter) Presenter {
	return multiPresenter(ps)
}

type multiPresenter []Presenter

func (m multiPresenter) OnProgress(v float64) {
	for _, p := range m {
		p.OnProgress(v)
	}
}

func (m multiPresenter) OnConfirmed() {
	for _, p := range m {
		p.OnConfirmed()
	}
}

func (m multiPresenter) OnEnded(reason EndReason) {
	for _, p := range m {
		if ep, ok := p.(EndedPresenter); ok {
			ep.OnEnded(reason)
		}
	}
}

// VolumeFor maps wake-up progress to alarm volume: full volume while the user
// is in bed, fading to silence as they get up.
func VolumeFor(progress float64) float64 {
	switch {
	case progress <= 0:
		return 1
	case progress >= 1:
		return 0
	default:
		return 1 - progress
	}
}

// Tracker holds the session currently running so status readers can follow
// one session after another.
type Tracker struct {
	cur atomic.Pointer[Session]
}

// Set makes s the current session.
func (t *Tracker) Set(s *Session) {
	t.cur.Store(s)
}

// Current returns the current session, or nil before the first one.
func (t *Tracker) Current() *Session {
	return t.cur.Load()
}

// Status returns the current session's status and false when there is none.
func (t *Tracker) Status() (Status, bool) {
	s := t.cur.Load()
	if s == nil {
		return Status{}, false
	}
	return s.Status(), true
}

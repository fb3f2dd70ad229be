package session

import (
	"fmt"
	"sync"
	"time"
)

// SignalKind identifies a Signal.
type SignalKind int

const (
	// SignalProgress carries the wake-up progress in [0,1] for a scored frame.
	SignalProgress SignalKind = iota + 1
	// SignalConfirmed is sent exactly once, when the user is judged awake.
	SignalConfirmed
	// SignalEnded is the last signal of a session that was not cancelled.
	SignalEnded
)

func (k SignalKind) String() string {
	switch k {
	case SignalProgress:
		return "progress"
	case SignalConfirmed:
		return "confirmed"
	case SignalEnded:
		return "ended"
	default:
		return fmt.Sprintf("signal(%d)", int(k))
	}
}

// EndReason explains why a session finished.
type EndReason string

const (
	ReasonConfirmed  EndReason = "confirmed"
	ReasonSourceLost EndReason = "source_lost"
	ReasonCancelled  EndReason = "cancelled"
)

// Signal is one outbound event of a session.
type Signal struct {
	Kind     SignalKind
	Seq      uint64    // frame sequence number that produced the signal
	At       time.Time // session clock time at emission
	Progress float64   // SignalProgress and SignalConfirmed
	Reason   EndReason // SignalEnded
}

// signalQueue delivers signals in order without ever blocking the producer.
// A pump goroutine, started by start, moves pending signals to out as fast as
// the consumer takes them. finish lets the pump drain and close out; cancel
// discards everything still pending and closes out at once.
type signalQueue struct {
	mu       sync.Mutex
	pending  []Signal
	finished bool

	notify    chan struct{}
	cancelled chan struct{}
	cancelOne sync.Once
	startOne  sync.Once
	out       chan Signal
}

func newSignalQueue() *signalQueue {
	q := &signalQueue{
		notify:    make(chan struct{}, 1),
		cancelled: make(chan struct{}),
		out:       make(chan Signal),
	}
	return q
}

// start launches the pump. Calls after the first are no-ops.
func (q *signalQueue) start() {
	q.startOne.Do(func() { go q.pump() })
}

func (q *signalQueue) push(s Signal) {
	q.mu.Lock()
	if q.finished || q.isCancelled() {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, s)
	q.mu.Unlock()
	q.wake()
}

func (q *signalQueue) finish() {
	q.mu.Lock()
	q.finished = true
	q.mu.Unlock()
	q.wake()
}

func (q *signalQueue) cancel() {
	q.cancelOne.Do(func() { close(q.cancelled) })
}

func (q *signalQueue) isCancelled() bool {
	select {
	case <-q.cancelled:
		return true
	default:
		return false
	}
}

func (q *signalQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *signalQueue) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		finished := q.finished
		q.mu.Unlock()

		for _, s := range batch {
			// Cancellation wins over a ready consumer.
			if q.isCancelled() {
				return
			}
			select {
			case <-q.cancelled:
				return
			case q.out <- s:
			}
		}
		if len(batch) > 0 {
			continue
		}
		if finished {
			return
		}
		select {
		case <-q.notify:
		case <-q.cancelled:
			return
		}
	}
}

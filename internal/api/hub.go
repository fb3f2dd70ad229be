package api

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/wakewatch/internal/session"
)

// DefaultSubscriberBuffer is the per-client event backlog before events are
// dropped for that client.
const DefaultSubscriberBuffer = 64

// Event is one session signal as seen by stream clients.
type Event struct {
	Session  string            `json:"session"`
	Kind     string            `json:"kind"`
	At       time.Time         `json:"at"`
	Progress float64           `json:"progress"`
	Volume   float64           `json:"volume"`
	Reason   session.EndReason `json:"reason,omitempty"`
}

// Hub fans session events out to stream subscribers. A slow subscriber loses
// events rather than stalling the presenter that publishes them.
type Hub struct {
	buffer int
	now    func() time.Time

	mu     sync.Mutex
	subs   map[string]chan Event
	closed bool

	dropped atomic.Uint64
}

// NewHub creates a hub with the given per-subscriber buffer (<= 0 selects
// DefaultSubscriberBuffer).
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		buffer: buffer,
		now:    time.Now,
		subs:   make(map[string]chan Event),
	}
}

func subscriberID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a new subscriber. The channel is closed by Unsubscribe
// or Close.
func (h *Hub) Subscribe() (string, <-chan Event) {
	id := subscriberID()
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		close(ch)
		delete(h.subs, id)
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many events were discarded for full subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Publish delivers e to every subscriber without blocking.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Close disconnects every subscriber. Later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

// Presenter returns a session presenter that publishes the session's signals.
func (h *Hub) Presenter(sessionID string) session.EndedPresenter {
	return hubPresenter{hub: h, id: sessionID}
}

type hubPresenter struct {
	hub *Hub
	id  string
}

func (p hubPresenter) event(kind session.SignalKind, progress float64) Event {
	return Event{
		Session:  p.id,
		Kind:     kind.String(),
		At:       p.hub.now(),
		Progress: progress,
		Volume:   session.VolumeFor(progress),
	}
}

func (p hubPresenter) OnProgress(v float64) {
	p.hub.Publish(p.event(session.SignalProgress, v))
}

func (p hubPresenter) OnConfirmed() {
	p.hub.Publish(p.event(session.SignalConfirmed, 1))
}

func (p hubPresenter) OnEnded(reason session.EndReason) {
	e := p.event(session.SignalEnded, 0)
	e.Reason = reason
	if reason == session.ReasonConfirmed {
		e.Progress, e.Volume = 1, 0
	}
	p.hub.Publish(e)
}

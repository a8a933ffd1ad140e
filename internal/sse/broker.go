// Package sse pushes portal state changes to open pages over Server-Sent
// Events: forced navigations after a logout and avatar cache-busting
// timestamps.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Event types emitted by the broker.
const (
	TypeAvatarUpdated  = "avatar.updated"
	TypeAvatarsChanged = "avatars.changed"
	TypeNavigate       = "navigate"
)

// Event is one frame broadcast to every page.
type Event struct {
	Type string
	Data any
}

// AvatarUpdate tells pages to re-fetch one user's avatar.
type AvatarUpdate struct {
	UserID int64 `json:"user_id"`
	T      int64 `json:"t"`
}

// AvatarsChanged summarizes the users whose avatars changed during one
// throttle window.
type AvatarsChanged struct {
	UserIDs []int64 `json:"user_ids"`
}

// Navigation asks pages to move to Location.
type Navigation struct {
	Location string `json:"location"`
	Reload   bool   `json:"reload"`
}

const clientBuffer = 64

// Option configures a Broker.
type Option func(*Broker)

// WithThrottle sets the avatars.changed window. Default 2s.
func WithThrottle(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.throttle = d
		}
	}
}

// WithKeepAlive sets the interval between comment frames on idle
// streams. Zero disables them.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) { b.keepAlive = d }
}

// WithClock replaces the wall clock driving the throttle and keep-alive.
func WithClock(c clockwork.Clock) Option {
	return func(b *Broker) { b.clock = c }
}

// WithLogger sets the logger for dropped frames.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// Broker fans events out to subscribed pages.
//
// A single goroutine owns the subscriber set, the frame sequence and the
// pending avatars.changed summary; public methods talk to it over
// channels.
type Broker struct {
	throttle  time.Duration
	keepAlive time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	avatarCh      chan AvatarUpdate
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. Every avatar update is forwarded at once;
// the ids are also collected and announced together in one
// avatars.changed frame when the throttle window ends.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		throttle:      2 * time.Second,
		keepAlive:     30 * time.Second,
		clock:         clockwork.NewRealClock(),
		logger:        slog.Default(),
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		avatarCh:      make(chan AvatarUpdate, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func encodeFrame(seq uint64, event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload)), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var seq uint64

	pending := make(map[int64]struct{})
	var window clockwork.Timer
	var windowC <-chan time.Time

	broadcast := func(event Event) {
		seq++
		frame, err := encodeFrame(seq, event)
		if err != nil {
			b.logger.Error("encode sse frame",
				slog.String("type", event.Type),
				slog.String("error", err.Error()))
			return
		}
		for ch := range clients {
			select {
			case ch <- frame:
			default:
				b.logger.Debug("sse client buffer full, frame dropped", slog.String("type", event.Type))
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			if window != nil {
				window.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case up := <-b.avatarCh:
			broadcast(Event{Type: TypeAvatarUpdated, Data: up})
			pending[up.UserID] = struct{}{}
			if window == nil {
				window = b.clock.NewTimer(b.throttle)
				windowC = window.Chan()
			}

		case <-windowC:
			ids := make([]int64, 0, len(pending))
			for id := range pending {
				ids = append(ids, id)
			}
			slices.Sort(ids)
			clear(pending)
			window, windowC = nil, nil
			broadcast(Event{Type: TypeAvatarsChanged, Data: AvatarsChanged{UserIDs: ids}})

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker loop and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a page and returns the channel its frames arrive on.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a page and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of subscribed pages.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish broadcasts event to every page.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishAvatar announces a new cache-busting timestamp for userID.
func (b *Broker) PublishAvatar(userID, ts int64) {
	if b.closed.Load() {
		return
	}
	select {
	case b.avatarCh <- AvatarUpdate{UserID: userID, T: ts}:
	case <-b.stopped:
	}
}

// Reload asks every open page to navigate to location with a full reload.
func (b *Broker) Reload(location string) {
	b.Publish(Event{Type: TypeNavigate, Data: Navigation{Location: location, Reload: true}})
}

// ServeHTTP streams frames to one page (GET /events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	var tickC <-chan time.Time
	if b.keepAlive > 0 {
		ticker := b.clock.NewTicker(b.keepAlive)
		defer ticker.Stop()
		tickC = ticker.Chan()
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tickC:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case frame, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}

// Package sse implements a Server-Sent Events broker for memory change events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/noosphere/internal/auth"
)

// Event types emitted by PublishMemoryEvent.
const (
	EntryCreated    = "entry.created"
	StateUpdated    = "state.updated"
	ProjectsUpdated = "projects.updated"
)

// DefaultHeartbeat is the interval of keep-alive comments on idle streams.
const DefaultHeartbeat = 25 * time.Second

// event is one SSE message. userID and projectID are routing keys and are
// not part of the payload: an event with a userID reaches only that user's
// subscribers, and an event with a projectID skips subscribers filtered to
// another project.
type event struct {
	kind      string
	userID    string
	projectID string
	data      any
}

// Filter selects the events a subscriber receives. An empty ProjectID
// means every project of UserID.
type Filter struct {
	UserID    string
	ProjectID string
}

func (f Filter) matches(e event) bool {
	if e.userID != "" && e.userID != f.UserID {
		return false
	}
	return f.ProjectID == "" || e.projectID == "" || e.projectID == f.ProjectID
}

type subscribeReq struct {
	ch     chan []byte
	filter Filter
}

type memoryEventReq struct {
	kind      string
	userID    string
	projectID string
	entryID   string
}

// Broker fans memory change events out to SSE clients.
//
// A single event loop goroutine owns the client set, the frame sequence and
// the per-user projects.updated throttle. Public methods talk to it over
// channels.
type Broker struct {
	projectsMin time.Duration
	heartbeat   time.Duration

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	memoryEventCh chan memoryEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithHeartbeat sets the keep-alive interval used by ServeHTTP.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

// NewBroker creates a broker that emits projects.updated at most once per
// projectsThrottle for each user.
func NewBroker(projectsThrottle time.Duration, opts ...Option) *Broker {
	if projectsThrottle <= 0 {
		projectsThrottle = 2 * time.Second
	}

	b := &Broker{
		projectsMin:   projectsThrottle,
		heartbeat:     DefaultHeartbeat,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		memoryEventCh: make(chan memoryEventReq, 256),
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

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]Filter)
	lastProjects := make(map[string]time.Time)
	var seq uint64

	broadcast := func(e event) {
		payload, err := json.Marshal(e.data)
		if err != nil {
			return
		}
		seq++
		frame := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, e.kind, payload))

		for ch, f := range clients {
			if !f.matches(e) {
				continue
			}
			select {
			case ch <- frame:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			clients[req.ch] = req.filter

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case req := <-b.memoryEventCh:
			data := map[string]string{"project_id": req.projectID}
			if req.kind == EntryCreated {
				data["entry_id"] = req.entryID
			}
			broadcast(event{kind: req.kind, userID: req.userID, projectID: req.projectID, data: data})

			now := time.Now()
			if now.Sub(lastProjects[req.userID]) >= b.projectsMin {
				lastProjects[req.userID] = now
				broadcast(event{kind: ProjectsUpdated, userID: req.userID, data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the event loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client and returns its frame channel.
func (b *Broker) Subscribe(f Filter) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscribeReq{ch: ch, filter: f}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients. It is reported by the
// readiness endpoint.
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

// PublishMemoryEvent publishes kind (entry.created or state.updated) for one
// project of userID, followed by a throttled projects.updated.
func (b *Broker) PublishMemoryEvent(kind, userID, projectID, entryID string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.memoryEventCh <- memoryEventReq{kind: kind, userID: userID, projectID: projectID, entryID: entryID}:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to the authenticated user of the request. The
// optional "project" query parameter narrows the stream to one project.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(Filter{
		UserID:    auth.UserOr(r.Context(), auth.DefaultUser),
		ProjectID: r.URL.Query().Get("project"),
	})
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

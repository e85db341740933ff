package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/noosphere/internal/auth"
)

func recv(t *testing.T, ch chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return ""
	}
}

func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

// lockedRecorder lets the test read the body while the handler writes.
type lockedRecorder struct {
	mu sync.Mutex
	*httptest.ResponseRecorder
}

func (l *lockedRecorder) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ResponseRecorder.Write(p)
}

func (l *lockedRecorder) body() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Body.String()
}

func serveEvents(t *testing.T, b *Broker, ctx context.Context, target string) (*lockedRecorder, context.CancelFunc, chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(ctx)
	req := httptest.NewRequest(http.MethodGet, target, nil).WithContext(ctx)
	w := &lockedRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()
	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	return w, cancel, done
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	assert.Equal(t, 0, b.ClientCount())

	ch := b.Subscribe(Filter{UserID: "alice"})
	assert.Equal(t, 1, b.ClientCount())

	b.Unsubscribe(ch)
	assert.Equal(t, 0, b.ClientCount())
}

func TestPublishMemoryEvent_Frames(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe(Filter{UserID: "alice"})
	defer b.Unsubscribe(ch)

	b.PublishMemoryEvent(EntryCreated, "alice", "p", "e_1")
	b.PublishMemoryEvent(StateUpdated, "alice", "p", "")

	assert.Equal(t, "id: 1\nevent: entry.created\ndata: {\"entry_id\":\"e_1\",\"project_id\":\"p\"}\n\n", recv(t, ch))
	assert.Equal(t, "id: 2\nevent: projects.updated\ndata: {}\n\n", recv(t, ch))
	assert.Equal(t, "id: 3\nevent: state.updated\ndata: {\"project_id\":\"p\"}\n\n", recv(t, ch))
}

func TestPublishMemoryEvent_ProjectsThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe(Filter{UserID: "alice"})
	defer b.Unsubscribe(ch)

	b.PublishMemoryEvent(EntryCreated, "alice", "p", "e_1")
	b.PublishMemoryEvent(StateUpdated, "alice", "p", "")

	var projects, memory int
	for _, msg := range drain(ch) {
		if strings.Contains(msg, ProjectsUpdated) {
			projects++
		} else {
			memory++
		}
	}
	assert.Equal(t, 2, memory)
	assert.Equal(t, 1, projects, "projects.updated is throttled")
}

func TestPublishMemoryEvent_ScopedToUser(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	alice := b.Subscribe(Filter{UserID: "alice"})
	defer b.Unsubscribe(alice)
	bob := b.Subscribe(Filter{UserID: "bob"})
	defer b.Unsubscribe(bob)

	b.PublishMemoryEvent(EntryCreated, "alice", "p", "e_1")

	assert.Contains(t, recv(t, alice), `"entry_id":"e_1"`)
	assert.Empty(t, drain(bob), "bob must not see alice's events")
}

func TestPublishMemoryEvent_ProjectFilter(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	api := b.Subscribe(Filter{UserID: "alice", ProjectID: "acme/api"})
	defer b.Unsubscribe(api)

	b.PublishMemoryEvent(StateUpdated, "alice", "acme/web", "")
	b.PublishMemoryEvent(StateUpdated, "alice", "acme/api", "")

	got := drain(api)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], ProjectsUpdated, "projects.updated is not project-scoped")
	assert.Contains(t, got[1], `"project_id":"acme/api"`)
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe(Filter{UserID: "alice"})
	defer b.Unsubscribe(ch)

	// Buffer holds 64 frames; the rest are dropped without blocking.
	for i := 0; i < 70; i++ {
		b.PublishMemoryEvent(StateUpdated, "alice", "p", "")
	}
	assert.Len(t, drain(ch), 64)
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe(Filter{UserID: "alice"})
	require.Equal(t, 1, b.ClientCount())

	b.Close()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "subscriber channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	assert.Equal(t, 0, b.ClientCount())

	// No-ops after close.
	b.PublishMemoryEvent(StateUpdated, "alice", "p", "")
	_, ok := <-b.Subscribe(Filter{UserID: "alice"})
	assert.False(t, ok)
	b.Close()
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	w, cancel, done := serveEvents(t, b, context.Background(), "/api/events")
	b.PublishMemoryEvent(StateUpdated, auth.DefaultUser, "p", "")
	require.Eventually(t, func() bool {
		return strings.Contains(w.body(), "event: state.updated")
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	require.Eventually(t, func() bool { return b.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSSEHandler_BindsRequestUserAndProject(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	w, cancel, done := serveEvents(t, b, auth.WithUser(context.Background(), "bob"), "/api/events?project=p")

	b.PublishMemoryEvent(EntryCreated, "alice", "p", "e_alice")
	b.PublishMemoryEvent(EntryCreated, "bob", "q", "e_other_project")
	b.PublishMemoryEvent(EntryCreated, "bob", "p", "e_bob")
	require.Eventually(t, func() bool {
		return strings.Contains(w.body(), "e_bob")
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done

	body := w.body()
	assert.NotContains(t, body, "e_alice")
	assert.NotContains(t, body, "e_other_project")
}

func TestSSEHandler_Heartbeat(t *testing.T) {
	b := NewBroker(time.Second, WithHeartbeat(20*time.Millisecond))
	defer b.Close()

	w, cancel, done := serveEvents(t, b, context.Background(), "/api/events")
	require.Eventually(t, func() bool {
		return strings.Contains(w.body(), ": ping\n\n")
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

package beaconclient

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// mockStream is one request to the mock node's events endpoint.
type mockStream struct {
	topics string
	frames chan string
	closed chan struct{}
	once   sync.Once
}

func (s *mockStream) send(event, data string) {
	s.sendRaw(fmt.Sprintf("event: %s\ndata: %s\n\n", event, data))
}

func (s *mockStream) sendRaw(raw string) {
	s.frames <- raw
}

// close ends the response, which the client sees as the node hanging up.
func (s *mockStream) close() {
	s.once.Do(func() { close(s.closed) })
}

type mockBeaconNode struct {
	server *httptest.Server
	status atomic.Int32

	mu      sync.Mutex
	streams []*mockStream
	// hold, when set, delays the response headers until it is closed.
	hold chan struct{}
}

func newMockBeaconNode(t *testing.T) *mockBeaconNode {
	t.Helper()

	m := &mockBeaconNode{}
	r := mux.NewRouter()
	r.HandleFunc("/eth/v1/events", m.handleEvents).Methods(http.MethodGet)
	m.server = httptest.NewServer(r)

	t.Cleanup(func() {
		m.mu.Lock()
		for _, s := range m.streams {
			s.close()
		}
		m.mu.Unlock()
		m.server.Close()
	})
	return m
}

func (m *mockBeaconNode) URL() string {
	return m.server.URL
}

func (m *mockBeaconNode) handleEvents(w http.ResponseWriter, req *http.Request) {
	if code := m.status.Load(); code != 0 {
		w.WriteHeader(int(code))
		return
	}

	s := &mockStream{
		topics: req.URL.Query().Get("topics"),
		frames: make(chan string, 16),
		closed: make(chan struct{}),
	}
	m.mu.Lock()
	m.streams = append(m.streams, s)
	hold := m.hold
	m.mu.Unlock()

	if hold != nil {
		select {
		case <-req.Context().Done():
			return
		case <-hold:
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-req.Context().Done():
			return
		case <-s.closed:
			return
		case f := <-s.frames:
			_, _ = fmt.Fprint(w, f)
			flusher.Flush()
		}
	}
}

// holdHeaders makes the following requests wait for the returned release func
// before answering.
func (m *mockBeaconNode) holdHeaders() (release func()) {
	hold := make(chan struct{})
	m.mu.Lock()
	m.hold = hold
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.hold = nil
			m.mu.Unlock()
			close(hold)
		})
	}
}

func (m *mockBeaconNode) streamCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// waitStream waits for the n-th request (1-based) and returns it.
func (m *mockBeaconNode) waitStream(t *testing.T, n int) *mockStream {
	t.Helper()

	require.Eventually(t, func() bool {
		return m.streamCount() >= n
	}, 5*time.Second, 10*time.Millisecond, "waiting for stream %d", n)

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[n-1]
}

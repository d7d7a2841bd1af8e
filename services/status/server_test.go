package status

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/flashbots/beacon-events/beaconclient"
)

type fakeSource struct {
	state beaconclient.State
}

func (f *fakeSource) IsConnected() bool { return f.state == beaconclient.StateConnected }
func (f *fakeSource) State() beaconclient.State { return f.state }
func (f *fakeSource) GetURI() string { return "http://localhost:5051" }
func (f *fakeSource) Stats() beaconclient.Stats { return beaconclient.Stats{Received: 3, Reconnects: 1} }
func (f *fakeSource) Topics() []beaconclient.Topic {
	return []beaconclient.Topic{beaconclient.TopicHead, beaconclient.TopicBlock}
}

func newTestServer(source Source) *Server {
	return NewServer("127.0.0.1:0", source, logrus.NewEntry(logrus.New()))
}

func TestHealth(t *testing.T) {
	source := &fakeSource{state: beaconclient.StateFailed}
	s := newTestServer(source)

	rr := httptest.NewRecorder()
	s.getRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, pathHealth, nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.False(t, resp.Connected)
	require.Equal(t, "failed", resp.State)

	source.state = beaconclient.StateConnected
	rr = httptest.NewRecorder()
	s.getRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, pathHealth, nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestSubscriptions(t *testing.T) {
	s := newTestServer(&fakeSource{state: beaconclient.StateConnected})

	rr := httptest.NewRecorder()
	s.getRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, pathSubscriptions, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp SubscriptionsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, SubscriptionsResponse{
		NodeURI: "http://localhost:5051",
		State:   "connected",
		Topics:  []string{"head", "block"},
	}, resp)
}

func TestStatsAndMetrics(t *testing.T) {
	s := newTestServer(&fakeSource{})

	rr := httptest.NewRecorder()
	s.getRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, pathStats, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var stats beaconclient.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	require.EqualValues(t, 3, stats.Received)
	require.EqualValues(t, 1, stats.Reconnects)

	rr = httptest.NewRecorder()
	s.getRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, pathMetrics, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	s.getRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, pathHealth, nil))
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestStartAndShutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	s := NewServer(addr, &fakeSource{state: beaconclient.StateConnected}, logrus.NewEntry(logrus.New()))
	ctx, cancel := context.WithCancel(context.Background())
	errC := make(chan error, 1)
	go func() { errC <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + pathHealth)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errC:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "server did not shut down")
	}
}

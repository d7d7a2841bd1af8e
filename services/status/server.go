// Package status serves health and subscription information about a running
// event client over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/flashbots/beacon-events/beaconclient"
)

const (
	pathHealth        = "/healthz"
	pathSubscriptions = "/subscriptions"
	pathStats         = "/stats"
	pathMetrics       = "/metrics"
)

// Source is the part of the event client the status server reports on.
type Source interface {
	IsConnected() bool
	State() beaconclient.State
	Topics() []beaconclient.Topic
	Stats() beaconclient.Stats
	GetURI() string
}

type SubscriptionsResponse struct {
	NodeURI string   `json:"node_uri"`
	State   string   `json:"state"`
	Topics  []string `json:"topics"`
}

type HealthResponse struct {
	Connected bool   `json:"connected"`
	State     string `json:"state"`
}

type Server struct {
	log    *logrus.Entry
	addr   string
	source Source
	srv    *http.Server
}

func NewServer(addr string, source Source, log *logrus.Entry) *Server {
	return &Server{
		log:    log.WithField("module", "services/status"),
		addr:   addr,
		source: source,
	}
}

func (s *Server) getRouter() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(pathHealth, s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc(pathSubscriptions, s.handleSubscriptions).Methods(http.MethodGet)
	r.HandleFunc(pathStats, s.handleStats).Methods(http.MethodGet)
	r.Handle(pathMetrics, promhttp.Handler()).Methods(http.MethodGet)

	return httplogger.LoggingMiddlewareLogrus(s.log, r)
}

// Start serves until ctx is done, then shuts the listener down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.getRouter(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.addr).Info("status server listening")
		errC <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, req *http.Request) {
	resp := HealthResponse{
		Connected: s.source.IsConnected(),
		State:     s.source.State().String(),
	}
	code := http.StatusOK
	if !resp.Connected {
		code = http.StatusServiceUnavailable
	}
	s.respondOK(w, code, resp)
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, req *http.Request) {
	topics := s.source.Topics()
	resp := SubscriptionsResponse{
		NodeURI: s.source.GetURI(),
		State:   s.source.State().String(),
		Topics:  make([]string, len(topics)),
	}
	for i, t := range topics {
		resp.Topics[i] = t.String()
	}
	s.respondOK(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, req *http.Request) {
	s.respondOK(w, http.StatusOK, s.source.Stats())
}

func (s *Server) respondOK(w http.ResponseWriter, code int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.log.WithError(err).Error("couldn't write response")
	}
}

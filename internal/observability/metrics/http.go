package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Server exposes a registry at /metrics for the life of a run.
type Server struct {
	server   *http.Server
	listener net.Listener

	scrapesTotal *prometheus.CounterVec
}

// NewServer binds addr immediately so that a busy port fails before labeling starts.
func NewServer(addr string, m *ClassifierMetrics) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	scrapesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "labeler",
			Subsystem: "http",
			Name:      "scrapes_total",
			Help:      "Total metrics scrapes by status.",
		},
		[]string{"status"},
	)
	m.registry.MustRegister(scrapesTotal)

	s := &Server{listener: listener, scrapesTotal: scrapesTotal}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.middleware(m.Handler()))
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics_server_failed", "error", err)
		}
	}()
	slog.Info("metrics_server_started", "addr", s.Addr())
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		next.ServeHTTP(recorder, r)
		s.scrapesTotal.WithLabelValues(strconv.Itoa(recorder.statusCode)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

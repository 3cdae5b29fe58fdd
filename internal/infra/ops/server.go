// internal/infra/ops/server.go
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"training_renewal_service/internal/domain/renewal"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// StatisticsProvider is the read-only dashboard surface.
type StatisticsProvider interface {
	GetStatistics(ctx context.Context) (*renewal.Statistics, error)
	GetTestStatistics(ctx context.Context) (*renewal.Statistics, error)
}

// TickTrigger fires one on-demand scheduler tick. The call returns
// immediately; the tick is subject to the scheduler's re-entrancy guard.
type TickTrigger interface {
	RunScheduledTasks()
}

// Pinger reports store connectivity for the health endpoint.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server is the operational HTTP surface: health, renewal statistics, the
// manual tick trigger, and Prometheus metrics.
type Server struct {
	http   *http.Server
	logger *logrus.Logger
}

func NewServer(addr string, stats StatisticsProvider, trigger TickTrigger, db Pinger, logger *logrus.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           newRouter(stats, trigger, db, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

func newRouter(stats StatisticsProvider, trigger TickTrigger, db Pinger, logger *logrus.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/renewal/statistics", func(w http.ResponseWriter, req *http.Request) {
		s, err := stats.GetStatistics(req.Context())
		if err != nil {
			logger.Errorf("Failed to read course renewal statistics: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read statistics"})
			return
		}
		writeJSON(w, http.StatusOK, s)
	})

	r.Get("/api/renewal/test-statistics", func(w http.ResponseWriter, req *http.Request) {
		s, err := stats.GetTestStatistics(req.Context())
		if err != nil {
			logger.Errorf("Failed to read test renewal statistics: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read statistics"})
			return
		}
		writeJSON(w, http.StatusOK, s)
	})

	r.Post("/api/renewal/run", func(w http.ResponseWriter, req *http.Request) {
		go trigger.RunScheduledTasks()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Infof("Ops HTTP server listening on %s.", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

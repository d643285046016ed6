// Package httpapi exposes the operational surface over HTTP: read-only
// state (metrics, alerts, recommendations, pool and breaker status) and the
// mutating operator actions (acknowledge, suppress, thresholds, toggles).
// Prometheus scrapes /metrics; /snapshot serves a plain-text state dump.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dbvigil/dbvigil/config"
	"github.com/dbvigil/dbvigil/logger"
	"github.com/dbvigil/dbvigil/pkg/alerting"
	"github.com/dbvigil/dbvigil/pkg/circuitbreaker"
	"github.com/dbvigil/dbvigil/pkg/degradation"
	"github.com/dbvigil/dbvigil/pkg/errorhandler"
	"github.com/dbvigil/dbvigil/pkg/monitor"
	"github.com/dbvigil/dbvigil/pkg/perfmon"
	"github.com/dbvigil/dbvigil/pkg/pool"
	"github.com/dbvigil/dbvigil/pkg/sqlanalyze"
	"github.com/dbvigil/dbvigil/store"
)

// Deps are the subsystems the API reads from and acts on. Archive may be
// nil when the store is disabled.
type Deps struct {
	Pools       *pool.Manager
	Monitor     *monitor.Monitor
	Alerts      *alerting.Dispatcher
	Perf        *perfmon.Monitor
	Analyzer    *sqlanalyze.Analyzer
	Errors      *errorhandler.Handler
	Breakers    *circuitbreaker.Registry
	Degradation *degradation.Manager
	Archive     *store.Store
}

// Server is the HTTP API server.
type Server struct {
	cfg    config.APIConfig
	deps   Deps
	server *http.Server
}

func New(cfg config.APIConfig, deps Deps) *Server {
	return &Server{cfg: cfg, deps: deps}
}

// Start runs the server until ctx is cancelled. Errors other than a clean
// shutdown are sent to errChan.
func (s *Server) Start(ctx context.Context, errChan chan<- error) {
	router := s.routes()
	s.server = &http.Server{
		Addr:    s.cfg.GetAddr(),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP API shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP API server starting", "addr", s.cfg.GetAddr())
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		errChan <- fmt.Errorf("HTTP API server failed: %w", err)
	}
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	// Scrape endpoints stay outside the authenticated API surface.
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/snapshot", s.handleSnapshot).Methods("GET")

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.authMiddleware)

	v1.HandleFunc("/metrics/current", s.handleCurrentMetrics).Methods("GET")
	v1.HandleFunc("/metrics/history", s.handleMetricsHistory).Methods("GET")

	v1.HandleFunc("/alerts/active", s.handleActiveAlerts).Methods("GET")
	v1.HandleFunc("/alerts/history", s.handleAlertHistory).Methods("GET")
	v1.HandleFunc("/alerts/suppressions", s.handleListSuppressions).Methods("GET")
	v1.HandleFunc("/alerts/suppress", s.handleSuppressAlert).Methods("POST")
	v1.HandleFunc("/alerts/test", s.handleTestChannels).Methods("POST")
	v1.HandleFunc("/alerts/{id}/acknowledge", s.handleAcknowledgeAlert).Methods("POST")
	v1.HandleFunc("/alerts/{id}/acknowledge", s.handleClearAcknowledgment).Methods("DELETE")

	v1.HandleFunc("/thresholds", s.handleListThresholds).Methods("GET")
	v1.HandleFunc("/thresholds", s.handleUpdateThreshold).Methods("PUT")

	v1.HandleFunc("/queries/slow", s.handleSlowQueries).Methods("GET")
	v1.HandleFunc("/recommendations/queries", s.handleQueryRecommendations).Methods("GET")
	v1.HandleFunc("/recommendations/system", s.handleSystemRecommendations).Methods("GET")
	v1.HandleFunc("/recommendations/capacity", s.handleCapacityRecommendations).Methods("GET")
	v1.HandleFunc("/regressions", s.handleRegressions).Methods("GET")
	v1.HandleFunc("/baselines", s.handleBaselines).Methods("GET")
	v1.HandleFunc("/baselines/reset", s.handleResetBaseline).Methods("POST")

	v1.HandleFunc("/pools/status", s.handlePoolStatus).Methods("GET")
	v1.HandleFunc("/pools/metrics", s.handlePoolMetrics).Methods("GET")
	v1.HandleFunc("/pools/sizing", s.handlePoolSizing).Methods("GET")

	v1.HandleFunc("/breakers", s.handleBreakers).Methods("GET")
	v1.HandleFunc("/degradation", s.handleDegradation).Methods("GET")
	v1.HandleFunc("/degradation/reset", s.handleResetDegradation).Methods("POST")

	v1.HandleFunc("/errors/history", s.handleErrorHistory).Methods("GET")
	v1.HandleFunc("/archive/alerts", s.handleArchivedAlerts).Methods("GET")
	v1.HandleFunc("/archive/errors", s.handleArchivedErrors).Methods("GET")

	v1.HandleFunc("/control", s.handleControl).Methods("POST")

	return router
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("HTTP API request",
			"method", r.Method, "path", r.URL.Path,
			"remote", r.RemoteAddr, "duration", time.Since(start))
	})
}

// authMiddleware requires the configured Bearer key. An empty key disables
// authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			s.writeError(w, http.StatusUnauthorized, "Authorization header must be 'Bearer <token>'")
			return
		}
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(s.cfg.APIKey)) != 1 {
			s.writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

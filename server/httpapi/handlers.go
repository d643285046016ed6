package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/dbvigil/dbvigil/config"
	"github.com/dbvigil/dbvigil/helpers"
	"github.com/dbvigil/dbvigil/pkg/sqlanalyze"
)

const defaultListLimit = 100

func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func (s *Server) handleCurrentMetrics(w http.ResponseWriter, r *http.Request) {
	if database := r.URL.Query().Get("database"); database != "" {
		snapshot, err := s.deps.Monitor.Current(database)
		if err != nil {
			s.writeError(w, http.StatusNotFound, "No metrics for database: "+database)
			return
		}
		s.writeJSON(w, http.StatusOK, snapshot)
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Monitor.CurrentAll())
}

func (s *Server) handleMetricsHistory(w http.ResponseWriter, r *http.Request) {
	database := r.URL.Query().Get("database")
	if database == "" {
		s.writeError(w, http.StatusBadRequest, "database query parameter required")
		return
	}
	history := s.deps.Monitor.History(database, parseLimit(r))
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"database": database,
		"count":    len(history),
		"history":  history,
	})
}

func (s *Server) handleActiveAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.deps.Monitor.ActiveAlerts()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	alerts := s.deps.Monitor.AlertHistory(parseLimit(r))
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

func (s *Server) handleListSuppressions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"suppressions":    s.deps.Alerts.Suppressions(),
		"acknowledgments": s.deps.Alerts.Acknowledgments(),
	})
}

func (s *Server) handleSuppressAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Database string `json:"database"`
		Metric   string `json:"metric"`
		Duration string `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Database == "" || req.Metric == "" {
		s.writeError(w, http.StatusBadRequest, "database and metric are required")
		return
	}
	duration := time.Hour
	if req.Duration != "" {
		parsed, err := helpers.ParseDuration(req.Duration)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid duration: "+req.Duration)
			return
		}
		duration = parsed
	}
	suppression := s.deps.Alerts.Suppress(req.Database, req.Metric, duration)
	s.writeJSON(w, http.StatusOK, suppression)
}

func (s *Server) handleTestChannels(w http.ResponseWriter, r *http.Request) {
	results := s.deps.Alerts.TestChannels(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["id"]
	var req struct {
		By string `json:"by"`
	}
	// Body is optional; a bare POST acknowledges anonymously.
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.By == "" {
		req.By = "api"
	}
	ack := s.deps.Alerts.Acknowledge(alertID, req.By)
	s.writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handleClearAcknowledgment(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["id"]
	if !s.deps.Alerts.ClearAcknowledgment(alertID) {
		s.writeError(w, http.StatusNotFound, "No acknowledgment for alert: "+alertID)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "alert_id": alertID})
}

func (s *Server) handleListThresholds(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"thresholds": s.deps.Monitor.Thresholds(),
	})
}

func (s *Server) handleUpdateThreshold(w http.ResponseWriter, r *http.Request) {
	var threshold config.ThresholdConfig
	if err := json.NewDecoder(r.Body).Decode(&threshold); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.deps.Monitor.UpdateThreshold(threshold); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "metric": threshold.Metric})
}

func (s *Server) handleSlowQueries(w http.ResponseWriter, r *http.Request) {
	database := r.URL.Query().Get("database")
	limit := parseLimit(r)
	queries := s.deps.Analyzer.Queries()
	filtered := make([]sqlanalyze.SlowQuery, 0, len(queries))
	for _, q := range queries {
		if database != "" && q.Database != database {
			continue
		}
		filtered = append(filtered, q)
		if len(filtered) >= limit {
			break
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(filtered),
		"queries": filtered,
	})
}

func (s *Server) handleQueryRecommendations(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"recommendations": s.deps.Perf.QueryRecommendations(),
	})
}

func (s *Server) handleSystemRecommendations(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"recommendations": s.deps.Perf.SystemRecommendations(),
	})
}

func (s *Server) handleCapacityRecommendations(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"recommendations": s.deps.Perf.CapacityRecommendations(),
	})
}

func (s *Server) handleRegressions(w http.ResponseWriter, r *http.Request) {
	regressions := s.deps.Perf.Regressions(parseLimit(r))
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":       len(regressions),
		"regressions": regressions,
	})
}

func (s *Server) handleBaselines(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"baselines": s.deps.Perf.Baselines(),
	})
}

func (s *Server) handleResetBaseline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Database string `json:"database"`
		Metric   string `json:"metric"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Database == "" || req.Metric == "" {
		s.writeError(w, http.StatusBadRequest, "database and metric are required")
		return
	}
	if !s.deps.Perf.ResetBaseline(req.Database, req.Metric) {
		s.writeError(w, http.StatusNotFound, "No baseline for "+req.Database+"/"+req.Metric)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":   "reset",
		"database": req.Database,
		"metric":   req.Metric,
	})
}

func (s *Server) handlePoolStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Pools.Status())
}

func (s *Server) handlePoolMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Pools.Metrics())
}

func (s *Server) handlePoolSizing(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"recommendations": s.deps.Pools.OptimizePoolSize(),
	})
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	snapshots := s.deps.Breakers.Snapshots()
	snapshots = append(snapshots, s.deps.Alerts.BreakerSnapshots()...)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"breakers": snapshots,
	})
}

func (s *Server) handleDegradation(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"level":             s.deps.Degradation.CurrentLevel().String(),
		"degraded":          s.deps.Degradation.Records(),
		"active_strategies": s.deps.Degradation.ActiveStrategies(),
	})
}

func (s *Server) handleResetDegradation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Database string `json:"database"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.Database = ""
	}
	if req.Database != "" {
		s.deps.Degradation.Reset(req.Database)
	} else {
		s.deps.Degradation.ResetAll()
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "reset",
		"level":  s.deps.Degradation.CurrentLevel().String(),
	})
}

func (s *Server) handleErrorHistory(w http.ResponseWriter, r *http.Request) {
	errors := s.deps.Errors.History(parseLimit(r))
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(errors),
		"errors": errors,
	})
}

func (s *Server) handleArchivedAlerts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Archive store is disabled")
		return
	}
	alerts, err := s.deps.Archive.Alerts(r.Context(), r.URL.Query().Get("database"), parseLimit(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to read archived alerts")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

func (s *Server) handleArchivedErrors(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Archive store is disabled")
		return
	}
	errors, err := s.deps.Archive.Errors(r.Context(), r.URL.Query().Get("database"), parseLimit(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to read archived errors")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(errors),
		"errors": errors,
	})
}

// handleControl toggles a subsystem at runtime. Components: monitoring,
// alerting, recovery, performance, dispatch.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Component string `json:"component"`
		Enabled   bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	switch req.Component {
	case "monitoring":
		s.deps.Monitor.SetMonitoringEnabled(req.Enabled)
	case "alerting":
		s.deps.Monitor.SetAlertingEnabled(req.Enabled)
	case "recovery":
		s.deps.Monitor.SetRecoveryEnabled(req.Enabled)
	case "performance":
		s.deps.Perf.SetEnabled(req.Enabled)
	case "dispatch":
		s.deps.Alerts.SetEnabled(req.Enabled)
	default:
		s.writeError(w, http.StatusBadRequest, "Unknown component: "+req.Component)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"component": req.Component,
		"enabled":   req.Enabled,
	})
}

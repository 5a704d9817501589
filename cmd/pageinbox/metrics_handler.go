package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"pageinbox/internal/metrics"
	"pageinbox/internal/tracing"
	"pageinbox/pkg/circuitbreaker"
)

const healthPingTimeout = 2 * time.Second

type healthResponse struct {
	Status  string                `json:"status"`
	Version string                `json:"version"`
	Uptime  string                `json:"uptime"`
	Store   string                `json:"store"`
	Graph   *circuitbreaker.Stats `json:"graph,omitempty"`
	Time    string                `json:"time"`
}

// handleHealth reports store reachability and the Graph circuit state.
// An unreachable store answers 503.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:  "healthy",
			Version: Version,
			Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
			Store:   "ok",
			Time:    time.Now().UTC().Format(time.RFC3339),
		}
		status := http.StatusOK

		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := s.svc.Store.Ping(ctx); err != nil {
			s.logger.WithError(err).Warn("Health check: store unreachable")
			resp.Status = "unhealthy"
			resp.Store = "unreachable"
			status = http.StatusServiceUnavailable
		}

		if s.svc.Breaker != nil {
			stats := s.svc.Breaker.Stats()
			resp.Graph = &stats
			if status == http.StatusOK && stats.State != circuitbreaker.StateClosed.String() {
				resp.Status = "degraded"
			}
		}

		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		writeJSON(w, status, resp)
	}
}

// handleMetrics returns current application metrics
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestInfo := tracing.GetRequestInfo(r.Context())

		s.logger.WithFields(logrus.Fields{
			"request_id": requestInfo.RequestID,
			"trace_id":   requestInfo.TraceID,
			"endpoint":   "/metrics",
		}).Debug("Serving metrics endpoint")

		allMetrics := metrics.GetAllMetrics()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")

		if err := encoder.Encode(allMetrics); err != nil {
			s.logger.WithFields(logrus.Fields{
				"request_id": requestInfo.RequestID,
				"trace_id":   requestInfo.TraceID,
				"error":      err,
			}).Error("Failed to encode metrics response")

			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}

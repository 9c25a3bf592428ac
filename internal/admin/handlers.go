package admin

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lunastream/realtime/internal/security"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Warnings stay 200; load balancers only need hard failures to 503.
	health := s.monitor.Health()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   health.Status,
		"warnings": health.Warnings,
		"metrics":  health.Metrics,
		"uptime":   time.Since(s.started).String(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Snapshot())
}

func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	f := security.Filter{
		EventType: r.URL.Query().Get("eventType"),
		Subject:   r.URL.Query().Get("subject"),
		Severity:  security.Severity(r.URL.Query().Get("severity")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = limit
	}
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since: want RFC3339")
			return
		}
		f.Since = since
	}

	entries := s.monitor.Audit().Query(f)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
		"total":   s.monitor.Audit().Len(),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard := map[string]any{
		"security": s.monitor.Snapshot(),
		"health":   s.monitor.Health().Status,
		"uptime":   time.Since(s.started).String(),
	}
	if s.sysmon != nil {
		dashboard["system"] = s.sysmon.Snapshot()
	}
	if s.trans != nil {
		dashboard["transport"] = map[string]any{
			"connections":    s.trans.ConnectionCount(),
			"droppedFanouts": s.trans.DroppedFanouts(),
		}
	}
	if s.rooms != nil {
		dashboard["rooms"] = s.rooms.RoomCount()
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Config())
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg security.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "malformed config: "+err.Error())
		return
	}
	if cfg.BlockAfterViolations < 0 || cfg.SuspiciousActivityThreshold < 0 {
		writeError(w, http.StatusBadRequest, "thresholds must be non-negative")
		return
	}
	s.monitor.UpdateConfig(cfg)
	s.logger.Info().Str("remote", r.RemoteAddr).Msg("Security config updated via admin API")
	writeJSON(w, http.StatusOK, s.monitor.Config())
}

type ipRequest struct {
	IP     string `json:"ip"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleBlockIP(w http.ResponseWriter, r *http.Request) {
	var req ipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		writeError(w, http.StatusBadRequest, "ip is required")
		return
	}
	if req.Reason == "" {
		req.Reason = "administrative block"
	}
	s.monitor.BlockIP(req.IP, req.Reason)
	writeJSON(w, http.StatusOK, map[string]any{"blocked": req.IP})
}

func (s *Server) handleUnblockIP(w http.ResponseWriter, r *http.Request) {
	var req ipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		writeError(w, http.StatusBadRequest, "ip is required")
		return
	}
	if !s.monitor.UnblockIP(req.IP) {
		writeError(w, http.StatusNotFound, "address not blocked")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unblocked": req.IP})
}

func (s *Server) handleStreamLive(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")
	if s.trans == nil {
		writeError(w, http.StatusServiceUnavailable, "transport unavailable")
		return
	}
	s.trans.NotifyWentLive(streamID)
	writeJSON(w, http.StatusAccepted, map[string]string{"streamId": streamID, "event": "stream:went-live"})
}

func (s *Server) handleStreamEnd(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "streamID")
	if s.trans == nil {
		writeError(w, http.StatusServiceUnavailable, "transport unavailable")
		return
	}
	s.trans.NotifyEnded(streamID)
	writeJSON(w, http.StatusAccepted, map[string]string{"streamId": streamID, "event": "stream:ended"})
}

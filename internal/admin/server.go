// Package admin exposes the administrative REST surface: security metrics,
// audit queries, block-list management, runtime configuration and report
// export. Everything except liveness requires the admin bearer token.
package admin

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/lunastream/realtime/internal/monitoring"
	"github.com/lunastream/realtime/internal/security"
)

// Transport is the slice of the WebSocket server the admin surface reads
// and drives.
type Transport interface {
	ConnectionCount() int64
	DroppedFanouts() int64
	NotifyWentLive(streamID string)
	NotifyEnded(streamID string)
}

// Rooms is the registry view used by the dashboard.
type Rooms interface {
	RoomCount() int
}

type Server struct {
	token   string
	monitor *security.Monitor
	sysmon  *monitoring.SystemMonitor
	trans   Transport
	rooms   Rooms
	logger  zerolog.Logger
	started time.Time
}

func NewServer(token string, monitor *security.Monitor, sysmon *monitoring.SystemMonitor, trans Transport, rooms Rooms, logger zerolog.Logger) *Server {
	return &Server{
		token:   token,
		monitor: monitor,
		sysmon:  sysmon,
		trans:   trans,
		rooms:   rooms,
		logger:  logger.With().Str("component", "admin").Logger(),
		started: time.Now(),
	}
}

// Router builds the admin surface. Prometheus scrape output lives under
// /metrics/prometheus; /metrics itself is the JSON security snapshot.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Liveness stays open; orchestrator probes carry no credentials.
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/metrics", s.handleMetrics)
		r.Handle("/metrics/prometheus", monitoring.Handler())
		r.Get("/audit-logs", s.handleAuditLogs)
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
		r.Post("/block-ip", s.handleBlockIP)
		r.Post("/unblock-ip", s.handleUnblockIP)
		r.Get("/report", s.handleReport)
		r.Post("/streams/{streamID}/live", s.handleStreamLive)
		r.Post("/streams/{streamID}/end", s.handleStreamEnd)
	})

	return r
}

// authenticate gates the admin routes behind the bearer token. An unset
// token disables the surface rather than leaving it open.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			writeError(w, http.StatusServiceUnavailable, "admin surface disabled: no token configured")
			return
		}
		header := r.Header.Get("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") ||
			subtle.ConstantTimeCompare([]byte(parts[1]), []byte(s.token)) != 1 {
			s.logger.Warn().Str("remote", r.RemoteAddr).Str("path", r.URL.Path).Msg("Admin auth failed")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

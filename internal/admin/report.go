package admin

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lunastream/realtime/internal/security"
)

// handleReport exports a security report as JSON (default) or CSV via
// ?format=csv. The report covers the audit window plus the live metric
// snapshot.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	entries := s.monitor.Audit().Query(security.Filter{})
	metrics := s.monitor.Snapshot()
	generatedAt := time.Now().UTC()

	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, http.StatusOK, map[string]any{
			"generatedAt": generatedAt,
			"metrics":     metrics,
			"auditLog":    entries,
		})
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="security-report-%s.csv"`, generatedAt.Format("2006-01-02")))
		cw := csv.NewWriter(w)
		cw.Write([]string{"timestamp", "eventType", "severity", "subject", "userId", "message", "metadata"})
		for _, e := range entries {
			metadata := ""
			if len(e.Metadata) > 0 {
				if raw, err := json.Marshal(e.Metadata); err == nil {
					metadata = string(raw)
				}
			}
			cw.Write([]string{
				e.Timestamp.UTC().Format(time.RFC3339),
				e.EventType,
				string(e.Severity),
				e.Subject,
				e.UserID,
				e.Message,
				metadata,
			})
		}
		cw.Flush()
	default:
		writeError(w, http.StatusBadRequest, "format must be json or csv")
	}
}

package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Alerter receives notifications for high-severity audit events.
// Implementations: webhook (Slack-compatible), console, fan-out.
type Alerter interface {
	Alert(severity string, message string, metadata map[string]any)
}

// MultiAlerter sends alerts to multiple alerters.
type MultiAlerter struct {
	alerters []Alerter
}

func NewMultiAlerter(alerters ...Alerter) *MultiAlerter {
	return &MultiAlerter{alerters: alerters}
}

func (m *MultiAlerter) Alert(severity, message string, metadata map[string]any) {
	for _, alerter := range m.alerters {
		// Run in goroutine to avoid blocking the audit path
		go alerter.Alert(severity, message, metadata)
	}
}

// ConsoleAlerter prints alerts to stderr. Default in development.
type ConsoleAlerter struct{}

func NewConsoleAlerter() *ConsoleAlerter {
	return &ConsoleAlerter{}
}

func (c *ConsoleAlerter) Alert(severity, message string, metadata map[string]any) {
	fmt.Fprintf(os.Stderr, "[ALERT:%s] %s %v\n", severity, message, metadata)
}

// WebhookAlerter posts alerts to a Slack-compatible incoming webhook.
type WebhookAlerter struct {
	webhookURL string
	channel    string
	username   string
}

func NewWebhookAlerter(webhookURL, channel, username string) *WebhookAlerter {
	return &WebhookAlerter{
		webhookURL: webhookURL,
		channel:    channel,
		username:   username,
	}
}

func (w *WebhookAlerter) Alert(severity, message string, metadata map[string]any) {
	if w.webhookURL == "" {
		return // Not configured
	}

	fields := []map[string]any{}
	for k, v := range metadata {
		fields = append(fields, map[string]any{
			"title": k,
			"value": fmt.Sprintf("%v", v),
			"short": true,
		})
	}

	payload := map[string]any{
		"username": w.username,
		"channel":  w.channel,
		"text":     fmt.Sprintf("*%s Alert*", severity),
		"attachments": []map[string]any{
			{
				"color":     w.color(severity),
				"title":     message,
				"fields":    fields,
				"timestamp": time.Now().Unix(),
				"footer":    "Realtime Server",
			},
		},
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return
	}

	client := &http.Client{Timeout: 5 * time.Second}
	_, _ = client.Post(w.webhookURL, "application/json", bytes.NewBuffer(jsonPayload))
	// Alerting failures never break the server.
}

func (w *WebhookAlerter) color(severity string) string {
	switch severity {
	case "critical", "high":
		return "danger"
	case "medium":
		return "warning"
	default:
		return "good"
	}
}

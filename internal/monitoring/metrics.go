package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics for the realtime session layer.
// Scraped via the admin server's /metrics endpoint.
var (
	// Connection metrics
	connectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rt_connections_total",
		Help: "Total number of WebSocket connections established",
	})

	connectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rt_connections_active",
		Help: "Current number of active WebSocket connections",
	})

	connectionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rt_connections_rejected_total",
		Help: "Connection attempts rejected before upgrade, by reason",
	}, []string{"reason"})

	// Room metrics
	roomsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rt_rooms_active",
		Help: "Current number of live stream rooms with at least one member",
	})

	broadcastsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rt_broadcasts_total",
		Help: "Total room broadcast operations",
	})

	broadcastFanout = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rt_broadcast_fanout",
		Help:    "Number of connections reached per broadcast",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
	})

	// Chat metrics
	messagesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rt_chat_messages_created_total",
		Help: "Chat messages accepted by the pipeline",
	})

	messagesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rt_chat_messages_rejected_total",
		Help: "Chat messages rejected by the pipeline, by reason",
	}, []string{"reason"})

	// Security metrics
	rateLimitViolations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rt_rate_limit_violations_total",
		Help: "Rate limit rejections by bucket class",
	}, []string{"bucket"})

	blockedAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rt_blocked_attempts_total",
		Help: "Connection or event attempts from block-listed addresses",
	})

	blockedIPs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rt_blocked_ips",
		Help: "Current size of the IP block-list",
	})

	// Slow client handling
	slowClientsDisconnected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rt_slow_clients_disconnected_total",
		Help: "Clients disconnected for repeatedly failing to drain their send buffer",
	})
)

func init() {
	prometheus.MustRegister(
		connectionsTotal,
		connectionsActive,
		connectionsRejected,
		roomsActive,
		broadcastsTotal,
		broadcastFanout,
		messagesCreated,
		messagesRejected,
		rateLimitViolations,
		blockedAttempts,
		blockedIPs,
		slowClientsDisconnected,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncrementConnections()       { connectionsTotal.Inc(); connectionsActive.Inc() }
func DecrementConnections()       { connectionsActive.Dec() }
func IncrementConnectionRejected(reason string) {
	connectionsRejected.WithLabelValues(reason).Inc()
}

func SetActiveRooms(n int)   { roomsActive.Set(float64(n)) }
func ObserveBroadcast(n int) { broadcastsTotal.Inc(); broadcastFanout.Observe(float64(n)) }

func IncrementMessageCreated()              { messagesCreated.Inc() }
func IncrementMessageRejected(reason string) { messagesRejected.WithLabelValues(reason).Inc() }

func IncrementRateLimitViolation(bucket string) {
	rateLimitViolations.WithLabelValues(bucket).Inc()
}
func IncrementBlockedAttempt()     { blockedAttempts.Inc() }
func SetBlockedIPs(n int)          { blockedIPs.Set(float64(n)) }
func IncrementSlowClientDisconnect() { slowClientsDisconnected.Inc() }

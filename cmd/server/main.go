// Command server runs the realtime session and chat coordination service:
// the WebSocket edge on one port and the administrative REST surface on
// another.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "go.uber.org/automaxprocs"

	"github.com/lunastream/realtime/internal/admin"
	"github.com/lunastream/realtime/internal/analytics"
	"github.com/lunastream/realtime/internal/chat"
	"github.com/lunastream/realtime/internal/chat/postgres"
	"github.com/lunastream/realtime/internal/command"
	"github.com/lunastream/realtime/internal/config"
	"github.com/lunastream/realtime/internal/identity"
	"github.com/lunastream/realtime/internal/lifecycle"
	"github.com/lunastream/realtime/internal/monitoring"
	"github.com/lunastream/realtime/internal/room"
	"github.com/lunastream/realtime/internal/schema"
	"github.com/lunastream/realtime/internal/security"
	"github.com/lunastream/realtime/internal/transport"
)

func main() {
	bootstrapLogger := monitoring.NewLogger(monitoring.LoggerConfig{Level: "info", Format: "json"})

	cfg, err := config.Load(&bootstrapLogger)
	if err != nil {
		bootstrapLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := monitoring.NewLogger(monitoring.LoggerConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	cfg.Print(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Security monitor: fixed-window buckets, audit log, block-list.
	audit := security.NewAuditLog(logger, cfg.AuditMaxEntries, cfg.AuditRetention)
	audit.SetAlerter(monitoring.NewConsoleAlerter())
	monitor := security.NewMonitor(security.Config{
		Buckets: map[security.BucketClass]security.Policy{
			security.BucketAuth:   {Max: cfg.MaxAuthAttempts, Window: cfg.AuthWindow},
			security.BucketChat:   {Max: cfg.MaxChatEventsPerMinute, Window: time.Minute},
			security.BucketAPI:    {Max: cfg.MaxAPIRequestsPerMinute, Window: time.Minute},
			security.BucketSearch: {Max: cfg.MaxSearchRequestsPerMinute, Window: time.Minute},
			security.BucketUpload: {Max: cfg.MaxUploadRequestsPerMinute, Window: time.Minute},
		},
		BlockAfterViolations:        cfg.BlockAfterViolations,
		ViolationBlockTTL:           cfg.ViolationBlockTTL,
		BlockSuspiciousIPs:          cfg.BlockSuspiciousIPs,
		SuspiciousActivityThreshold: cfg.SuspiciousActivityThreshold,
		AlertConnectionThreshold:    cfg.AlertConnectionThreshold,
		AlertViolationRateThreshold: cfg.AlertViolationRateThreshold,
		AlertErrorRateThreshold:     cfg.AlertErrorRateThreshold,
	}, audit, logger)
	defer monitor.Stop()

	var connGate *security.ConnLimiter
	if cfg.ConnRateLimitEnabled {
		connGate = security.NewConnLimiter(security.ConnLimiterConfig{
			IPBurst:     cfg.ConnRateLimitIPBurst,
			IPRate:      cfg.ConnRateLimitIPRate,
			GlobalBurst: cfg.ConnRateLimitGlobalBurst,
			GlobalRate:  cfg.ConnRateLimitGlobalRate,
			Logger:      logger,
		})
		defer connGate.Stop()
	}

	// Analytics over NATS; a nil publisher degrades to no-op events.
	var events chat.Events = chat.NopEvents{}
	var signals room.Signals
	var telemetry transport.Telemetry
	if cfg.NATSUrl != "" {
		publisher, err := analytics.Connect(cfg.NATSUrl, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer publisher.Close()
		events = publisher
		signals = publisher
		telemetry = publisher
	} else {
		logger.Warn().Msg("NATS_URL not set; analytics events disabled")
	}

	// History store: Postgres when configured, in-memory otherwise.
	var store chat.Store
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Postgres")
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Postgres ping failed")
		}
		store = postgres.NewStore(pool)
		logger.Info().Msg("Using Postgres-backed history store")
	} else {
		store = chat.NewMemoryStore()
		logger.Warn().Msg("POSTGRES_URL not set; history is in-memory and lost on restart")
	}

	var resolver identity.Resolver
	if cfg.JWTSecret != "" {
		resolver = identity.NewJWTResolver(cfg.JWTSecret)
	} else {
		logger.Warn().Msg("RT_JWT_SECRET not set; all connections are anonymous")
	}

	validator := schema.NewValidator(cfg.MaxMessageLength, cfg.HistoryPageLimit)
	rooms := room.NewRegistry(signals, logger)
	chatSvc := chat.NewService(store, monitor, events, cfg.HistoryPageLimit, logger)
	commands := command.NewParser(command.DefaultCatalog())

	sysmon := monitoring.NewSystemMonitor(logger, 15*time.Second)
	sysmon.Start()
	defer sysmon.Stop()

	ws := transport.NewServer(transport.Deps{
		Config:    cfg,
		Logger:    logger,
		Validator: validator,
		Monitor:   monitor,
		ConnGate:  connGate,
		Resolver:  resolver,
		Rooms:     rooms,
		Chat:      chatSvc,
		Commands:  commands,
		Telemetry: telemetry,
	})
	ws.Start(ctx)

	// Stream lifecycle transitions from the platform bus, when configured.
	if cfg.KafkaBrokers != "" {
		consumer, err := lifecycle.NewConsumer(lifecycle.Config{
			Brokers: strings.Split(cfg.KafkaBrokers, ","),
			Topic:   cfg.KafkaLifecycleTopic,
			Group:   cfg.KafkaConsumerGroup,
		}, ws, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create lifecycle consumer")
		}
		consumer.Start()
		defer consumer.Stop()
	} else {
		logger.Warn().Msg("RT_KAFKA_BROKERS not set; lifecycle transitions arrive via admin API only")
	}

	adminSrv := admin.NewServer(cfg.AdminToken, monitor, sysmon, ws, rooms, logger)

	wsServer := &http.Server{Addr: cfg.Addr, Handler: ws.Handler()}
	adminServer := &http.Server{Addr: cfg.AdminAddr, Handler: adminSrv.Router()}

	errc := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("WebSocket server listening")
		errc <- wsServer.ListenAndServe()
	}()
	go func() {
		logger.Info().Str("addr", cfg.AdminAddr).Msg("Admin server listening")
		errc <- adminServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errc:
		logger.Error().Err(err).Msg("HTTP server failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	wsServer.Shutdown(shutdownCtx)
	adminServer.Shutdown(shutdownCtx)
	ws.Shutdown(cancel)

	logger.Info().Msg("Shutdown complete")
}

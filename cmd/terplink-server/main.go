package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"terplink/backend/internal/config"
	"terplink/backend/internal/detach"
	"terplink/backend/internal/matching"
	"terplink/backend/internal/meetings"
	"terplink/backend/internal/metrics"
	"terplink/backend/internal/notify"
	"terplink/backend/internal/payments"
	"terplink/backend/internal/presence"
	"terplink/backend/internal/service/appointments"
	"terplink/backend/internal/service/cancellation"
	"terplink/backend/internal/service/orders"
	"terplink/backend/internal/service/recreation"
	"terplink/backend/internal/store/postgres"
	transport "terplink/backend/internal/transport/http"
)

const collaboratorTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	addr := net.JoinHostPort(cfg.HTTPHost, strconv.Itoa(cfg.HTTPPort))
	log.Info("starting", zap.String("http_addr", addr), zap.String("log_level", cfg.LogLevel))

	log.Info("connecting to database", databaseLogFields(cfg.DatabaseURL)...)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		log.Error("database connection failed", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", zap.Error(err))
		}
	}()

	m := metrics.New()
	tasks := detach.NewRunner(log, cfg.DetachedTaskTimeout, m.DetachedTaskFailures)

	appointmentRepo := postgres.NewAppointmentRepo(db)
	orderRepo := postgres.NewOrderRepo(db)
	channelRepo := postgres.NewChannelRepo(db)

	gate := payments.NewGate(newPaymentCollaborator(cfg), tasks, log)
	notifier := newNotifier(cfg)
	matcher := newMatcher(cfg)

	engine, err := recreation.NewEngine(recreation.Deps{
		Orders:       orderRepo,
		Appointments: appointmentRepo,
		Channels:     channelRepo,
		Gate:         gate,
		Matcher:      matcher,
		Tasks:        tasks,
		Metrics:      m,
		Log:          log,
	})
	if err != nil {
		log.Error("recreation engine init failed", zap.Error(err))
		os.Exit(1)
	}

	cancelSvc, err := cancellation.NewService(cancellation.Deps{
		Appointments: appointmentRepo,
		Orders:       orderRepo,
		Recreator:    engine,
		Gate:         gate,
		Notifier:     notifier,
		Rooms:        newRooms(cfg),
		Tasks:        tasks,
		Metrics:      m,
		Log:          log,
	})
	if err != nil {
		log.Error("cancellation service init failed", zap.Error(err))
		os.Exit(1)
	}

	orderSvc, err := orders.NewService(orders.Deps{
		Orders:       orderRepo,
		Appointments: appointmentRepo,
		Resolver:     orders.NewResolver(appointmentRepo),
		Canceller:    cancelSvc,
		Gate:         gate,
		Notifier:     notifier,
		Presence:     newPresence(cfg),
		Tasks:        tasks,
		Metrics:      m,
		Log:          log,
	})
	if err != nil {
		log.Error("order service init failed", zap.Error(err))
		os.Exit(1)
	}

	apptSvc := appointments.NewService(appointmentRepo, engine, log)

	router := transport.NewRouter(transport.RouterDeps{
		Orders:       transport.NewOrderHandlers(orderSvc),
		Appointments: transport.NewAppointmentHandlers(apptSvc, cancelSvc),
		Metrics:      m.Handler(),
		Log:          log,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	log.Info("http server started", zap.String("http_addr", addr))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdown(log, server, tasks, cfg.ShutdownTimeout)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped with error", zap.Error(err))
			os.Exit(1)
		}
	}
}

func shutdown(log *zap.Logger, server *http.Server, tasks *detach.Runner, timeout time.Duration) {
	log.Info("shutting down http server", zap.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn("http graceful shutdown failed; forcing close", zap.Error(err))
		_ = server.Close()
	}
	if err := tasks.Drain(ctx); err != nil {
		log.Warn("detached tasks still in flight at shutdown", zap.Error(err))
	}
	log.Info("http server stopped")
}

func newPaymentCollaborator(cfg config.Config) payments.Collaborator {
	if cfg.PaymentsBaseURL == "" {
		return payments.NoopCollaborator{}
	}
	return payments.NewHTTPCollaborator(cfg.PaymentsBaseURL, collaboratorTimeout)
}

func newNotifier(cfg config.Config) notify.Notifier {
	if cfg.NotificationsBaseURL == "" {
		return notify.Noop{}
	}
	return notify.NewHTTPNotifier(cfg.NotificationsBaseURL, collaboratorTimeout)
}

func newMatcher(cfg config.Config) matching.Matcher {
	if cfg.MatchingBaseURL == "" {
		return matching.Noop{}
	}
	return matching.NewHTTPMatcher(cfg.MatchingBaseURL, collaboratorTimeout)
}

func newPresence(cfg config.Config) presence.Directory {
	if cfg.PresenceBaseURL == "" {
		return presence.Noop{}
	}
	return presence.NewHTTPDirectory(cfg.PresenceBaseURL, collaboratorTimeout)
}

func newRooms(cfg config.Config) meetings.Rooms {
	if cfg.MeetingsBaseURL == "" {
		return meetings.Noop{}
	}
	return meetings.NewHTTPRooms(cfg.MeetingsBaseURL, collaboratorTimeout)
}

func newLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return log.With(zap.String("service", "terplink-server")), nil
}

func databaseLogFields(databaseURL string) []zap.Field {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []zap.Field{zap.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []zap.Field{
		zap.String("db_host", host),
		zap.String("db_port", port),
		zap.String("db_name", name),
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/bridge"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/dispatch"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/domain"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/heartbeat"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/httpserver"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/platform/config"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/platform/logging"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/presence"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/redisx"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/registry"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupRedis connects to the shared broker. A missing or unreachable broker
// is not fatal: the service runs in single-instance, local-only mode.
func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL not set, running in local-only mode")
		return nil
	}
	client, err := redisx.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis, running in local-only mode", "error", err)
		return nil
	}
	return client
}

func runGracefulShutdown(srv *httpserver.Server, reg *registry.Registry, cancelWorkers context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		cancelWorkers()
		reg.CloseAll("server shutting down")

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	redisClient := setupRedis(context.Background(), cfg)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	reg := registry.New(clock, cfg.MaxConnections)
	tracker := presence.New(redisClient, reg, clock, presence.DefaultTTL)

	var broker bridge.Broker
	if redisClient != nil {
		broker = bridge.NewRedisBroker(redisClient)
	}
	br := bridge.New(broker, reg)

	// Presence transitions ride the tenant channel so every instance's
	// subscribers see them.
	reg.SetLifecycleHooks(
		func(tenantID, userID string) {
			ctx := context.Background()
			tracker.MarkOnline(ctx, tenantID, userID)
			notifyPresence(ctx, br, domain.TypeUserOnline, tenantID, userID, clock)
		},
		func(tenantID, userID string) {
			ctx := context.Background()
			tracker.MarkOffline(ctx, tenantID, userID)
			notifyPresence(ctx, br, domain.TypeUserOffline, tenantID, userID, clock)
		},
	)

	monitor := heartbeat.NewMonitor(reg, tracker, clock, cfg.HeartbeatInterval)
	dispatcher := dispatch.New(reg, clock)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	go br.Run(workerCtx)
	go monitor.Run(workerCtx)

	srv := httpserver.NewServer(cfg, reg, br, tracker, dispatcher, httpserver.HeaderAuthenticator{}, redisClient, clock)

	done := runGracefulShutdown(srv, reg, cancelWorkers)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}

func notifyPresence(ctx context.Context, br *bridge.Bridge, typ, tenantID, userID string, clock clockwork.Clock) {
	if tenantID == "" {
		return
	}
	env, err := domain.NewEnvelope(typ, map[string]string{"user_id": userID}, clock.Now())
	if err != nil {
		slog.Error("Failed to build presence envelope", "error", err)
		return
	}
	br.Publish(ctx, domain.TargetTenant(tenantID), env)
}

// Package httpserver exposes the WebSocket entry points and the small admin
// surface over echo. It owns no subscription state: every inbound frame is
// handed to the dispatcher and every delivery goes through the bridge.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/bridge"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/dispatch"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/platform/config"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/platform/correlation"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/presence"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/registry"
)

type Server struct {
	echo       *echo.Echo
	config     *config.Config
	registry   *registry.Registry
	bridge     *bridge.Bridge
	presence   *presence.Tracker
	dispatcher *dispatch.Dispatcher
	authn      Authenticator
	limiter    *upgradeRateLimiter
	clock      clockwork.Clock
	redis      *goredis.Client
	startTime  time.Time
}

// NewServer assembles the echo instance and its routes. redisClient may be
// nil in local-only deployments; the readiness probe reports the mode.
func NewServer(
	cfg *config.Config,
	reg *registry.Registry,
	br *bridge.Bridge,
	tracker *presence.Tracker,
	dispatcher *dispatch.Dispatcher,
	authn Authenticator,
	redisClient *goredis.Client,
	clock clockwork.Clock,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Every request carries a request ID; the logging handler picks it up
	// from the context.
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := correlation.WithRequest(c.Request().Context(), correlation.NewID())
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
				slog.Error("Request failed", attrs...)
				return nil
			}
			slog.Info("Request", attrs...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())

	srv := &Server{
		echo:       e,
		config:     cfg,
		registry:   reg,
		bridge:     br,
		presence:   tracker,
		dispatcher: dispatcher,
		authn:      authn,
		limiter:    newUpgradeRateLimiter(cfg.WSRatePerSecond, cfg.WSBurst),
		clock:      clock,
		redis:      redisClient,
		startTime:  clock.Now(),
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

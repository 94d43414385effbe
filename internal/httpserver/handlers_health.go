package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": s.clock.Since(s.startTime).Seconds(),
	})
}

// handleReadiness reports the delivery mode. A missing or unreachable broker
// is not a failure: the instance keeps serving local-only traffic, so it
// stays in rotation and the degraded state is surfaced in the body.
func (s *Server) handleReadiness(c echo.Context) error {
	resp := map[string]any{
		"status":      "ready",
		"mode":        "distributed",
		"connections": s.registry.ConnectionCount(""),
	}

	if s.redis == nil {
		resp["mode"] = "local-only"
		return c.JSON(http.StatusOK, resp)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := s.redis.Ping(ctx).Err(); err != nil {
		resp["mode"] = "degraded"
		resp["redis_error"] = err.Error()
	}
	if s.bridge.Degraded() {
		resp["mode"] = "degraded"
	}
	return c.JSON(http.StatusOK, resp)
}

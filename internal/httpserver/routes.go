package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/healthz", s.handleLiveness)
	s.echo.GET("/readyz", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// WebSocket entry points
	s.echo.GET("/ws", s.handleWebSocket)
	s.echo.GET("/ws/public", s.handleWebSocketPublic)

	// Admin surface; the gateway keeps these off the public network.
	s.echo.GET("/api/presence", s.handlePresence)
	s.echo.GET("/api/connections", s.handleConnections)
	s.echo.POST("/api/broadcast", s.handleBroadcast)
}

package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/domain"
)

func (s *Server) handlePresence(c echo.Context) error {
	tenantID := c.QueryParam("tenant")
	users := s.presence.OnlineUsers(c.Request().Context(), tenantID)

	return c.JSON(http.StatusOK, map[string]any{
		"tenant": tenantID,
		"online": users,
		"count":  len(users),
	})
}

func (s *Server) handleConnections(c echo.Context) error {
	tenantID := c.QueryParam("tenant")

	infos := s.registry.Snapshot()
	if tenantID != "" {
		filtered := infos[:0]
		for _, info := range infos {
			if info.TenantID == tenantID {
				filtered = append(filtered, info)
			}
		}
		infos = filtered
	}

	return c.JSON(http.StatusOK, map[string]any{
		"tenant":      tenantID,
		"count":       len(infos),
		"connections": infos,
	})
}

type broadcastRequest struct {
	Target  string `json:"target"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Message string `json:"message,omitempty"`
}

// handleBroadcast is the server-side publish entry point: backend services
// post a target and a message, delivery fans out across all instances.
func (s *Server) handleBroadcast(c echo.Context) error {
	var req broadcastRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Type == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "type is required"})
	}

	target, err := domain.ParseTarget(req.Target)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid target"})
	}

	env, err := domain.NewEnvelope(req.Type, req.Payload, s.clock.Now())
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	env.Message = req.Message

	delivered := s.bridge.Publish(c.Request().Context(), target, env)

	return c.JSON(http.StatusAccepted, map[string]any{
		"target":          target.String(),
		"delivered_local": delivered,
	})
}

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/domain"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/fingerprint"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/platform/correlation"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/registry"
)

// maxFrameSize bounds inbound frames. Clients only send small control frames
// (subscribe, unsubscribe, pong), so anything larger is abuse.
const maxFrameSize = 4 * 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin policy is enforced at the gateway
	},
}

func (s *Server) handleWebSocket(c echo.Context) error {
	if !s.limiter.allow(c.RealIP()) {
		return c.String(http.StatusTooManyRequests, "Too many connection attempts")
	}

	principal, err := s.authn.Authenticate(c.Request())
	if err != nil {
		return c.String(http.StatusUnauthorized, "Unauthorized")
	}

	device := fingerprint.Parse(c.Request().UserAgent())

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	handle, err := s.registry.Register(conn, registry.Identity{
		UserID:   principal.UserID,
		TenantID: principal.TenantID,
		Role:     principal.Role,
		Device:   device,
	})
	if err != nil {
		s.refuseUpgraded(conn, err)
		return nil
	}

	s.runSession(conn, handle)
	return nil
}

func (s *Server) handleWebSocketPublic(c echo.Context) error {
	if !s.limiter.allow(c.RealIP()) {
		return c.String(http.StatusTooManyRequests, "Too many connection attempts")
	}

	channel, err := s.resolvePublicChannel(c.QueryParam("channel"))
	if err != nil {
		return c.String(http.StatusBadRequest, "Invalid channel")
	}

	device := fingerprint.Parse(c.Request().UserAgent())

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	handle, err := s.registry.RegisterAnonymous(conn, channel, device)
	if err != nil {
		s.refuseUpgraded(conn, err)
		return nil
	}

	s.runSession(conn, handle)
	return nil
}

// resolvePublicChannel maps the negotiated channel name onto the public
// tenant's namespace. An empty name means the tenant-wide channel; anything
// else must already live under it.
func (s *Server) resolvePublicChannel(name string) (string, error) {
	tenantChannel := domain.TenantChannel(s.config.PublicTenantID)
	if name == "" || name == tenantChannel {
		return tenantChannel, nil
	}
	if strings.HasPrefix(name, tenantChannel+":") {
		return name, nil
	}
	return "", domain.ErrSubscriptionDenied
}

// runSession sends the single connected envelope, then pumps inbound frames
// into the dispatcher until the transport closes. Deregistration always runs
// on exit, whatever ended the loop.
func (s *Server) runSession(conn *websocket.Conn, handle uuid.UUID) {
	ctx := correlation.WithConnection(context.Background(), handle.String())
	conn.SetReadLimit(maxFrameSize)

	env, err := domain.NewEnvelope(domain.TypeConnected, map[string]string{"connection_id": handle.String()}, s.clock.Now())
	if err == nil {
		err = s.registry.Send(handle, env)
	}
	if err != nil {
		slog.WarnContext(ctx, "Failed to send connected envelope", "error", err)
		s.registry.Deregister(handle)
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.registry.Touch(handle)
		s.dispatcher.Handle(handle, raw)
	}

	s.registry.Deregister(handle)
}

// refuseUpgraded closes a socket that passed the HTTP phase but was refused
// by the registry, sending a close frame with the reason first.
func (s *Server) refuseUpgraded(conn *websocket.Conn, err error) {
	reason := "registration failed"
	if errors.Is(err, domain.ErrCapacityExceeded) {
		reason = "server at capacity"
	}
	slog.Warn("Refusing connection", "reason", reason, "error", err)

	msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, reason)
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	_ = conn.Close()
}

// Package dispatch translates inbound client frames into registry mutations.
// It is the only mutation entry point for subscription state; the transport
// layer feeds it raw frames and never touches the registry directly.
package dispatch

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/domain"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/metrics"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/registry"
)

const invalidFormatMessage = "Invalid message format"

type Dispatcher struct {
	reg   *registry.Registry
	clock clockwork.Clock
}

func New(reg *registry.Registry, clock clockwork.Clock) *Dispatcher {
	return &Dispatcher{reg: reg, clock: clock}
}

// Handle processes one raw inbound frame. Protocol errors are answered with
// an error envelope on the same connection; the connection stays open in
// every case, a bad frame never costs the client its session.
func (d *Dispatcher) Handle(handle uuid.UUID, raw []byte) {
	var frame domain.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		metrics.FramesTotal.WithLabelValues("invalid", "rejected").Inc()
		d.sendError(handle, invalidFormatMessage)
		return
	}

	switch frame.Type {
	case domain.FramePong:
		d.reg.Touch(handle)
		metrics.FramesTotal.WithLabelValues(domain.FramePong, "ok").Inc()

	case domain.FrameSubscribe:
		d.handleSubscribe(handle, frame.Channel)

	case domain.FrameUnsubscribe:
		d.handleUnsubscribe(handle, frame.Channel)

	default:
		metrics.FramesTotal.WithLabelValues("unknown", "rejected").Inc()
		d.sendError(handle, invalidFormatMessage)
	}
}

func (d *Dispatcher) handleSubscribe(handle uuid.UUID, channel string) {
	if channel == "" {
		metrics.FramesTotal.WithLabelValues(domain.FrameSubscribe, "rejected").Inc()
		d.sendError(handle, invalidFormatMessage)
		return
	}

	if err := d.authorize(handle, channel); err != nil {
		metrics.FramesTotal.WithLabelValues(domain.FrameSubscribe, "denied").Inc()
		slog.Debug("Subscribe denied", "handle", handle.String(), "channel", channel, "error", err)
		d.sendError(handle, "Subscription denied")
		return
	}

	if err := d.reg.Subscribe(handle, channel); err != nil {
		metrics.FramesTotal.WithLabelValues(domain.FrameSubscribe, "error").Inc()
		return
	}
	metrics.FramesTotal.WithLabelValues(domain.FrameSubscribe, "ok").Inc()
}

func (d *Dispatcher) handleUnsubscribe(handle uuid.UUID, channel string) {
	if channel == "" {
		metrics.FramesTotal.WithLabelValues(domain.FrameUnsubscribe, "rejected").Inc()
		d.sendError(handle, invalidFormatMessage)
		return
	}

	info, ok := d.reg.Info(handle)
	if !ok {
		return
	}
	if info.Anonymous {
		metrics.FramesTotal.WithLabelValues(domain.FrameUnsubscribe, "denied").Inc()
		d.sendError(handle, "Subscription denied")
		return
	}

	if err := d.reg.Unsubscribe(handle, channel); err != nil {
		metrics.FramesTotal.WithLabelValues(domain.FrameUnsubscribe, "error").Inc()
		return
	}
	metrics.FramesTotal.WithLabelValues(domain.FrameUnsubscribe, "ok").Inc()
}

// authorize enforces the channel access rules: anonymous sockets keep only
// their negotiated public channel, user channels belong to their user, and
// tenant channels belong to the connection's own tenant.
func (d *Dispatcher) authorize(handle uuid.UUID, channel string) error {
	info, ok := d.reg.Info(handle)
	if !ok {
		return domain.ErrConnectionClosed
	}
	if info.Anonymous {
		return domain.ErrSubscriptionDenied
	}

	if strings.HasPrefix(channel, "user:") {
		if channel != domain.UserChannel(info.UserID) {
			return domain.ErrSubscriptionDenied
		}
		return nil
	}

	if strings.HasPrefix(channel, "tenant:") {
		own := domain.TenantChannel(info.TenantID)
		if info.TenantID == "" || (channel != own && !strings.HasPrefix(channel, own+":")) {
			return domain.ErrSubscriptionDenied
		}
		return nil
	}

	return nil
}

func (d *Dispatcher) sendError(handle uuid.UUID, message string) {
	env := domain.ErrorEnvelope(message, d.clock.Now())
	if err := d.reg.Send(handle, env); err != nil {
		slog.Debug("Failed to send error envelope", "handle", handle.String(), "error", err)
	}
}

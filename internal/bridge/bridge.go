// Package bridge relays delivery events between service instances through a
// shared pub/sub broker, making local delivery effectively global.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/domain"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/metrics"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/platform/retry"
)

// Topic is the single well-known broker topic shared by all instances.
const Topic = "edusms:broadcast"

// LocalDeliverer is the registry surface the bridge fans out to.
type LocalDeliverer interface {
	DeliverLocal(target domain.Target, env domain.Envelope) int
}

// relayMessage is the wire format exchanged between instances.
type relayMessage struct {
	Origin   string          `json:"origin"`
	Target   domain.Target   `json:"target"`
	Envelope domain.Envelope `json:"envelope"`
}

// Bridge publishes every delivery to the broker and relays peer deliveries
// into the local registry. With no broker (nil) or an unreachable one it
// degrades to local-only delivery; a publish never fails because of the
// broker.
type Bridge struct {
	broker   Broker
	local    LocalDeliverer
	origin   string
	degraded atomic.Bool
}

// New creates a bridge. broker may be nil, which pins the bridge to
// local-only mode (single-instance deployments).
func New(broker Broker, local LocalDeliverer) *Bridge {
	b := &Bridge{
		broker: broker,
		local:  local,
		origin: uuid.NewString(),
	}
	if broker == nil {
		b.degraded.Store(true)
		metrics.BridgeDegraded.Set(1)
	}
	return b
}

// Publish delivers to local subscribers immediately and relays the message to
// peer instances. The returned count is the number of local sockets written;
// broker failures only reduce reach, never fail the call.
func (b *Bridge) Publish(ctx context.Context, target domain.Target, env domain.Envelope) int {
	count := b.local.DeliverLocal(target, env)

	if b.broker == nil {
		metrics.BridgePublishedTotal.WithLabelValues("skipped").Inc()
		return count
	}

	msg := relayMessage{Origin: b.origin, Target: target, Envelope: env}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal relay message", "error", err)
		metrics.BridgePublishedTotal.WithLabelValues("error").Inc()
		return count
	}

	// Every publish attempts the broker even while degraded: the flag only
	// throttles logging, so a recovered broker is picked up on the very next
	// publish instead of waiting for the subscription to cycle.
	if err := b.broker.Publish(ctx, Topic, data); err != nil {
		if !b.degraded.Swap(true) {
			metrics.BridgeDegraded.Set(1)
			slog.Warn("Broker unreachable, degrading to local-only delivery", "error", err)
		}
		metrics.BridgePublishedTotal.WithLabelValues("error").Inc()
		return count
	}

	if b.degraded.Swap(false) {
		metrics.BridgeDegraded.Set(0)
		slog.Info("Broker reachable again, resuming cross-instance delivery")
	}
	metrics.BridgePublishedTotal.WithLabelValues("ok").Inc()
	return count
}

// Degraded reports whether the bridge currently runs in local-only mode.
func (b *Bridge) Degraded() bool {
	return b.degraded.Load()
}

// Run subscribes to the broker topic and relays peer messages into the local
// registry until ctx is cancelled. An unreachable broker does not abort the
// loop: the bridge stays in local-only mode and keeps retrying the
// subscription in the background.
func (b *Bridge) Run(ctx context.Context) {
	if b.broker == nil {
		slog.Info("No broker configured, running local-only")
		<-ctx.Done()
		return
	}

	policy := retry.Policy{
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     time.Minute,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Debug("Broker subscribe retry", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}

	for {
		sub, err := retry.Do(ctx, policy, func() (Subscription, error) {
			s, err := b.broker.Subscribe(ctx, Topic)
			if err != nil && !b.degraded.Swap(true) {
				metrics.BridgeDegraded.Set(1)
				slog.Warn("Broker unreachable, degrading to local-only delivery", "error", err)
			}
			return s, err
		})
		if err != nil {
			// Only context cancellation escapes the unlimited retry.
			return
		}

		if b.degraded.Swap(false) {
			slog.Info("Broker connection established, resuming cross-instance delivery")
		}
		metrics.BridgeDegraded.Set(0)

		b.receive(ctx, sub)
		_ = sub.Close()

		select {
		case <-ctx.Done():
			return
		default:
			// Subscription dropped; mark degraded and resubscribe.
			if !b.degraded.Swap(true) {
				metrics.BridgeDegraded.Set(1)
				slog.Warn("Broker subscription lost, degrading to local-only delivery")
			}
		}
	}
}

// receive relays messages until the subscription closes or ctx is cancelled.
// It never re-publishes: only Publish talks to the broker, which is what
// prevents broadcast storms.
func (b *Bridge) receive(ctx context.Context, sub Subscription) {
	for {
		select {
		case payload, ok := <-sub.Messages():
			if !ok {
				return
			}
			b.handlePayload(payload)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bridge) handlePayload(payload []byte) {
	var msg relayMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		metrics.BridgeDroppedTotal.Inc()
		slog.Warn("Dropping undecodable broker message", "error", err)
		return
	}

	// Our own publishes already ran DeliverLocal.
	if msg.Origin == b.origin {
		return
	}

	metrics.BridgeReceivedTotal.Inc()
	b.local.DeliverLocal(msg.Target, msg.Envelope)
}

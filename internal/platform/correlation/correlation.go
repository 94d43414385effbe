// Package correlation tags log records with the request or connection that
// produced them. HTTP handlers carry a per-request ID; WebSocket sessions
// carry their registry handle for the lifetime of the socket.
package correlation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

type scope int

const (
	scopeRequest scope = iota
	scopeConnection
)

var attrNames = map[scope]string{
	scopeRequest:    "request_id",
	scopeConnection: "connection_id",
}

// NewID generates a short random request ID.
func NewID() string {
	return uuid.NewString()[:8]
}

// WithRequest returns a context carrying a per-request ID.
func WithRequest(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, scopeRequest, id)
}

// WithConnection returns a context carrying a connection handle, so every log
// record emitted during the session names the socket it belongs to.
func WithConnection(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, scopeConnection, id)
}

// RequestID extracts the request ID from ctx, returning ("", false) if not present.
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(scopeRequest).(string)
	return id, ok && id != ""
}

// ConnectionID extracts the connection handle from ctx, returning ("", false)
// if not present.
func ConnectionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(scopeConnection).(string)
	return id, ok && id != ""
}

// Handler wraps an existing slog.Handler and injects the request_id and
// connection_id attributes carried by the record's context.
type Handler struct {
	inner slog.Handler
}

// NewHandler creates a correlation-aware handler wrapping the given handler.
func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	for s, name := range attrNames {
		if id, ok := ctx.Value(s).(string); ok && id != "" {
			r.AddAttrs(slog.String(name, id))
		}
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}

package domain

// Inbound frame types accepted from clients. Anything else is a protocol
// error answered with an error envelope.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePong        = "pong"
)

// Frame is one decoded inbound client message.
type Frame struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

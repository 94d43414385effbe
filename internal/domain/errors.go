package domain

import "errors"

var (
	// ErrCapacityExceeded is returned by Register when the instance-wide
	// connection limit is reached. Callers are expected to refuse the socket.
	ErrCapacityExceeded = errors.New("connection capacity exceeded")

	// ErrConnectionClosed is returned for operations on a handle that has
	// already been deregistered.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSubscriptionDenied is returned when a connection is not allowed to
	// subscribe to the requested channel (anonymous sockets, foreign user
	// channels).
	ErrSubscriptionDenied = errors.New("subscription denied")
)

// Package domain defines the core types of the realtime delivery subsystem.
//
// Concept-oriented files (envelope.go, frame.go, target.go, errors.go) hold
// shared value types and contracts. No implementation code - keeping the
// contracts here prevents circular imports between the registry, the bridge
// and the transport adapters.
package domain

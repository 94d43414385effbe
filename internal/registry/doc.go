// Package registry is the in-process source of truth for open connections.
//
// One registry-wide lock guards the connection map and the three delivery
// indices (by user, by tenant, by channel). Fan-out resolution happens under
// the read lock; the actual socket writes go through per-connection writer
// goroutines with bounded queues, so a slow consumer never blocks the
// registry or its channel peers.
package registry

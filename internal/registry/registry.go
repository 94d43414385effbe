package registry

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/domain"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/metrics"
)

// Identity is the already-authenticated tuple handed over by the transport
// layer. The registry never sees credentials.
type Identity struct {
	UserID   string
	TenantID string
	Role     string
	Device   domain.DeviceInfo
}

// ConnectionInfo is a read-only snapshot of one live connection.
type ConnectionInfo struct {
	Handle       uuid.UUID         `json:"handle"`
	UserID       string            `json:"user_id,omitempty"`
	TenantID     string            `json:"tenant_id,omitempty"`
	Role         string            `json:"role,omitempty"`
	Anonymous    bool              `json:"anonymous,omitempty"`
	Device       domain.DeviceInfo `json:"device"`
	ConnectedAt  time.Time         `json:"connected_at"`
	LastActivity time.Time         `json:"last_activity"`
	Channels     []string          `json:"channels"`
}

type connection struct {
	handle      uuid.UUID
	userID      string
	tenantID    string
	role        string
	device      domain.DeviceInfo
	anonymous   bool
	connectedAt time.Time
	writer      *clientWriter

	// channels and closed are guarded by the registry lock.
	channels map[string]struct{}
	closed   bool

	activityMu   sync.Mutex
	lastActivity time.Time
}

func (c *connection) touch(now time.Time) {
	c.activityMu.Lock()
	c.lastActivity = now
	c.activityMu.Unlock()
}

func (c *connection) lastSeen() time.Time {
	c.activityMu.Lock()
	defer c.activityMu.Unlock()
	return c.lastActivity
}

// Registry tracks every open connection on this instance together with the
// three delivery indices. All index mutations and fan-out reads go through
// the registry lock; socket I/O never happens under it.
type Registry struct {
	clock          clockwork.Clock
	maxConnections int

	mu        sync.RWMutex
	conns     map[uuid.UUID]*connection
	byUser    map[string]map[uuid.UUID]*connection
	byTenant  map[string]map[uuid.UUID]*connection
	byChannel map[string]map[uuid.UUID]*connection

	onUserOnline  func(tenantID, userID string)
	onUserOffline func(tenantID, userID string)
}

// New creates an empty registry. maxConnections bounds the instance;
// Register returns domain.ErrCapacityExceeded beyond it.
func New(clock clockwork.Clock, maxConnections int) *Registry {
	return &Registry{
		clock:          clock,
		maxConnections: maxConnections,
		conns:          make(map[uuid.UUID]*connection),
		byUser:         make(map[string]map[uuid.UUID]*connection),
		byTenant:       make(map[string]map[uuid.UUID]*connection),
		byChannel:      make(map[string]map[uuid.UUID]*connection),
	}
}

// SetLifecycleHooks installs the presence transition callbacks. onOnline
// fires when a user's first local connection registers, onOffline when the
// last one deregisters. Both run outside the registry lock. Must be called
// before the first Register.
func (r *Registry) SetLifecycleHooks(onOnline, onOffline func(tenantID, userID string)) {
	r.onUserOnline = onOnline
	r.onUserOffline = onOffline
}

// Register inserts an authenticated connection, indexes it and subscribes it
// to its implicit channels. Returns the fresh connection handle.
func (r *Registry) Register(ws *websocket.Conn, id Identity) (uuid.UUID, error) {
	c := &connection{
		handle:      uuid.New(),
		userID:      id.UserID,
		tenantID:    id.TenantID,
		role:        id.Role,
		device:      id.Device,
		connectedAt: r.clock.Now(),
		channels:    make(map[string]struct{}),
	}
	c.lastActivity = c.connectedAt
	c.writer = newClientWriter(ws, r.clock, func() { go r.Deregister(c.handle) })

	r.mu.Lock()
	if len(r.conns) >= r.maxConnections {
		r.mu.Unlock()
		c.writer.stop()
		return uuid.Nil, domain.ErrCapacityExceeded
	}

	r.conns[c.handle] = c
	indexInsert(r.byUser, id.UserID, c)
	indexInsert(r.byTenant, id.TenantID, c)
	firstOfUser := len(r.byUser[id.UserID]) == 1

	r.subscribeLocked(c, domain.UserChannel(id.UserID))
	if id.TenantID != "" {
		r.subscribeLocked(c, domain.TenantChannel(id.TenantID))
		if id.Role != "" {
			r.subscribeLocked(c, domain.TenantRoleChannel(id.TenantID, id.Role))
		}
	}
	r.mu.Unlock()

	metrics.ActiveConnections.Inc()
	metrics.ConnectionsTotal.WithLabelValues("authenticated").Inc()
	slog.Debug("Connection registered",
		"handle", c.handle.String(),
		"user_id", id.UserID,
		"tenant_id", id.TenantID,
	)

	if firstOfUser && r.onUserOnline != nil {
		r.onUserOnline(id.TenantID, id.UserID)
	}
	return c.handle, nil
}

// RegisterAnonymous inserts a reduced-capability public connection. It has no
// user identity, is subscribed to exactly the negotiated public channel, and
// the dispatcher refuses any further subscribe on it.
func (r *Registry) RegisterAnonymous(ws *websocket.Conn, publicChannel string, device domain.DeviceInfo) (uuid.UUID, error) {
	c := &connection{
		handle:      uuid.New(),
		device:      device,
		anonymous:   true,
		connectedAt: r.clock.Now(),
		channels:    make(map[string]struct{}),
	}
	c.lastActivity = c.connectedAt
	c.writer = newClientWriter(ws, r.clock, func() { go r.Deregister(c.handle) })

	r.mu.Lock()
	if len(r.conns) >= r.maxConnections {
		r.mu.Unlock()
		c.writer.stop()
		return uuid.Nil, domain.ErrCapacityExceeded
	}
	r.conns[c.handle] = c
	r.subscribeLocked(c, publicChannel)
	r.mu.Unlock()

	metrics.ActiveConnections.Inc()
	metrics.ConnectionsTotal.WithLabelValues("anonymous").Inc()
	slog.Debug("Anonymous connection registered", "handle", c.handle.String(), "channel", publicChannel)
	return c.handle, nil
}

// Deregister removes a connection from every index and channel, pruning
// now-empty channel entries. Idempotent and safe under concurrent triggers:
// only one caller observes the open connection and runs the cleanup.
func (r *Registry) Deregister(handle uuid.UUID) {
	r.mu.Lock()
	c, ok := r.conns[handle]
	if !ok || c.closed {
		r.mu.Unlock()
		return
	}
	c.closed = true
	delete(r.conns, handle)

	for channel := range c.channels {
		r.unsubscribeLocked(c, channel)
	}

	var lastOfUser bool
	if !c.anonymous {
		indexRemove(r.byUser, c.userID, handle)
		indexRemove(r.byTenant, c.tenantID, handle)
		lastOfUser = len(r.byUser[c.userID]) == 0
	}
	r.mu.Unlock()

	c.writer.stop()

	metrics.ActiveConnections.Dec()
	slog.Debug("Connection deregistered", "handle", handle.String(), "user_id", c.userID)

	if lastOfUser && r.onUserOffline != nil {
		r.onUserOffline(c.tenantID, c.userID)
	}
}

// Subscribe adds the connection to a channel. Subscribing to an
// already-subscribed channel is a no-op, not an error.
func (r *Registry) Subscribe(handle uuid.UUID, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[handle]
	if !ok {
		return domain.ErrConnectionClosed
	}
	r.subscribeLocked(c, channel)
	return nil
}

// Unsubscribe removes the connection from a channel. Unsubscribing from a
// channel never subscribed is a no-op.
func (r *Registry) Unsubscribe(handle uuid.UUID, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[handle]
	if !ok {
		return domain.ErrConnectionClosed
	}
	if _, subscribed := c.channels[channel]; !subscribed {
		return nil
	}
	r.unsubscribeLocked(c, channel)
	return nil
}

func (r *Registry) subscribeLocked(c *connection, channel string) {
	if _, ok := c.channels[channel]; ok {
		return
	}
	c.channels[channel] = struct{}{}
	set := r.byChannel[channel]
	if set == nil {
		set = make(map[uuid.UUID]*connection)
		r.byChannel[channel] = set
	}
	set[c.handle] = c
	metrics.ActiveChannels.Set(float64(len(r.byChannel)))
}

func (r *Registry) unsubscribeLocked(c *connection, channel string) {
	delete(c.channels, channel)
	set := r.byChannel[channel]
	delete(set, c.handle)
	if len(set) == 0 {
		delete(r.byChannel, channel)
	}
	metrics.ActiveChannels.Set(float64(len(r.byChannel)))
}

// DeliverLocal resolves the target against the local indices and attempts a
// non-blocking send to every matching connection. A connection whose send
// fails is treated as already disconnected and scheduled for deregistration.
// Returns the number of sockets the message was written to.
func (r *Registry) DeliverLocal(target domain.Target, env domain.Envelope) int {
	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("Failed to marshal envelope", "type", env.Type, "error", err)
		return 0
	}

	r.mu.RLock()
	var matches []*connection
	switch target.Kind {
	case domain.TargetKindUser:
		matches = snapshot(r.byUser[target.ID])
	case domain.TargetKindTenant:
		matches = snapshot(r.byTenant[target.ID])
	case domain.TargetKindChannel:
		matches = snapshot(r.byChannel[target.ID])
	case domain.TargetKindBroadcast:
		matches = snapshot(r.conns)
	}
	r.mu.RUnlock()

	sent := 0
	for _, c := range matches {
		if c.writer.enqueue(data) {
			sent++
			metrics.DeliveriesTotal.WithLabelValues("sent").Inc()
			continue
		}
		metrics.DeliveriesTotal.WithLabelValues("overflow").Inc()
		metrics.SlowClientsEvicted.Inc()
		slog.Warn("Evicting unresponsive connection", "handle", c.handle.String(), "user_id", c.userID)
		go r.Deregister(c.handle)
	}
	return sent
}

// Send writes one envelope directly to a single connection.
func (r *Registry) Send(handle uuid.UUID, env domain.Envelope) error {
	r.mu.RLock()
	c, ok := r.conns[handle]
	r.mu.RUnlock()
	if !ok {
		return domain.ErrConnectionClosed
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if !c.writer.enqueue(data) {
		go r.Deregister(handle)
		return domain.ErrConnectionClosed
	}
	return nil
}

// Touch records inbound activity for a connection.
func (r *Registry) Touch(handle uuid.UUID) {
	r.mu.RLock()
	c, ok := r.conns[handle]
	r.mu.RUnlock()
	if ok {
		c.touch(r.clock.Now())
	}
}

// ProbeAll enqueues a liveness probe to every local connection. Individual
// probe failures are skipped so one dead peer never aborts the sweep.
func (r *Registry) ProbeAll(env domain.Envelope) int {
	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("Failed to marshal probe", "error", err)
		return 0
	}

	r.mu.RLock()
	writers := snapshot(r.conns)
	r.mu.RUnlock()

	probed := 0
	for _, c := range writers {
		if c.writer.enqueue(data) {
			probed++
		}
	}
	return probed
}

// StaleHandles returns every connection without inbound activity for at
// least maxIdle.
func (r *Registry) StaleHandles(maxIdle time.Duration) []uuid.UUID {
	now := r.clock.Now()

	r.mu.RLock()
	conns := snapshot(r.conns)
	r.mu.RUnlock()

	var stale []uuid.UUID
	for _, c := range conns {
		if now.Sub(c.lastSeen()) >= maxIdle {
			stale = append(stale, c.handle)
		}
	}
	return stale
}

// Info returns the snapshot of one connection.
func (r *Registry) Info(handle uuid.UUID) (ConnectionInfo, bool) {
	r.mu.RLock()
	c, ok := r.conns[handle]
	if !ok {
		r.mu.RUnlock()
		return ConnectionInfo{}, false
	}
	info := r.infoLocked(c)
	r.mu.RUnlock()
	return info, true
}

// Snapshot lists every live connection for the admin surface.
func (r *Registry) Snapshot() []ConnectionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ConnectionInfo, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, r.infoLocked(c))
	}
	return out
}

func (r *Registry) infoLocked(c *connection) ConnectionInfo {
	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	return ConnectionInfo{
		Handle:       c.handle,
		UserID:       c.userID,
		TenantID:     c.tenantID,
		Role:         c.role,
		Anonymous:    c.anonymous,
		Device:       c.device,
		ConnectedAt:  c.connectedAt,
		LastActivity: c.lastSeen(),
		Channels:     channels,
	}
}

// ConnectionCount returns the number of open connections, optionally scoped
// to one tenant ("" means the whole instance).
func (r *Registry) ConnectionCount(tenantID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tenantID == "" {
		return len(r.conns)
	}
	return len(r.byTenant[tenantID])
}

// LocalOnlineUsers returns the distinct users with at least one connection on
// this instance, optionally scoped to one tenant. This is the degraded-mode
// answer when the shared presence store is unavailable.
func (r *Registry) LocalOnlineUsers(tenantID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if tenantID == "" {
		users := make([]string, 0, len(r.byUser))
		for userID := range r.byUser {
			users = append(users, userID)
		}
		return users
	}

	seen := make(map[string]struct{})
	for _, c := range r.byTenant[tenantID] {
		seen[c.userID] = struct{}{}
	}
	users := make([]string, 0, len(seen))
	for userID := range seen {
		users = append(users, userID)
	}
	return users
}

// LocalUserTenants returns every locally-online user mapped to its tenant.
// The heartbeat sweep uses this to refresh presence stamps.
func (r *Registry) LocalUserTenants() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.byUser))
	for userID, set := range r.byUser {
		for _, c := range set {
			out[userID] = c.tenantID
			break
		}
	}
	return out
}

// CloseAll gracefully closes every connection, running full deregistration
// for each. Used during shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.RLock()
	conns := snapshot(r.conns)
	r.mu.RUnlock()

	slog.Info("Closing all connections", "count", len(conns), "reason", reason)
	for _, c := range conns {
		c.writer.stopGraceful(reason)
		r.Deregister(c.handle)
	}
}

func indexInsert(index map[string]map[uuid.UUID]*connection, key string, c *connection) {
	set := index[key]
	if set == nil {
		set = make(map[uuid.UUID]*connection)
		index[key] = set
	}
	set[c.handle] = c
}

func indexRemove(index map[string]map[uuid.UUID]*connection, key string, handle uuid.UUID) {
	set := index[key]
	delete(set, handle)
	if len(set) == 0 {
		delete(index, key)
	}
}

func snapshot(set map[uuid.UUID]*connection) []*connection {
	out := make([]*connection, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

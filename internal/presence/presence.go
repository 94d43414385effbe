// Package presence maintains the cross-instance set of online users in the
// shared store. Presence is advisory: writes are best-effort and reads fall
// back to this instance's local registry view when the store is unavailable.
package presence

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/metrics"
)

// DefaultTTL bounds how long a crashed instance's entries linger. Every mark
// and every heartbeat refresh re-stamps the member, so healthy connections
// never expire.
const DefaultTTL = 90 * time.Second

const globalKey = "presence:global"

func tenantKey(tenantID string) string { return "presence:tenant:" + tenantID }

// LocalView is the degraded-mode fallback, answered from the local registry.
type LocalView interface {
	LocalOnlineUsers(tenantID string) []string
	LocalUserTenants() map[string]string
}

// Tracker records (tenant, user) online facts in Redis sorted sets scored by
// last-seen time. Members older than the TTL are treated as offline, which
// makes entries from crashed instances self-expire.
type Tracker struct {
	rdb   *goredis.Client
	local LocalView
	clock clockwork.Clock
	ttl   time.Duration
}

// New creates a tracker. rdb may be nil, in which case every read is
// answered from the local view and writes are no-ops.
func New(rdb *goredis.Client, local LocalView, clock clockwork.Clock, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{rdb: rdb, local: local, clock: clock, ttl: ttl}
}

// MarkOnline records the user as online for its tenant and globally,
// refreshing the TTL stamp. Failures are logged and swallowed.
func (t *Tracker) MarkOnline(ctx context.Context, tenantID, userID string) {
	if t.rdb == nil {
		return
	}

	score := float64(t.clock.Now().Unix())
	member := goredis.Z{Score: score, Member: userID}

	pipe := t.rdb.Pipeline()
	if tenantID != "" {
		pipe.ZAdd(ctx, tenantKey(tenantID), member)
		pipe.Expire(ctx, tenantKey(tenantID), 2*t.ttl)
	}
	pipe.ZAdd(ctx, globalKey, member)
	pipe.Expire(ctx, globalKey, 2*t.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		metrics.PresenceOpsTotal.WithLabelValues("mark_online", "error").Inc()
		slog.Warn("Failed to mark user online", "tenant_id", tenantID, "user_id", userID, "error", err)
		return
	}
	metrics.PresenceOpsTotal.WithLabelValues("mark_online", "ok").Inc()
}

// MarkOffline removes the user from its tenant set and the global set.
// Only called by the registry when the user's last local connection closes.
func (t *Tracker) MarkOffline(ctx context.Context, tenantID, userID string) {
	if t.rdb == nil {
		return
	}

	pipe := t.rdb.Pipeline()
	if tenantID != "" {
		pipe.ZRem(ctx, tenantKey(tenantID), userID)
	}
	pipe.ZRem(ctx, globalKey, userID)

	if _, err := pipe.Exec(ctx); err != nil {
		metrics.PresenceOpsTotal.WithLabelValues("mark_offline", "error").Inc()
		slog.Warn("Failed to mark user offline", "tenant_id", tenantID, "user_id", userID, "error", err)
		return
	}
	metrics.PresenceOpsTotal.WithLabelValues("mark_offline", "ok").Inc()
}

// OnlineUsers returns the users currently online across all instances for
// the given tenant ("" means globally). On store failure it degrades to the
// local registry view: smaller, but still correct for this instance.
func (t *Tracker) OnlineUsers(ctx context.Context, tenantID string) []string {
	if t.rdb == nil {
		return t.local.LocalOnlineUsers(tenantID)
	}

	key := globalKey
	if tenantID != "" {
		key = tenantKey(tenantID)
	}

	cutoff := t.clock.Now().Add(-t.ttl).Unix()
	users, err := t.rdb.ZRangeByScore(ctx, key, &goredis.ZRangeBy{
		Min: strconv.FormatInt(cutoff, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		metrics.PresenceOpsTotal.WithLabelValues("read", "error").Inc()
		slog.Warn("Presence store unavailable, answering from local view", "error", err)
		return t.local.LocalOnlineUsers(tenantID)
	}

	metrics.PresenceOpsTotal.WithLabelValues("read", "ok").Inc()

	// Opportunistically drop members whose stamp expired.
	t.rdb.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff-1, 10))

	return users
}

// Refresh re-stamps every locally-online user. The heartbeat monitor calls
// this each sweep so healthy connections never fall past the TTL.
func (t *Tracker) Refresh(ctx context.Context) {
	if t.rdb == nil {
		return
	}
	for userID, tenantID := range t.local.LocalUserTenants() {
		t.MarkOnline(ctx, tenantID, userID)
	}
}

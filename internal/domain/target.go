package domain

import (
	"fmt"
	"strings"
)

// TargetKind discriminates delivery target specifications.
type TargetKind int

const (
	TargetKindUser TargetKind = iota
	TargetKindTenant
	TargetKindChannel
	TargetKindBroadcast
)

// Target specifies where a message should be delivered: a single user, every
// connection of a tenant, an arbitrary named channel, or everyone.
type Target struct {
	Kind TargetKind
	ID   string
}

func TargetUser(userID string) Target      { return Target{Kind: TargetKindUser, ID: userID} }
func TargetTenant(tenantID string) Target  { return Target{Kind: TargetKindTenant, ID: tenantID} }
func TargetChannel(channel string) Target  { return Target{Kind: TargetKindChannel, ID: channel} }
func TargetBroadcast() Target              { return Target{Kind: TargetKindBroadcast} }

// String encodes the target for the bridge wire format.
func (t Target) String() string {
	switch t.Kind {
	case TargetKindUser:
		return "user:" + t.ID
	case TargetKindTenant:
		return "tenant:" + t.ID
	case TargetKindChannel:
		return "channel:" + t.ID
	case TargetKindBroadcast:
		return "*"
	default:
		return ""
	}
}

// ParseTarget decodes the bridge wire format produced by Target.String.
func ParseTarget(s string) (Target, error) {
	if s == "*" {
		return TargetBroadcast(), nil
	}
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return Target{}, fmt.Errorf("malformed target spec %q", s)
	}
	switch kind {
	case "user":
		return TargetUser(id), nil
	case "tenant":
		return TargetTenant(id), nil
	case "channel":
		return TargetChannel(id), nil
	default:
		return Target{}, fmt.Errorf("unknown target kind %q", kind)
	}
}

// MarshalText implements encoding.TextMarshaler so targets embed cleanly in
// the bridge's JSON relay messages.
func (t Target) MarshalText() ([]byte, error) {
	s := t.String()
	if s == "" {
		return nil, fmt.Errorf("invalid target kind %d", t.Kind)
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Target) UnmarshalText(data []byte) error {
	parsed, err := ParseTarget(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// --- Well-known channel families ---

// UserChannel names a user's implicit private channel.
func UserChannel(userID string) string { return "user:" + userID }

// TenantChannel names a tenant's implicit broadcast channel.
func TenantChannel(tenantID string) string { return "tenant:" + tenantID }

// TenantRoleChannel names the implicit channel shared by every connection of
// a tenant holding the same role.
func TenantRoleChannel(tenantID, role string) string {
	return "tenant:" + tenantID + ":" + role
}

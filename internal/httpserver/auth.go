package httpserver

import (
	"errors"
	"net/http"
)

// Gateway-injected identity headers. Token validation happens upstream; by
// the time a request reaches this service the headers are trusted.
const (
	headerUserID   = "X-User-ID"
	headerTenantID = "X-Tenant-ID"
	headerRole     = "X-Role"
)

var errNoIdentity = errors.New("missing identity headers")

// Principal is the authenticated identity attached to a connection.
type Principal struct {
	UserID   string
	TenantID string
	Role     string
}

// Authenticator resolves the principal for an upgrade request. Failures are
// answered with 401 before the WebSocket upgrade.
type Authenticator interface {
	Authenticate(r *http.Request) (Principal, error)
}

// HeaderAuthenticator reads the gateway identity headers.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		return Principal{}, errNoIdentity
	}
	return Principal{
		UserID:   userID,
		TenantID: r.Header.Get(headerTenantID),
		Role:     r.Header.Get(headerRole),
	}, nil
}

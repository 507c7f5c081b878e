// Package identity adapts authentication backends into a stream of credential events.
//
// A Provider emits a *Credential when a user is signed in and nil when nobody is.
// Subscribers receive the current state immediately on Subscribe, then every change.
package identity

import "context"

// Credential identifies the signed-in user. Empty Email or DisplayName means absent.
type Credential struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Clone returns a copy of c; nil stays nil.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Provider is the identity provider adapter consumed by the session controller.
type Provider interface {
	// Subscribe registers fn for credential events and delivers the current
	// credential (or nil) before returning. The returned func unsubscribes.
	Subscribe(fn func(*Credential)) (unsubscribe func())

	// Invalidate signs the current user out. Subscribers observe a nil event.
	Invalidate(ctx context.Context) error
}

// Verifier checks bearer tokens issued by a provider.
type Verifier interface {
	Verify(ctx context.Context, raw string) (*Credential, error)
}

// TokenSource exposes the signed-in user's bearer token.
type TokenSource interface {
	Token() string
}

// Package session implements the session and tenant-resolution controller.
//
// The controller follows identity provider events, resolves the user's profile
// and college (tenant), keeps the selected tenant in the local cache and
// publishes every change to its listeners. Resolutions are tagged with a
// monotonic sequence token; only the completion for the latest credential
// event may commit, so late responses for superseded events are discarded.
package session

import (
	"github.com/felixgeelhaar/campusconnect/internal/identity"
	"github.com/felixgeelhaar/campusconnect/internal/profile"
)

// State is the observable session state. Listeners receive copies.
type State struct {
	Credential *identity.Credential
	Profile    *profile.Profile
	// TenantID is the resolved or selected college; empty when absent.
	TenantID string
	// Resolving is true between a credential event and its profile resolution.
	Resolving bool
	// Version increases with every committed change.
	Version uint64
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	s.Credential = s.Credential.Clone()
	s.Profile = s.Profile.Clone()
	return s
}

// Authenticated reports whether a credential is present.
func (s State) Authenticated() bool {
	return s.Credential != nil
}

// UserID returns the signed-in user's id, or "".
func (s State) UserID() string {
	if s.Credential == nil {
		return ""
	}
	return s.Credential.UserID
}

// TenantName returns the display name of the profile's college, or "".
func (s State) TenantName() string {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.TenantName
}

// Listener observes committed states.
type Listener func(State)

// LoginRouter is asked to show the login screen after logout.
type LoginRouter interface {
	RequestLogin()
}

// Directory resolves tenant ids to display names.
type Directory interface {
	Contains(id string) bool
	DisplayName(id string) string
}

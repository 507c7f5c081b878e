// Package profile defines user profile documents and the stores that keep them.
package profile

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Profile is a user's profile document, keyed by the identity provider's user id.
type Profile struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`

	// TenantName is derived from the tenant directory and never stored.
	TenantName string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy of p; nil stays nil.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Update is a partial profile write. Nil fields are left untouched.
type Update struct {
	FullName  *string `json:"full_name,omitempty"`
	TenantID  *string `json:"tenant_id,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// Empty reports whether u changes nothing.
func (u Update) Empty() bool {
	return u.FullName == nil && u.TenantID == nil && u.AvatarURL == nil
}

// Apply writes the non-nil fields of u into p and reports whether anything changed.
func (p *Profile) Apply(u Update, now time.Time) bool {
	changed := false
	set := func(dst *string, v *string) {
		if v != nil && *dst != *v {
			*dst = *v
			changed = true
		}
	}
	set(&p.FullName, u.FullName)
	set(&p.TenantID, u.TenantID)
	set(&p.AvatarURL, u.AvatarURL)
	if changed {
		p.UpdatedAt = now
	}
	return changed
}

// Store is the profile store adapter.
type Store interface {
	// Get returns the profile for userID, or a NotFound-kind error when none exists.
	Get(ctx context.Context, userID string) (*Profile, error)

	// Merge applies a partial update, creating a minimal document when none exists.
	// Merging the same values twice is a no-op.
	Merge(ctx context.Context, userID string, u Update) error

	// Put writes a complete profile, replacing any existing one.
	Put(ctx context.Context, p *Profile) error
}

// StringPtr returns a pointer to s, for building Updates.
func StringPtr(s string) *string {
	return &s
}

// InitialsAvatarURL returns a placeholder avatar showing the first two letters of name.
func InitialsAvatarURL(name string) string {
	initials := []rune(strings.TrimSpace(name))
	if len(initials) > 2 {
		initials = initials[:2]
	}
	text := strings.ToUpper(string(initials))
	if text == "" {
		text = "U"
	}
	return "https://placehold.co/128x128.png?text=" + url.QueryEscape(text)
}

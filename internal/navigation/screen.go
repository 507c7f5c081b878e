// Package navigation decides where a user may be, given the session state.
//
// Decide is a pure function of the session state and the current screen.
// Guard applies its decisions through a Router and suppresses duplicate
// redirects.
package navigation

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
)

// Screen is a route path such as "/feed" or "/communities/mit".
type Screen string

// Known screens.
const (
	Landing         Screen = "/"
	Login           Screen = "/login"
	Signup          Screen = "/signup"
	TenantSelection Screen = "/select-college"
	Feed            Screen = "/feed"
	Messages        Screen = "/messages"
	Profile         Screen = "/profile"
	Settings        Screen = "/settings"
	Communities     Screen = "/communities"
	Discover        Screen = "/discover"
	Notifications   Screen = "/notifications"
	Search          Screen = "/search"
	Help            Screen = "/help"
	CreatePost      Screen = "/create-post"
)

// Screens lists the fixed screens in menu order.
var Screens = []Screen{
	Landing, Login, Signup, TenantSelection, Feed, Messages, Profile, Settings,
	Communities, Discover, Notifications, Search, Help, CreatePost,
}

var aliases = map[string]Screen{
	"landing":       Landing,
	"home":          Landing,
	"select-tenant": TenantSelection,
	"tenant":        TenantSelection,
	"college":       TenantSelection,
}

// Community returns the screen of a single college community.
func Community(tenantID string) Screen {
	return Screen(string(Communities) + "/" + tenantID)
}

// CommunityID returns the college id of a community screen.
func (s Screen) CommunityID() (string, bool) {
	id, ok := strings.CutPrefix(string(s), string(Communities)+"/")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// String returns the screen path.
func (s Screen) String() string { return string(s) }

// ParseScreen maps a path or screen name to a Screen. A leading slash is
// optional, so "feed" and "/feed" are equivalent.
func ParseScreen(raw string) (Screen, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return "", errors.New(errors.ErrCodeNavUnknownScreen, "screen cannot be empty").WithKind(errors.KindInvalid)
	}
	if s, ok := aliases[strings.Trim(name, "/")]; ok {
		return s, nil
	}
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	if len(name) > 1 {
		name = strings.TrimSuffix(name, "/")
	}

	s := Screen(name)
	if id, ok := s.CommunityID(); ok && !strings.Contains(id, "/") {
		return s, nil
	}
	for _, known := range Screens {
		if s == known {
			return s, nil
		}
	}
	return "", errors.New(errors.ErrCodeNavUnknownScreen, fmt.Sprintf("unknown screen: %s", raw)).
		WithKind(errors.KindInvalid).
		WithSuggestion("Known screens: " + screenList())
}

func screenList() string {
	names := make([]string, len(Screens))
	for i, s := range Screens {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

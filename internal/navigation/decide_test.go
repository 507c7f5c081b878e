package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/felixgeelhaar/campusconnect/internal/identity"
	"github.com/felixgeelhaar/campusconnect/internal/profile"
	"github.com/felixgeelhaar/campusconnect/internal/session"
)

var alice = &identity.Credential{UserID: "alice", Email: "alice@example.edu", DisplayName: "Alice"}

func anonymous() session.State { return session.State{} }

func resolving() session.State { return session.State{Credential: alice, Resolving: true} }

func noTenant() session.State {
	return session.State{Credential: alice, Profile: &profile.Profile{UserID: "alice"}}
}

func withTenant(id string) session.State {
	return session.State{Credential: alice, Profile: &profile.Profile{UserID: "alice", TenantID: id}, TenantID: id}
}

func TestPhaseOf(t *testing.T) {
	assert.Equal(t, Unauthenticated, PhaseOf(anonymous()))
	assert.Equal(t, Authenticating, PhaseOf(resolving()))
	assert.Equal(t, Authenticating, PhaseOf(session.State{Resolving: true}))
	assert.Equal(t, AuthenticatedNoTenant, PhaseOf(noTenant()))
	assert.Equal(t, AuthenticatedNoTenant, PhaseOf(session.State{Credential: alice}), "transport failure leaves no tenant")
	assert.Equal(t, AuthenticatedWithTenant, PhaseOf(withTenant("mit")))
}

func TestDecide(t *testing.T) {
	stay := Decision{Kind: Stay}
	to := func(s Screen) Decision { return Decision{Kind: Redirect, Target: s} }

	tests := []struct {
		name    string
		state   session.State
		current Screen
		want    Decision
	}{
		{"resolving shows placeholder", resolving(), Feed, Decision{Kind: Loading}},
		{"resolving on login", resolving(), Login, Decision{Kind: Loading}},

		{"anonymous on messages", anonymous(), Messages, to(Login)},
		{"anonymous on feed", anonymous(), Feed, to(Login)},
		{"anonymous on tenant selection", anonymous(), TenantSelection, to(Login)},
		{"anonymous on community", anonymous(), Community("mit"), to(Login)},
		{"anonymous on login", anonymous(), Login, stay},
		{"anonymous on signup", anonymous(), Signup, stay},
		{"anonymous on landing", anonymous(), Landing, stay},

		{"no tenant on feed", noTenant(), Feed, to(TenantSelection)},
		{"no tenant on landing", noTenant(), Landing, to(TenantSelection)},
		{"no tenant on selection", noTenant(), TenantSelection, stay},
		{"no tenant on login", noTenant(), Login, stay},
		{"no tenant on signup", noTenant(), Signup, stay},

		{"tenant on login", withTenant("stanford"), Login, to(Feed)},
		{"tenant on signup", withTenant("stanford"), Signup, to(Feed)},
		{"tenant on selection", withTenant("stanford"), TenantSelection, to(Feed)},
		{"tenant on feed", withTenant("stanford"), Feed, stay},
		{"tenant on landing", withTenant("stanford"), Landing, stay},
		{"tenant on community", withTenant("stanford"), Community("stanford"), stay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.state, tt.current))
		})
	}
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "redirect /login", Decision{Kind: Redirect, Target: Login}.String())
	assert.Equal(t, "loading", Decision{Kind: Loading}.String())
	assert.Equal(t, "stay", Decision{}.String())
}

func drawState(t *rapid.T) session.State {
	var st session.State
	if rapid.Bool().Draw(t, "authenticated") {
		st.Credential = alice
		if rapid.Bool().Draw(t, "hasProfile") {
			st.Profile = &profile.Profile{UserID: "alice"}
		}
		st.TenantID = rapid.SampledFrom([]string{"", "stanford", "mit"}).Draw(t, "tenant")
	}
	st.Resolving = rapid.Bool().Draw(t, "resolving")
	st.Version = rapid.Uint64().Draw(t, "version")
	return st
}

func drawScreen(t *rapid.T) Screen {
	return rapid.SampledFrom(append([]Screen{Community("mit")}, Screens...)).Draw(t, "screen")
}

func TestDecideIsPure(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		st := drawState(t)
		screen := drawScreen(t)

		first := Decide(st, screen)
		_ = Decide(drawState(t), drawScreen(t))
		if again := Decide(st.Clone(), screen); again != first {
			t.Fatalf("Decide changed from %v to %v for identical inputs", first, again)
		}

		versioned := st
		versioned.Version++
		if d := Decide(versioned, screen); d != first {
			t.Fatalf("Decide depends on version: %v vs %v", first, d)
		}
	})
}

func TestDecideRedirectTargetIsStable(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		st := drawState(t)
		d := Decide(st, drawScreen(t))
		if d.Kind != Redirect {
			return
		}
		// Following a redirect never produces another redirect.
		if next := Decide(st, d.Target); next.Kind == Redirect {
			t.Fatalf("redirect to %s leads to %v", d.Target, next)
		}
	})
}

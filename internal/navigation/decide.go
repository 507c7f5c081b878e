package navigation

import "github.com/felixgeelhaar/campusconnect/internal/session"

// Phase is the authentication phase derived from a session state.
type Phase int

const (
	Unauthenticated Phase = iota
	Authenticating
	AuthenticatedNoTenant
	AuthenticatedWithTenant
)

func (p Phase) String() string {
	switch p {
	case Authenticating:
		return "authenticating"
	case AuthenticatedNoTenant:
		return "authenticated-no-tenant"
	case AuthenticatedWithTenant:
		return "authenticated-with-tenant"
	default:
		return "unauthenticated"
	}
}

// PhaseOf derives the phase of st.
func PhaseOf(st session.State) Phase {
	switch {
	case st.Resolving:
		return Authenticating
	case st.Credential == nil:
		return Unauthenticated
	case st.TenantID == "":
		return AuthenticatedNoTenant
	default:
		return AuthenticatedWithTenant
	}
}

// Kind is what a screen should do.
type Kind int

const (
	// Stay renders the screen.
	Stay Kind = iota
	// Loading renders a placeholder until the session settles.
	Loading
	// Redirect moves to Decision.Target.
	Redirect
)

func (k Kind) String() string {
	switch k {
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	default:
		return "stay"
	}
}

// Decision is the outcome of Decide.
type Decision struct {
	Kind   Kind
	Target Screen
}

func (d Decision) String() string {
	if d.Kind == Redirect {
		return "redirect " + string(d.Target)
	}
	return d.Kind.String()
}

// Decide returns what the current screen should do for st.
func Decide(st session.State, current Screen) Decision {
	switch PhaseOf(st) {
	case Authenticating:
		return Decision{Kind: Loading}
	case Unauthenticated:
		if current != Login && current != Signup && current != Landing {
			return Decision{Kind: Redirect, Target: Login}
		}
	case AuthenticatedNoTenant:
		if current != TenantSelection && current != Login && current != Signup {
			return Decision{Kind: Redirect, Target: TenantSelection}
		}
	case AuthenticatedWithTenant:
		if current == Login || current == Signup || current == TenantSelection {
			return Decision{Kind: Redirect, Target: Feed}
		}
	}
	return Decision{Kind: Stay}
}

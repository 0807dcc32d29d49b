package session

import "strings"

// Verdict is the guard's decision for one navigation intent.
type Verdict int

const (
	// VerdictAllow lets the navigation proceed.
	VerdictAllow Verdict = iota
	// VerdictDefer means a transition is in flight; render nothing rather
	// than redirect, to avoid redirect flapping.
	VerdictDefer
	// VerdictRedirect sends the navigation to Decision.Target instead.
	VerdictRedirect
)

// Decision pairs a verdict with its redirect target when applicable.
type Decision struct {
	Verdict Verdict
	Target  string
}

// AreaPolicy describes one role-gated section of the portal.
type AreaPolicy struct {
	// Prefix is the path prefix the area owns, e.g. "/admin".
	Prefix string
	// Role is required to enter the area.
	Role Role
	// LoginPath is the login entry point for the area, itself public.
	LoginPath string
	// LandingPath is where a member of Role lands after login.
	LandingPath string
}

// RoutePolicy is the static table mapping roles to path prefixes, login
// entry points, and landing paths. Defined once at startup; not
// user-editable.
type RoutePolicy struct {
	Areas []AreaPolicy
	// GeneralLoginPath is the login entry point for paths outside any
	// area-specific login, e.g. "/login".
	GeneralLoginPath string
}

// DefaultRoutePolicy mirrors the portal's layout: customers under /user,
// property owners under /propertyowner, admins under /admin.
func DefaultRoutePolicy() RoutePolicy {
	return RoutePolicy{
		GeneralLoginPath: "/login",
		Areas: []AreaPolicy{
			{
				Prefix:      "/admin",
				Role:        RoleAdmin,
				LoginPath:   "/admin/login",
				LandingPath: "/admin/dashboard",
			},
			{
				Prefix:      "/propertyowner",
				Role:        RolePropertyOwner,
				LoginPath:   "/propertyowner/login",
				LandingPath: "/propertyowner/dashboard",
			},
			{
				Prefix:      "/user",
				Role:        RoleCustomer,
				LoginPath:   "/login",
				LandingPath: "/user",
			},
		},
	}
}

// LandingPathFor maps a role to its canonical landing path. Pure lookup, no
// side effects.
func (p RoutePolicy) LandingPathFor(role Role) string {
	for _, area := range p.Areas {
		if area.Role == role {
			return area.LandingPath
		}
	}
	return "/"
}

// LoginPathFor returns the login entry point guarding a path: the area login
// when the path belongs to an area, the general login otherwise.
func (p RoutePolicy) LoginPathFor(path string) string {
	if area, ok := p.areaFor(path); ok {
		return area.LoginPath
	}
	return p.GeneralLoginPath
}

// Evaluate applies the guard decision table to one navigation intent.
func (p RoutePolicy) Evaluate(state State, path string) Decision {
	// never redirect mid-transition
	if state.Status == StatusAuthenticating {
		return Decision{Verdict: VerdictDefer}
	}

	area, inArea := p.areaFor(path)
	loginPage := p.isLoginPath(path)

	if !state.IsAuthenticated() {
		if inArea && !loginPage {
			return Decision{Verdict: VerdictRedirect, Target: area.LoginPath}
		}
		return Decision{Verdict: VerdictAllow}
	}

	if loginPage {
		return Decision{Verdict: VerdictRedirect, Target: p.LandingPathFor(state.Role())}
	}

	// a role mismatch is unauthorized, not "already logged in elsewhere"
	if inArea && area.Role != state.Role() {
		return Decision{Verdict: VerdictRedirect, Target: area.LoginPath}
	}

	return Decision{Verdict: VerdictAllow}
}

func (p RoutePolicy) areaFor(path string) (AreaPolicy, bool) {
	for _, area := range p.Areas {
		if pathHasPrefix(path, area.Prefix) {
			return area, true
		}
	}
	return AreaPolicy{}, false
}

func (p RoutePolicy) isLoginPath(path string) bool {
	clean := strings.TrimRight(path, "/")
	if clean == "" {
		clean = "/"
	}

	if clean == strings.TrimRight(p.GeneralLoginPath, "/") {
		return true
	}
	for _, area := range p.Areas {
		if clean == strings.TrimRight(area.LoginPath, "/") {
			return true
		}
	}
	return false
}

// pathHasPrefix matches whole path segments: "/users" is not under "/user".
func pathHasPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) {
		return true
	}
	return path[len(prefix)] == '/'
}

package session

// Status tags the session state union.
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusAuthenticating  Status = "authenticating"
	StatusAuthenticated   Status = "authenticated"
	// StatusExpired is terminal-transitional: it triggers credential cleanup
	// and then becomes StatusUnauthenticated.
	StatusExpired Status = "expired"
)

// State is a snapshot of the session. Principal and tokens are populated only
// while Status is StatusAuthenticated. Generation identifies the transition
// that produced the snapshot.
type State struct {
	Status       Status
	Principal    *Principal
	AccessToken  string
	RefreshToken string
	Generation   uint64
}

// IsAuthenticated reports whether the snapshot carries a usable principal.
func (s State) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated && s.Principal != nil
}

// Role returns the principal's role, or empty when not authenticated.
func (s State) Role() Role {
	if !s.IsAuthenticated() {
		return ""
	}
	return s.Principal.Role
}

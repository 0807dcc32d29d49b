package session

// Role is the authorization-relevant role carried by a Principal. Role values
// come from the backend; decoded token claims are never trusted for
// authorization decisions.
type Role string

const (
	RoleCustomer      Role = "customer"
	RolePropertyOwner Role = "property_owner"
	RoleAdmin         Role = "admin"
)

// ParseRole validates a raw role string against the known portal roles.
func ParseRole(raw string) (Role, bool) {
	role := Role(raw)
	if role.IsValid() {
		return role, true
	}
	return "", false
}

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleCustomer, RolePropertyOwner, RoleAdmin:
		return true
	default:
		return false
	}
}

package session

import "time"

// CredentialBundle is the persisted unit of authentication: both tokens plus
// the backend-confirmed principal. A bundle is saved or cleared as a whole;
// a partial bundle must never be observable in a store.
type CredentialBundle struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Principal    Principal `json:"principal"`
	IssuedAt     time.Time `json:"issued_at"`
}

// Complete reports whether every field a consumer relies on is populated.
// Stores treat incomplete bundles the same as corrupt ones.
func (b *CredentialBundle) Complete() bool {
	if b == nil {
		return false
	}
	return b.AccessToken != "" &&
		b.RefreshToken != "" &&
		b.Principal.ID != "" &&
		b.Principal.Role.IsValid()
}

package session

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
)

const (
	TextCodeTokenMalformed    = "MALFORMED_TOKEN"
	TextCodeTokenExpired      = "TOKEN_EXPIRED"
	TextCodeAuthExpired       = "AUTH_EXPIRED"
	TextCodeNoCredential      = "NO_CREDENTIAL"
	TextCodeContractViolation = "TOKEN_CONTRACT_VIOLATION"
	TextCodeNetworkError      = "NETWORK_ERROR"
	TextCodeStaleGeneration   = "STALE_GENERATION"
)

// ErrTokenMalformed is returned when a stored or received token fails basic
// structural decode. Recovered locally by clearing the store.
var ErrTokenMalformed = errors.New("malformed credential token", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when a decoded token's expiry claim is missing,
// unparseable, or in the past.
var ErrTokenExpired = errors.New("credential token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrAuthExpired is returned when an authenticated call is rejected with
// 401/403. The session has already been torn down by the time callers see it.
var ErrAuthExpired = errors.New("session expired, please log in again", errors.CategoryAuth).
	WithTextCode(TextCodeAuthExpired).
	WithCode(errors.CodeUnauthorized)

// ErrUnauthorized is returned when a call requiring a principal is made with
// no credential present. No network request is issued. Callers consuming
// optional data should treat this as "no data" rather than a hard failure.
var ErrUnauthorized = errors.New("no credential present", errors.CategoryAuth).
	WithTextCode(TextCodeNoCredential).
	WithCode(errors.CodeUnauthorized)

// ErrGrantIncomplete is returned when a login response is missing the access
// or refresh token. The store is left untouched.
var ErrGrantIncomplete = errors.New("identity service returned an incomplete token grant", errors.CategoryOperation).
	WithTextCode(TextCodeContractViolation).
	WithCode(errors.CodeInternal)

// ErrStaleGeneration is returned to callers whose async completion arrived
// after a newer session transition already won.
var ErrStaleGeneration = errors.New("operation superseded by a newer session transition", errors.CategoryConflict).
	WithTextCode(TextCodeStaleGeneration).
	WithCode(errors.CodeConflict)

// WrapNetworkError marks a transport-level failure (DNS, connection refused,
// context cancellation). Network errors never mutate session state.
func WrapNetworkError(err error) error {
	return errors.Wrap(err, errors.CategoryOperation, "network error").
		WithTextCode(TextCodeNetworkError).
		WithCode(errors.CodeInternal)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *errors.Error
	if errors.As(err, &rich) {
		return rich.TextCode == code
	}
	return false
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return hasTextCode(err, TextCodeTokenExpired)
}

// IsMalformedError will check for structurally invalid tokens
func IsMalformedError(err error) bool {
	return hasTextCode(err, TextCodeTokenMalformed)
}

// IsAuthExpiredError reports whether an authenticated call was rejected by
// the backend and the session torn down.
func IsAuthExpiredError(err error) bool {
	return hasTextCode(err, TextCodeAuthExpired)
}

// IsUnauthorizedError reports whether a call was refused locally because no
// credential was present.
func IsUnauthorizedError(err error) bool {
	return hasTextCode(err, TextCodeNoCredential)
}

// IsNetworkError reports whether the failure was transport-level.
func IsNetworkError(err error) bool {
	return hasTextCode(err, TextCodeNetworkError)
}

// IsStaleGenerationError reports whether a completion lost to a newer
// transition.
func IsStaleGenerationError(err error) bool {
	return hasTextCode(err, TextCodeStaleGeneration)
}

// IsValidationError reports whether the error came from payload validation
// before any network call was made.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var verrs validation.Errors
	return errors.As(err, &verrs)
}

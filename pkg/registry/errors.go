package registry

import "fmt"

// AuthReason discriminates why a device authentication failed.
type AuthReason string

const (
	AuthReasonNotFound      AuthReason = "ERR_NOT_FOUND"
	AuthReasonInvalidFormat AuthReason = "ERR_INVALID_FORMAT"
	AuthReasonKeyMismatch   AuthReason = "ERR_KEY_MISMATCH"
)

func (r AuthReason) String() string {
	return string(r)
}

type AuthError struct {
	Reason  AuthReason
	Message string
}

func NewAuthError(reason AuthReason, message string) error {
	return &AuthError{
		Reason:  reason,
		Message: message,
	}
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: reason: %s", e.Reason)
}

func IsAuthError(e error) bool {
	_, ok := e.(*AuthError)
	return ok
}

// AuthErrorReason returns the reason of an AuthError, or an empty reason when
// the error is of a different kind.
func AuthErrorReason(e error) AuthReason {
	ae, ok := e.(*AuthError)
	if !ok {
		return AuthReason("")
	}
	return ae.Reason
}

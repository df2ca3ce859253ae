package tokens

import (
	"errors"
	"fmt"

	"github.com/issuedeck/issuedeck/internal/database"
)

// AuthError means the integration's credentials are invalid, expired, or
// unrefreshable. The integration is marked failed and needs re-authorization
// out of band; the scheduler retries on the next tick like any sync failure.
type AuthError struct {
	Provider      database.Provider
	IntegrationID string
	Reason        string
	Err           error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed for %s integration %s: %s: %v",
			e.Provider, e.IntegrationID, e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed for %s integration %s: %s",
		e.Provider, e.IntegrationID, e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is (or wraps) an AuthError
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

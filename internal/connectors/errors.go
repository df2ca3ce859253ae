package connectors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/issuedeck/issuedeck/internal/database"
)

// TransientError is a provider failure expected to clear on its own: network
// trouble, a 5xx, or a rate-limit response. It aborts the current sync and is
// retried on the next scheduled tick, never inside the connector.
type TransientError struct {
	Provider   database.Provider
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient %s failure (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient %s failure: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a TransientError
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// DataError is a single malformed item from a provider. The item is skipped
// and the rest of the page keeps processing; it never fails the sync.
type DataError struct {
	Provider database.Provider
	Reason   string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("malformed %s item: %s", e.Provider, e.Reason)
}

// transientStatus reports whether an HTTP status should be treated as
// transient. Rate limits count as transient, not fatal.
func transientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

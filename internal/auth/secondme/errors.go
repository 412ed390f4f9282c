package secondme

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingEnvelope indicates a 2xx response without the expected
	// {code, data} envelope. The provider contract was violated.
	ErrMissingEnvelope = errors.New("response missing data field")

	// ErrMissingUserID indicates a user info payload without a stable
	// userId. The id is the join key for local user records, so this is
	// unrecoverable for the current login attempt.
	ErrMissingUserID = errors.New("user info missing userId field")
)

// APIError describes a failed call against the SecondMe API. Status is the
// HTTP status code, or 0 when the request never completed (transport error,
// timeout). Body carries the raw response body, truncated, and is never
// assumed to be JSON.
type APIError struct {
	Op     string // "exchange", "refresh", or "userinfo"
	Status int
	Body   string
	Err    error
}

func (e *APIError) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("secondme %s request failed: %v", e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("secondme %s failed (%d): %v: %s", e.Op, e.Status, e.Err, e.Body)
	default:
		return fmt.Sprintf("secondme %s failed (%d): %s", e.Op, e.Status, e.Body)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

package portal

import "errors"

// Error marks a failure of a portal session or RPC. The recovery
// supervisor restarts sessions for this class; other errors stay within
// the current capture cycle.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsPortalError reports whether err carries a portal-class failure.
func IsPortalError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}

package carta

import (
	"errors"
	"fmt"
)

var (
	// ErrScripting is the root of every error raised by this package.
	ErrScripting = errors.New("carta scripting error")

	// ErrActionFailed means the backend could not be reached or the frontend
	// reported that the action failed.
	ErrActionFailed = fmt.Errorf("%w: action failed", ErrScripting)

	// ErrBadResponse means a response was expected but missing, or it could
	// not be decoded.
	ErrBadResponse = fmt.Errorf("%w: bad response", ErrScripting)

	// ErrValidation means a method argument was rejected before any request
	// was sent.
	ErrValidation = fmt.Errorf("%w: invalid parameter", ErrScripting)

	// ErrDirectoryChange means the frontend did not accept a new starting
	// directory. The previous directory has been restored.
	ErrDirectoryChange = fmt.Errorf("%w: could not change directory", ErrScripting)

	// ErrNoConnectionInfo means a browser never logged the backend host and
	// session ID of the frontend it opened.
	ErrNoConnectionInfo = fmt.Errorf("%w: could not parse CARTA backend host and session ID from browser console log", ErrScripting)
)

// ActionError describes a failed call to a frontend action.
type ActionError struct {
	Path       string
	Action     string
	Parameters string
	Reason     string
	Kind       error // ErrActionFailed or ErrBadResponse
	Err        error // underlying cause, may be nil
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("CARTA scripting action %s called with parameters %s %s",
		joinPath(e.Path, e.Action), e.Parameters, e.Reason)
}

// Unwrap exposes both the error kind and the underlying cause.
func (e *ActionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: Invalid function parameter: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func joinPath(path, action string) string {
	if path == "" {
		return action
	}
	return path + "." + action
}

package broker

import (
	"errors"
	"fmt"
)

// Broker failure kinds. Callers branch on these with errors.Is; wrapped
// variants carry the ids involved.
var (
	// ErrUserNotFound means context construction referenced an unknown user.
	ErrUserNotFound = errors.New("user not found")

	// ErrAppNotInstalled means no installation with status "installed"
	// exists for the (user, app) pair.
	ErrAppNotInstalled = errors.New("app not installed")

	// ErrOutputNotFound means the target app has no registration for the
	// requested output id.
	ErrOutputNotFound = errors.New("output not found")

	// ErrOutputNotImplemented means the output is registered but the target
	// module exposes no entry point for it.
	ErrOutputNotImplemented = errors.New("output not implemented")

	// ErrMethodNotFound means the target module exposes no entry point with
	// the requested method name, or the manifest does not declare it.
	ErrMethodNotFound = errors.New("method not found")

	// ErrModuleUnavailable means the target app has no executable code or
	// its module could not be resolved. Distinct from a missing output so
	// callers can tell "app has no code" from "app lacks this output".
	ErrModuleUnavailable = errors.New("module unavailable")

	// ErrPermissionDenied means the requesting app lacks the grant a
	// protected output requires.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUserInfoMissing means bundle user info was read before the
	// factory populated it.
	ErrUserInfoMissing = errors.New("user info missing")

	// ErrNotImplemented marks reserved operations (agent-to-agent query).
	ErrNotImplemented = errors.New("not implemented")
)

// CalleeError wraps a failure raised inside a callee's entry point. The
// cause propagates to the original caller untouched; inter-app calls are
// never retried because the callee may already have performed side effects.
type CalleeError struct {
	AppID string
	Cause error
}

func (e *CalleeError) Error() string {
	return fmt.Sprintf("app %q entry point failed: %v", e.AppID, e.Cause)
}

func (e *CalleeError) Unwrap() error {
	return e.Cause
}

// AsCallee extracts a CalleeError from an error chain.
func AsCallee(err error) (*CalleeError, bool) {
	var ce *CalleeError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

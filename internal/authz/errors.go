package authz

import (
	"errors"
	"fmt"
)

// ValidationError reports a missing or invalid call parameter. Evaluator
// entry points convert it into a denied Decision; team-manager operations
// return it directly.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error [%s]: %s", e.Field, e.Message)
}

// ConfigurationError reports a malformed or missing configuration document.
// It is the one fatal error class: initialization aborts, because no safe
// default permission matrix exists.
type ConfigurationError struct {
	Document string
	Message  string
	Err      error
}

func (e ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error [%s]: %s: %v", e.Document, e.Message, e.Err)
	}
	return fmt.Sprintf("configuration error [%s]: %s", e.Document, e.Message)
}

func (e ConfigurationError) Unwrap() error { return e.Err }

// LimitExceededError reports a violated team-count limit. The triggering
// call performs no mutation.
type LimitExceededError struct {
	UserID string
	Limit  int
}

func (e LimitExceededError) Error() string {
	return fmt.Sprintf("user %s cannot belong to more than %d teams", e.UserID, e.Limit)
}

// TeamOperationError surfaces an underlying directory-store failure during a
// team or membership mutation, with the originating message attached.
type TeamOperationError struct {
	Operation string
	Err       error
}

func (e TeamOperationError) Error() string {
	return fmt.Sprintf("team operation %s failed: %v", e.Operation, e.Err)
}

func (e TeamOperationError) Unwrap() error { return e.Err }

// ErrUserNotFound marks an unresolvable user context.
var ErrUserNotFound = errors.New("user not found")

// StatusError tags directory-store failures with the store's numeric status
// code. 404 means "does not exist yet"; other codes are operational
// failures.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("directory error %d: %s", e.Code, e.Message)
}

// IsNotFound reports whether err carries a 404 status.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == 404
}

// IsConflict reports whether err carries a 409 status, which the team
// manager treats as "already exists" when racing to create a team.
func IsConflict(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == 409
}

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means the caller lacks administrator privilege.
	ErrUnauthorized = errors.New("administrator privileges required")

	// ErrNotFound is wrapped with the missing resource, e.g.
	// fmt.Errorf("agent %s: %w", id, domain.ErrNotFound).
	ErrNotFound = errors.New("not found")

	// ErrConflict means the request collides with existing state, such as
	// a registration reusing a taken DNS name.
	ErrConflict = errors.New("conflict")
)

// IllegalTransitionError rejects an action that is not valid from the
// entity's current state. No writes happen when it is returned.
type IllegalTransitionError struct {
	Action  string
	Current AgentState
	Detail  string
}

func (e *IllegalTransitionError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("cannot %s agent in %s state", e.Action, e.Current)
}

// PathViolationError is a hard abort: a derived file path resolved outside
// the permitted upload directory. Never retried.
type PathViolationError struct {
	Path string
}

func (e *PathViolationError) Error() string {
	return fmt.Sprintf("path %q escapes the upload directory", e.Path)
}

// IsIllegalTransition reports whether err is (or wraps) an IllegalTransitionError.
func IsIllegalTransition(err error) bool {
	var ite *IllegalTransitionError
	return errors.As(err, &ite)
}

// IsPathViolation reports whether err is (or wraps) a PathViolationError.
func IsPathViolation(err error) bool {
	var pve *PathViolationError
	return errors.As(err, &pve)
}

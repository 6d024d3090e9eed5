package domain

import "errors"

var (
	// ErrTaskNotFound covers both a missing task and a private one, so a
	// direct-reference probe cannot distinguish the two.
	ErrTaskNotFound = errors.New("task not found")

	// ErrForbidden is returned when the acting identity does not own the
	// resource it is trying to mutate.
	ErrForbidden = errors.New("forbidden")
)

package domain

import "errors"

var (
	// ErrValidation marks request or payload validation failures.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups for records that do not exist.
	ErrNotFound = errors.New("not found")
)

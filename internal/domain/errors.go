package domain

import "errors"

// Sentinel errors used across services and repositories. Callers match with
// errors.Is and wrap with fmt.Errorf("%w: ...") to add context.
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
)

package domain

import "errors"

var (
	// ErrValidation input rejected before touching state
	ErrValidation = errors.New("validation failed")
	// ErrNotFound no live session or draft for the id
	ErrNotFound = errors.New("assessment not found")
	// ErrSubmitted record already submitted and is read-only
	ErrSubmitted = errors.New("assessment already submitted")
)

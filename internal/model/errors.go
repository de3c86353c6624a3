package model

import "errors"

// Domain sentinels shared by services, repositories and the HTTP layer.
var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrDuplicate           = errors.New("duplicate")
	ErrConflict            = errors.New("conflict")
	ErrInsufficientCredits = errors.New("insufficient credits")
)

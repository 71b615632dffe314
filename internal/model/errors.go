package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrListLocked       = errors.New("list is locked")
	ErrListFull         = errors.New("list is full")
	ErrAlreadyCancelled = errors.New("signup already cancelled")
	ErrDuplicate        = errors.New("duplicate")
	ErrSlugTaken        = errors.New("slug taken")
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidPhone     = errors.New("invalid phone number")
)

// ValidationError rejects a request before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

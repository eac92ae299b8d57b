package chat

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrPersistence  = errors.New("persistence failure")
)

func validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Code maps an error to the short code reported to clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation_failed"
	default:
		return "internal_error"
	}
}

// PublicMessage is the error text safe to show the caller. Persistence
// details stay in the server log.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrNotFound), errors.Is(err, ErrValidation):
		return err.Error()
	default:
		return "internal error"
	}
}

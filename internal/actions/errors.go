package actions

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is matched by every InputError.
var ErrInvalidInput = errors.New("invalid input")

// InputError reports a rejected user-supplied field.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string     { return e.Message }
func (e *InputError) ErrorCode() string { return "INVALID_INPUT" }
func (e *InputError) Context() map[string]string {
	return map[string]string{"field": e.Field}
}
func (e *InputError) SuggestedAction() string { return "fix the " + e.Field + " field and retry" }
func (e *InputError) Is(target error) bool    { return target == ErrInvalidInput }

func invalid(field, format string, args ...any) error {
	return &InputError{Field: field, Message: fmt.Sprintf(format, args...)}
}

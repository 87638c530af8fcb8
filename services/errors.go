package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrAccessDenied = errors.New("access denied")
	ErrInvalidID    = errors.New("invalid id format")
)

// AccessDeniedError is returned when the caller is known but an authorization check fails.
type AccessDeniedError struct {
	Action string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("you do not have permission to %s this task", e.Action)
}

func (e *AccessDeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries one message per offending field. Nothing is written when it is returned.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func invalidField(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// ConflictError names the field whose value clashed with stored state: a unique index,
// or "version" when the task changed between the read and the write.
type ConflictError struct {
	Field string
	Err   error
}

func (e *ConflictError) Error() string {
	if e.Field == "version" {
		return "task was modified by another request"
	}
	return fmt.Sprintf("duplicate value for %s", e.Field)
}

func (e *ConflictError) Unwrap() error { return e.Err }

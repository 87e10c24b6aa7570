package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// NotFoundError is returned when a requested resource does not exist.
type NotFoundError struct {
	msg string
}

func NewNotFoundError(msg string) *NotFoundError {
	return &NotFoundError{msg: msg}
}

func (err NotFoundError) Error() string {
	return err.msg
}

// ConflictError is returned when a write collides with the current state of a resource.
type ConflictError struct {
	msg string
}

func NewConflictError(msg string) *ConflictError {
	return &ConflictError{msg: msg}
}

func (err ConflictError) Error() string {
	return err.msg
}

// ExternalServiceError wraps a failure reported by a third party service.
type ExternalServiceError struct {
	Service        string
	UpstreamStatus int
	Message        string
	Err            error
}

func NewExternalServiceError(service string, status int, msg string, err error) error {
	return &ExternalServiceError{Service: service, UpstreamStatus: status, Message: msg, Err: err}
}

func (err ExternalServiceError) Error() string {
	msg := err.Message
	if msg == "" && err.Err != nil {
		msg = err.Err.Error()
	}
	if err.UpstreamStatus > 0 {
		return fmt.Sprintf("%s (%d): %s", err.Service, err.UpstreamStatus, msg)
	}
	return fmt.Sprintf("%s: %s", err.Service, msg)
}

func (err ExternalServiceError) Unwrap() error {
	return err.Err
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*ConflictError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

package apperror

import (
	"errors"
	"fmt"
	"strings"
)

// Code is a stable, machine-readable error category
type Code string

// Standard error codes.
const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeAuthorization     Code = "AUTHORIZATION_ERROR"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeNotFound          Code = "NOT_FOUND"
	CodePersistence       Code = "PERSISTENCE_ERROR"
	CodeNotification      Code = "NOTIFICATION_ERROR"
	CodeCanceled          Code = "CANCELED"
)

// Sentinels for errors.Is; they match any *Error with the same code.
var (
	ErrValidation        = &Error{Code: CodeValidation}
	ErrAuthorization     = &Error{Code: CodeAuthorization}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition}
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrPersistence       = &Error{Code: CodePersistence}
	ErrNotification      = &Error{Code: CodeNotification}
	ErrCanceled          = &Error{Code: CodeCanceled}
)

// FieldError describes a field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the error type returned by workflow operations.
// Context fields are optional and only set where they apply.
type Error struct {
	Code      Code         `json:"code"`
	Message   string       `json:"message"`
	Kind      string       `json:"kind,omitempty"`
	ItemID    string       `json:"item_id,omitempty"`
	Operation string       `json:"operation,omitempty"`
	Actor     string       `json:"actor,omitempty"`
	From      string       `json:"from,omitempty"`
	To        string       `json:"to,omitempty"`
	Details   []FieldError `json:"details,omitempty"`
	Err       error        `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Err == nil
}

// WithItem sets the kind and item id and returns the receiver
func (e *Error) WithItem(kind, id string) *Error {
	e.Kind = kind
	e.ItemID = id
	return e
}

// WithOperation sets the operation and returns the receiver
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// Validation returns a VALIDATION_ERROR for the given field problems.
func Validation(details ...FieldError) *Error {
	msg := "invalid input"
	if len(details) == 1 {
		msg = fmt.Sprintf("%s: %s", details[0].Field, details[0].Message)
	} else if len(details) > 1 {
		msg = fmt.Sprintf("%d fields are invalid", len(details))
	}
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Validationf returns a VALIDATION_ERROR without field details.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized returns an AUTHORIZATION_ERROR for an actor attempting an operation.
func Unauthorized(operation, actor, role string) *Error {
	return &Error{
		Code:      CodeAuthorization,
		Message:   fmt.Sprintf("actor %q with role %q may not %s", actor, role, operation),
		Operation: operation,
		Actor:     actor,
	}
}

// InvalidTransition returns an INVALID_TRANSITION error.
func InvalidTransition(from, to string) *Error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot move from %q to %q", from, to),
		From:    from,
		To:      to,
	}
}

// NotFound returns a NOT_FOUND error for an item.
func NotFound(kind, id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %q not found", kind, id),
		Kind:    kind,
		ItemID:  id,
	}
}

// Persistence wraps a store failure.
func Persistence(operation string, err error) *Error {
	return &Error{Code: CodePersistence, Message: operation, Operation: operation, Err: err}
}

// Notification wraps a delivery failure.
func Notification(recipient string, err error) *Error {
	return &Error{Code: CodeNotification, Message: "deliver to " + recipient, Err: err}
}

// Canceled wraps a context error observed before persistence.
func Canceled(operation string, err error) *Error {
	return &Error{Code: CodeCanceled, Message: operation, Operation: operation, Err: err}
}

// CodeOf returns the code of the first *Error in the chain, or "" if there is none
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

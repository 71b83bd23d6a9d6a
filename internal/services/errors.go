package services

import (
	"errors"
	"fmt"

	"github.com/circles/backend/internal/database"
	"gorm.io/gorm"
)

type ErrorKind string

const (
	KindNotFound   ErrorKind = "not_found"
	KindForbidden  ErrorKind = "forbidden"
	KindConflict   ErrorKind = "conflict"
	KindBadRequest ErrorKind = "bad_request"
	KindTransient  ErrorKind = "transient"
)

// Error is a domain failure. Message is safe to show to the caller; Err,
// when set, is the underlying cause and is only logged.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, services.ErrForbidden).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound   = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden  = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrConflict   = &Error{Kind: KindConflict, Message: "conflict"}
	ErrBadRequest = &Error{Kind: KindBadRequest, Message: "bad request"}
	ErrTransient  = &Error{Kind: KindTransient, Message: "temporarily unavailable"}

	ErrInvalidCredentials = errors.New("invalid credentials")
)

func notFound(message string) error   { return &Error{Kind: KindNotFound, Message: message} }
func forbidden(message string) error  { return &Error{Kind: KindForbidden, Message: message} }
func conflict(message string) error   { return &Error{Kind: KindConflict, Message: message} }
func badRequest(message string) error { return &Error{Kind: KindBadRequest, Message: message} }

// KindOf returns the domain kind of err, or "" for internal failures.
func KindOf(err error) ErrorKind {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return ""
}

// storeError classifies a failure coming back from the store. Domain errors
// pass through untouched; retryable store failures become KindTransient;
// everything else is returned as is and treated as internal.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return err
	}
	if database.IsTransient(err) {
		return &Error{Kind: KindTransient, Message: "store temporarily unavailable, retry later", Err: err}
	}
	return err
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

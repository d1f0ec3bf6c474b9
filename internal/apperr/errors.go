// Package apperr holds the caller-facing error taxonomy shared by the
// orchestrators and the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindConfiguration
	KindGateway
	KindPersistence
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindGateway:
		return "gateway"
	case KindPersistence:
		return "persistence"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is the single error type surfaced by the core. Status is the upstream
// HTTP status for gateway errors (0 when the gateway never answered). Detail,
// when set, is the raw payload returned to the caller instead of Message.
type Error struct {
	Kind    Kind
	Code    string
	Status  int
	Message string
	Detail  any
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String() + " error"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func Configuration(msg string, err error) *Error {
	return &Error{Kind: KindConfiguration, Code: "configuration", Message: msg, Err: err}
}

func Gateway(status int, msg string, detail any, err error) *Error {
	return &Error{Kind: KindGateway, Code: "gateway", Status: status, Message: msg, Detail: detail, Err: err}
}

func Persistence(msg string, err error) *Error {
	return &Error{Kind: KindPersistence, Code: "persistence", Message: msg, Err: err}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Code: "not_found", Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Code: "conflict", Message: msg}
}

// KindOf reports the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func Is(err error, k Kind) bool { return KindOf(err) == k }

// HTTPStatus maps err onto the transport status the boundary should answer with.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindGateway:
		if e.Status >= 400 && e.Status <= 599 {
			return e.Status
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

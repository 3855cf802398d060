// Package apperr defines the error kinds shared by the ingestion, identity
// and LLM layers and their mapping onto HTTP responses.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindUpstream     Kind = "upstream"
	KindInternal     Kind = "internal"
)

// Upstream categories reported to clients as error_type.
const (
	CategoryIdentityProvider = "identity_provider_error"
	CategoryLLMAPI           = "llm_api_error"
	CategoryLLMNetwork       = "llm_network_error"
	CategoryLLMOutput        = "llm_invalid_output"
)

// Error carries a client-safe Message. Err holds the underlying cause and
// is only ever logged.
type Error struct {
	Kind     Kind
	Message  string
	Category string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg, Category: string(KindNotFound)}
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Category: string(KindValidation)}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg, Category: string(KindConflict)}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg, Category: string(KindUnauthorized)}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg, Category: string(KindForbidden)}
}

// Upstream wraps a provider failure. The message shown to clients is
// generic; the cause stays in Err.
func Upstream(category string, err error) *Error {
	msg := "upstream service is temporarily unavailable, please try again later"
	if category == CategoryLLMNetwork {
		msg = "could not reach the upstream service, please check the network and try again"
	}
	return &Error{Kind: KindUpstream, Message: msg, Category: category, Err: err}
}

// Internal hides err behind a generic message.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", Category: "internal_server_error", Err: err}
}

// As returns err as *Error, converting unknown errors to Internal.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	e := As(err)
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindUpstream:
		if e.Category == CategoryLLMNetwork {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

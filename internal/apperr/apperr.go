// Package apperr defines the stable error kinds callers can branch on.
//
// Kinds are coarse (validation, authorization, ...) and map onto transport
// status codes. Codes are finer machine-readable reasons inside a kind.
// Message text is for humans and is not a contract.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable category of a failure.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindAuthentication  Kind = "authentication"
	KindAuthorization   Kind = "authorization"
	KindTenancyRequired Kind = "tenancy_required"
	KindTenancyMismatch Kind = "tenancy_mismatch"
	KindNotFound        Kind = "not_found"
	KindStateConflict   Kind = "state_conflict"
)

// Code is a machine-readable reason within a Kind.
type Code string

const (
	CodeInvalidInput          Code = "INVALID_INPUT"
	CodeEmptyMessage          Code = "EMPTY_MESSAGE"
	CodeAttachmentNotOwned    Code = "ATTACHMENT_NOT_OWNED"
	CodeInvalidChannelType    Code = "INVALID_CHANNEL_TYPE"
	CodeBuildingChannelExists Code = "BUILDING_CHANNEL_EXISTS"
	CodeInvalidCredential     Code = "INVALID_CREDENTIAL"
	CodeForbidden             Code = "FORBIDDEN"
	CodeNotMember             Code = "NOT_MEMBER"
	CodeWriteDisabled         Code = "WRITE_DISABLED"
	CodeOwnerImmutable        Code = "OWNER_IMMUTABLE"
	CodeTenancyRequired       Code = "TENANCY_REQUIRED"
	CodeTenancyMismatch       Code = "TENANCY_MISMATCH"
	CodeNotFound              Code = "NOT_FOUND"
	CodeChannelClosed         Code = "CHANNEL_CLOSED"
	CodeMessageDeleted        Code = "MESSAGE_DELETED"
	CodeInvalidCallTransition Code = "INVALID_CALL_TRANSITION"
	CodeConflict              Code = "CONFLICT"
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches another *Error by Kind, and by Code when the target sets one.
// errors.Is(err, apperr.ErrChannelClosed) and
// errors.Is(err, &apperr.Error{Kind: apperr.KindStateConflict}) both work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

func newf(kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(code Code, format string, args ...any) *Error {
	return newf(KindValidation, code, format, args...)
}

func Authentication(format string, args ...any) *Error {
	return newf(KindAuthentication, CodeInvalidCredential, format, args...)
}

func Authorization(code Code, format string, args ...any) *Error {
	return newf(KindAuthorization, code, format, args...)
}

func TenancyRequired(format string, args ...any) *Error {
	return newf(KindTenancyRequired, CodeTenancyRequired, format, args...)
}

func TenancyMismatch(format string, args ...any) *Error {
	return newf(KindTenancyMismatch, CodeTenancyMismatch, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, CodeNotFound, format, args...)
}

func StateConflict(code Code, format string, args ...any) *Error {
	return newf(KindStateConflict, code, format, args...)
}

// ChannelClosed is the state conflict raised when writing to a closed channel.
func ChannelClosed() *Error {
	return StateConflict(CodeChannelClosed, "channel is closed")
}

// Sentinels for errors.Is checks.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrAuthentication  = &Error{Kind: KindAuthentication}
	ErrAuthorization   = &Error{Kind: KindAuthorization}
	ErrTenancyRequired = &Error{Kind: KindTenancyRequired}
	ErrTenancyMismatch = &Error{Kind: KindTenancyMismatch}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrStateConflict   = &Error{Kind: KindStateConflict}
	ErrChannelClosed   = &Error{Kind: KindStateConflict, Code: CodeChannelClosed}
)

// KindOf returns the Kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps a Kind to the status code handlers respond with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization, KindTenancyMismatch:
		return http.StatusForbidden
	case KindTenancyRequired:
		return http.StatusPreconditionRequired
	case KindNotFound:
		return http.StatusNotFound
	case KindStateConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Package apperrors defines the closed set of error codes returned by the API and
// their HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeValidation Code = "VALIDATION_ERROR"
	CodeInternal   Code = "INTERNAL_ERROR"

	// Auth
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeInvalidSignature Code = "INVALID_SIGNATURE"
	CodeNonceInvalid     Code = "NONCE_INVALID"
	CodeForbidden        Code = "FORBIDDEN"

	// Gates
	CodeGateNotFound Code = "GATE_NOT_FOUND"
	CodeGateInactive Code = "GATE_INACTIVE"
	CodeGateFull     Code = "GATE_FULL"

	// Parties
	CodePartyNotFound   Code = "PARTY_NOT_FOUND"
	CodePartyFull       Code = "PARTY_FULL"
	CodePartyNotWaiting Code = "PARTY_NOT_WAITING"
	CodePartyNotReady   Code = "PARTY_NOT_READY"
	CodePartyClosed     Code = "PARTY_CLOSED"
	CodeNotLeader       Code = "NOT_LEADER"
	CodeNotAMember      Code = "NOT_A_MEMBER"
	CodeAlreadyInParty  Code = "ALREADY_IN_PARTY"

	// Runs
	CodeRunNotFound          Code = "RUN_NOT_FOUND"
	CodeRunAlreadyFinished   Code = "RUN_ALREADY_FINISHED"
	CodeInvalidContributions Code = "INVALID_CONTRIBUTIONS"

	// Profiles & inventory
	CodeProfileNotFound Code = "PROFILE_NOT_FOUND"
	CodeProfileExists   Code = "PROFILE_EXISTS"
	CodeNameTaken       Code = "NAME_TAKEN"
	CodeRelicNotOwned   Code = "RELIC_NOT_OWNED"

	// Upstreams
	CodePayloadTooLarge Code = "PAYLOAD_TOO_LARGE"
	CodeChain           Code = "CHAIN_ERROR"
	CodeStorage         Code = "STORAGE_ERROR"
)

// HTTPStatus maps a code to the status code sent to clients.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest

	case CodeUnauthorized, CodeInvalidSignature, CodeNonceInvalid:
		return http.StatusUnauthorized

	case CodeForbidden, CodeNotLeader, CodeNotAMember, CodeRelicNotOwned:
		return http.StatusForbidden

	case CodeGateNotFound, CodePartyNotFound, CodeRunNotFound, CodeProfileNotFound:
		return http.StatusNotFound

	case CodeGateInactive, CodeGateFull,
		CodePartyFull, CodePartyNotWaiting, CodePartyNotReady, CodePartyClosed, CodeAlreadyInParty,
		CodeRunAlreadyFinished,
		CodeNameTaken, CodeProfileExists:
		return http.StatusConflict

	case CodeInvalidContributions:
		return http.StatusUnprocessableEntity

	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge

	case CodeChain, CodeStorage:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// Error is a coded error surfaced to API clients.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New returns an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// From extracts an *Error from err. Errors without a code become INTERNAL_ERROR with the
// original message attached as details.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Code: CodeInternal, Message: "internal server error", Details: err.Error(), cause: err}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}

package identity

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// Code is a closed set of provider failure codes.
type Code string

const (
	CodePopupBlocked          Code = "auth/popup-blocked"
	CodePopupClosedByUser     Code = "auth/popup-closed-by-user"
	CodeCancelledPopupRequest Code = "auth/cancelled-popup-request"
	CodeInvalidAPIKey         Code = "auth/invalid-api-key"
	CodeUnauthorizedDomain    Code = "auth/unauthorized-domain"
	CodeRequiresRecentLogin   Code = "auth/requires-recent-login"
	CodeInternal              Code = "auth/internal-error"
)

// Error is a provider failure with a code.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so callers can write
// errors.Is(err, &identity.Error{Code: identity.CodeRequiresRecentLogin}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf returns the code carried by err, or CodeInternal when err is not an
// *Error. A nil error has no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// classifyCallbackError maps the OAuth "error" callback parameter.
func classifyCallbackError(oauthErr string) *Error {
	switch oauthErr {
	case "access_denied":
		return newError(CodePopupClosedByUser, "user denied consent")
	case "unauthorized_client":
		return newError(CodeUnauthorizedDomain, "client not authorized for this redirect")
	case "invalid_client":
		return newError(CodeInvalidAPIKey, "oauth client rejected")
	default:
		return newError(CodeInternal, "oauth authorization failed: %s", oauthErr)
	}
}

// classifyExchangeError maps a token-endpoint failure.
func classifyExchangeError(err error) *Error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "invalid_client":
			return &Error{Code: CodeInvalidAPIKey, Err: err}
		case "unauthorized_client", "redirect_uri_mismatch":
			return &Error{Code: CodeUnauthorizedDomain, Err: err}
		}
	}
	return &Error{Code: CodeInternal, Err: fmt.Errorf("oauth code exchange: %w", err)}
}

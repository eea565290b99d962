package joat

import (
	"errors"
	"fmt"
)

// ErrorCode represents authority error categories.
type ErrorCode string

const (
	ErrCodeInvalidConfig     ErrorCode = "invalid_config"
	ErrCodeMissingField      ErrorCode = "missing_field"
	ErrCodeInvalidFieldType  ErrorCode = "invalid_field_type"
	ErrCodeSecretUnavailable ErrorCode = "secret_unavailable"
	ErrCodeEncodeFailed      ErrorCode = "encode_failed"
	ErrCodeMalformedToken    ErrorCode = "malformed_token"
	ErrCodeSignatureInvalid  ErrorCode = "signature_invalid"
	ErrCodeExpired           ErrorCode = "token_expired"
	ErrCodeIssuerMismatch    ErrorCode = "issuer_mismatch"
)

var errorMessages = map[ErrorCode]string{
	ErrCodeInvalidConfig:     "Invalid configuration",
	ErrCodeMissingField:      "Missing field",
	ErrCodeInvalidFieldType:  "Invalid field type",
	ErrCodeSecretUnavailable: "Secret unavailable",
	ErrCodeEncodeFailed:      "Encode failed",
	ErrCodeMalformedToken:    "Malformed token",
	ErrCodeSignatureInvalid:  "Invalid signature",
	ErrCodeExpired:           "Token expired",
	ErrCodeIssuerMismatch:    "Issuer mismatch",
}

// Sentinels for errors.Is; they match any *Error carrying the same code.
// Codec implementations report failures as *Error values with one of the
// token codes so the authority can classify them.
var (
	ErrMissingField     = &Error{Code: ErrCodeMissingField}
	ErrInvalidFieldType = &Error{Code: ErrCodeInvalidFieldType}
	ErrMalformedToken   = &Error{Code: ErrCodeMalformedToken}
	ErrSignatureInvalid = &Error{Code: ErrCodeSignatureInvalid}
	ErrExpired          = &Error{Code: ErrCodeExpired}
	ErrIssuerMismatch   = &Error{Code: ErrCodeIssuerMismatch}
)

// Error wraps authority errors with a stable code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := e.Message
	if base == "" {
		base = string(e.Code)
	}
	if e.Err == nil {
		return base
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsExpired reports whether err means a correctly signed token has expired.
func IsExpired(err error) bool {
	return CodeOf(err) == ErrCodeExpired
}

func newError(code ErrorCode, err error) error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = string(code)
	}
	return &Error{Code: code, Message: msg, Err: err}
}

package errors

import (
	"errors"
	"fmt"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Kind classifies an AppError for propagation decisions.
type Kind string

const (
	KindTransport      Kind = "transport"
	KindStoreConnect   Kind = "store_connect"
	KindStoreWrite     Kind = "store_write"
	KindStoreRead      Kind = "store_read"
	KindMalformedInput Kind = "malformed_input"
	KindInvalidInput   Kind = "invalid_input"
	KindRateLimit      Kind = "rate_limit"
)

// GenericUserMessage is shown for every internal failure; details stay in logs.
const GenericUserMessage = "⚠️ Something went wrong, please try again later."

type AppError struct {
	Code        string
	Kind        Kind
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// IsKind reports whether err wraps an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Kind == kind
	}
	return false
}

// NewMalformedInputError reports an inbound payload that could not be parsed; the user is asked to retry.
func NewMalformedInputError(msg string, cause error) *AppError {
	return &AppError{
		Code:        "E100",
		Kind:        KindMalformedInput,
		Message:     msg,
		UserMessage: "🤔 I didn't get that, please tap one of the buttons again.",
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       cause,
	}
}

// NewInvalidInputError reports a value rejected by the Store.
func NewInvalidInputError(msg string, cause error) *AppError {
	return &AppError{
		Code:        "E101",
		Kind:        KindInvalidInput,
		Message:     msg,
		UserMessage: GenericUserMessage,
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       cause,
	}
}

// NewStoreConnectError is fatal at startup.
func NewStoreConnectError(cause error) *AppError {
	return &AppError{
		Code:        "E200",
		Kind:        KindStoreConnect,
		Message:     "store connect failed",
		UserMessage: GenericUserMessage,
		Severity:    SeverityCritical,
		Retryable:   true,
		cause:       cause,
	}
}

func NewStoreWriteError(op string, cause error) *AppError {
	return &AppError{
		Code:        "E201",
		Kind:        KindStoreWrite,
		Message:     fmt.Sprintf("store write %s failed", op),
		UserMessage: GenericUserMessage,
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

func NewStoreReadError(op string, cause error) *AppError {
	return &AppError{
		Code:        "E202",
		Kind:        KindStoreRead,
		Message:     fmt.Sprintf("store read %s failed", op),
		UserMessage: GenericUserMessage,
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

// NewTransportError reports a rejected or unreachable Telegram call. It is never retried.
func NewTransportError(op string, cause error) *AppError {
	return &AppError{
		Code:        "E300",
		Kind:        KindTransport,
		Message:     fmt.Sprintf("telegram %s failed", op),
		UserMessage: GenericUserMessage,
		Severity:    SeverityMedium,
		Retryable:   false,
		cause:       cause,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        "E500",
		Kind:        KindRateLimit,
		Message:     fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("⏳ Too many requests. Try again in %d seconds.", retryAfter),
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

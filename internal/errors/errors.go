package apierrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validation error codes.
const (
	CodeInvalidFormat   = "INVALID_FORMAT"
	CodePolicyViolation = "POLICY_VIOLATION"
)

var (
	ErrBusy              = errors.New("a submission is already in flight")
	ErrInvalidTransition = errors.New("action is not allowed in the current step")
	ErrCooldownActive    = errors.New("resend is not available yet")
	ErrNotAuthenticated  = errors.New("no active session")
)

// TransportError is any failure reported by, or on the way to, the identity service.
// Status is zero when no HTTP response was received.
type TransportError struct {
	Status  int
	Message string
}

func NewTransportError(status int, message string) *TransportError {
	return &TransportError{Status: status, Message: message}
}

func (e *TransportError) Error() string {
	return e.Message
}

// ValidationError is a client-side, field-scoped failure. It never reaches the network.
type ValidationError struct {
	Code   string
	Fields map[string]string
}

func NewValidationError(code string, fields map[string]string) *ValidationError {
	return &ValidationError{Code: code, Fields: fields}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsPolicyViolation reports whether err is a password policy or confirmation failure.
func IsPolicyViolation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr) && vErr.Code == CodePolicyViolation
}

// Message returns the text to show for err in a flow-level banner.
func Message(err error) string {
	var tErr *TransportError
	if errors.As(err, &tErr) {
		return tErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

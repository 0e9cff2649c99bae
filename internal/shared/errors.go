package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	crdberrors "github.com/cockroachdb/errors"
)

// Common domain errors that can be used across the application
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates that input validation failed
	ErrValidation = errors.New("validation failed")

	// ErrForbidden indicates that the request is understood but forbidden
	ErrForbidden = errors.New("forbidden")

	// ErrConflict indicates that the request conflicts with current state
	ErrConflict = errors.New("conflict")

	// ErrRateLimited indicates that the caller exceeded its request budget
	ErrRateLimited = errors.New("rate limited")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrDependencyFailure indicates that an external dependency failed
	ErrDependencyFailure = errors.New("dependency failure")
)

// Kind represents a category of error for easier classification and handling.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindForbidden
	KindConflict
	KindRateLimited
	KindInternal
	KindTimeout
	KindDependencyFailure
	KindCanceled
)

var kindNames = map[Kind]string{
	KindNotFound:          "NotFound",
	KindValidation:        "Validation",
	KindForbidden:         "Forbidden",
	KindConflict:          "Conflict",
	KindRateLimited:       "RateLimited",
	KindInternal:          "Internal",
	KindTimeout:           "Timeout",
	KindDependencyFailure: "DependencyFailure",
	KindCanceled:          "Canceled",
}

// String returns the string representation of the Kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// kindPriorities defines the deterministic order for error classification.
var kindPriorities = []struct {
	kind Kind
	err  error
}{
	{KindNotFound, ErrNotFound},
	{KindValidation, ErrValidation},
	{KindForbidden, ErrForbidden},
	{KindConflict, ErrConflict},
	{KindRateLimited, ErrRateLimited},
	{KindDependencyFailure, ErrDependencyFailure},
	{KindInternal, ErrInternal},
}

// KindOf returns the Kind of err by walking its chain. Cancellation and
// timeouts win over every sentinel. Returns KindUnknown for unrecognized errors.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case IsCanceled(err):
		return KindCanceled
	case IsTimeout(err):
		return KindTimeout
	}
	for _, p := range kindPriorities {
		if errors.Is(err, p.err) {
			return p.kind
		}
	}
	return KindUnknown
}

// SentinelOf returns the sentinel error for kind, or nil for KindUnknown and KindCanceled.
func SentinelOf(kind Kind) error {
	if kind == KindTimeout {
		return ErrTimeout
	}
	for _, p := range kindPriorities {
		if p.kind == kind {
			return p.err
		}
	}
	return nil
}

// MarkKind wraps err with the sentinel for kind so that KindOf(err) == kind
// while errors.Is(result, err) still holds. Idempotent.
func MarkKind(err error, kind Kind) error {
	if err == nil {
		return SentinelOf(kind)
	}
	sentinel := SentinelOf(kind)
	if sentinel == nil || KindOf(err) == kind {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// IsCanceled reports whether the error indicates a canceled context.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout reports whether the error indicates a timeout.
// It checks for context.DeadlineExceeded, net.Error timeouts, and our ErrTimeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsNotFound reports whether the error indicates a resource not found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDependencyFailure reports whether the error indicates an external dependency failure.
func IsDependencyFailure(err error) bool {
	return errors.Is(err, ErrDependencyFailure)
}

var userMessages = map[Kind]string{
	KindNotFound:          "Nothing was found.",
	KindValidation:        "That request doesn't look right, check the command usage.",
	KindForbidden:         "You are not allowed to do that.",
	KindConflict:          "That already exists.",
	KindRateLimited:       "You're going too fast, slow down a little.",
	KindTimeout:           "That took too long, please try again later.",
	KindDependencyFailure: "A service I depend on is unavailable, please try again later.",
	KindCanceled:          "The request was canceled.",
}

// UserMessage returns one human-readable sentence describing err. Hints
// attached with cockroachdb/errors.WithHint take precedence over the
// generic message for the error's Kind.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if hint := crdberrors.FlattenHints(err); hint != "" {
		first, _, _ := strings.Cut(hint, "\n")
		return first
	}
	if msg, ok := userMessages[KindOf(err)]; ok {
		return msg
	}
	return "Something went wrong, please try again later."
}

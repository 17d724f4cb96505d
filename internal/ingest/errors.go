package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrorKind classifies a job failure for health-tracking purposes.
type ErrorKind string

// Error kinds, from most to least retryable.
const (
	KindNone                  ErrorKind = ""
	KindTransient             ErrorKind = "transient"
	KindRateLimited           ErrorKind = "rate_limited"
	KindParseFailure          ErrorKind = "parse_failure"
	KindGenerationFailure     ErrorKind = "generation_failure"
	KindPermanentAccessDenied ErrorKind = "access_denied"
)

// Permanent reports whether the kind should fast-path a source toward
// disabled instead of counting against the generic failure threshold.
func (k ErrorKind) Permanent() bool {
	return k == KindPermanentAccessDenied
}

// Error carries a classification alongside the underlying cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap attaches a kind to err. Returns nil when err is nil.
func Wrap(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the classification from err. Unclassified errors are
// treated as transient so that a bug in classification degrades a source
// slowly instead of disabling it.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}
	return KindTransient
}

// KindFromStatus maps an HTTP response status to an error kind.
// 2xx codes map to KindNone.
func KindFromStatus(code int) ErrorKind {
	switch {
	case code >= 200 && code < 300:
		return KindNone
	case code == http.StatusForbidden || code == http.StatusUnavailableForLegalReasons:
		return KindPermanentAccessDenied
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusNotFound || code == http.StatusGone:
		return KindParseFailure
	default:
		return KindTransient
	}
}

// StatusError builds a classified error for a non-2xx HTTP response.
func StatusError(url string, code int) error {
	kind := KindFromStatus(code)
	if kind == KindNone {
		return nil
	}
	return Errorf(kind, "fetch %s: unexpected status %d", url, code)
}

// OutcomeFor converts a job error into the outcome reported to the
// health tracker.
func OutcomeFor(err error) JobOutcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case KindOf(err).Permanent():
		return OutcomePermanentFailure
	default:
		return OutcomeTransientFailure
	}
}

// Package verrors provides the error taxonomy used across the downloader:
// remote-not-found, transient network failures, local I/O failures,
// configuration errors and checksum mismatches. The retry layer uses the
// classification to decide whether an operation is worth repeating.
package verrors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies an error for retry and reporting decisions.
type Kind string

const (
	// KindNotFound marks a remote 404. It is the dominant failure on the
	// archive host ("no file for this date") and is never retried.
	KindNotFound Kind = "not_found"

	// KindTransient marks network errors, timeouts and 5xx responses.
	KindTransient Kind = "transient"

	// KindLocalIO marks disk failures while writing a download.
	KindLocalIO Kind = "local_io"

	// KindConfiguration marks invalid requests detected before any task
	// expansion (unknown data type, unsupported market, bad date format).
	KindConfiguration Kind = "configuration"

	// KindChecksumMismatch marks a digest that disagrees with the published
	// checksum artifact. Advisory: it never fails the download itself.
	KindChecksumMismatch Kind = "checksum_mismatch"
)

// Error is an error tagged with a Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, falling back to the wrapped error.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return errors.Is(e.Err, target)
}

// New wraps err with a kind and operation name.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a classified error from a format string.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from an error chain, or "" if unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err is a remote-not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConfiguration reports whether err is a request-construction error.
func IsConfiguration(err error) bool { return KindOf(err) == KindConfiguration }

// Retryable reports whether the retry policy should attempt err again.
// NotFound, configuration and local I/O errors are terminal; transient and
// unclassified errors are retried.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindConfiguration, KindLocalIO:
		return false
	default:
		return true
	}
}

// FromHTTPStatus classifies a non-2xx HTTP response status.
func FromHTTPStatus(op string, status int) *Error {
	switch {
	case status == http.StatusNotFound:
		return Newf(KindNotFound, op, "remote file not found (404)")
	case status == http.StatusTooManyRequests || status >= 500:
		return Newf(KindTransient, op, "server returned status %d", status)
	default:
		return Newf(KindTransient, op, "unexpected status %d", status)
	}
}

// Classify tags an arbitrary transport error as transient; already
// classified errors pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return New(KindTransient, op, err)
}

// IsTimeout reports whether err is a network timeout.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

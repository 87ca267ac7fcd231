// Package errs defines the stable error taxonomy shared by the upload, job
// and analysis surfaces. Every error that crosses the service boundary carries
// one of the codes below so callers can match on behavior instead of message
// text.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies a failure class with a stable wire value.
type Code string

// Validation errors - rejected synchronously at submission.
const (
	UnsupportedOption Code = "UNSUPPORTED_OPTION"
	InvalidMode       Code = "INVALID_MODE"
)

// Resource errors - rejected synchronously by the operation that detects them.
const (
	UploadNotFound Code = "UPLOAD_NOT_FOUND"
	JobNotFound    Code = "JOB_NOT_FOUND"
	UploadInUse    Code = "UPLOAD_IN_USE"
	ResultNotReady Code = "RESULT_NOT_READY"
)

// Capacity errors - rejected during normalization, before persistence.
const (
	UploadTooLarge Code = "UPLOAD_TOO_LARGE"
	AudioTooLong   Code = "AUDIO_TOO_LONG"
)

// Processing errors - occur during asynchronous job execution and are
// recorded on the job, never raised to the submitter.
const (
	AudioDecodeFailed        Code = "AUDIO_DECODE_FAILED"
	AnalysisFailed           Code = "ANALYSIS_FAILED"
	InsufficientVoicedFrames Code = "INSUFFICIENT_VOICED_FRAMES"
)

// Error is the envelope carried across the service boundary.
type Error struct {
	Code    Code           `json:"code" msgpack:"code"`
	Message string         `json:"message" msgpack:"message"`
	Detail  map[string]any `json:"detail,omitempty" msgpack:"detail,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates an Error with no detail map.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches a key-value pair, allocating the map on first use.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

// From returns the Error envelope inside err, or wraps err as
// AnalysisFailed when it carries no code.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: AnalysisFailed, Message: err.Error()}
}

// CodeOf extracts the stable code from err, unwrapping as needed.
// Returns AnalysisFailed for errors outside the taxonomy, since those only
// arise inside module execution.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return AnalysisFailed
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

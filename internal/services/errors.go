package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"storyforge/internal/queue"
)

var (
	// ErrValidation marks bad input; never retried, surfaced immediately.
	ErrValidation = errors.New("validation error")
	// ErrTransient marks rate-limited, unavailable, or timed-out provider calls.
	ErrTransient = errors.New("transient failure")
	// ErrProviderFatal marks auth, quota, or content-policy rejections.
	ErrProviderFatal = errors.New("provider fatal error")
	// ErrComposition marks media probe or transform failures.
	ErrComposition = errors.New("composition error")
	// ErrStore marks task persistence failures.
	ErrStore = errors.New("store error")
	// ErrConfiguration marks unusable configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks missing records or artifacts.
	ErrNotFound = errors.New("not found")
	// ErrCancelled signals a cooperative cancellation checkpoint.
	ErrCancelled = errors.New("task cancelled")
	// ErrPaused signals a cooperative pause checkpoint.
	ErrPaused = errors.New("task paused")
)

// ErrorKind labels the error taxonomy for sinks and logs.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindTransient     ErrorKind = "transient"
	KindProviderFatal ErrorKind = "provider_fatal"
	KindComposition   ErrorKind = "composition"
	KindStore         ErrorKind = "store"
	KindConfiguration ErrorKind = "configuration"
	KindNotFound      ErrorKind = "not_found"
	KindCancelled     ErrorKind = "cancelled"
	KindPaused        ErrorKind = "paused"
	KindUnknown       ErrorKind = "unknown"
)

// Error carries the stage context of a failure separately from its cause, so
// user-facing surfaces can show the context without the raw provider detail
// underneath it.
type Error struct {
	marker error
	detail string
	cause  error
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &Error{marker: marker, detail: buildDetail(stage, operation, message), cause: err}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%v: %s: %v", e.marker, e.detail, e.cause)
	}
	return fmt.Sprintf("%v: %s", e.marker, e.detail)
}

func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.marker, e.cause}
	}
	return []error{e.marker}
}

// Summary returns only the stage context, without the cause.
func (e *Error) Summary() string { return e.detail }

// Summarizer is implemented by errors that can describe themselves without
// exposing their underlying cause. Raw provider responses and request URLs
// stay out of anything a Summarizer reports.
type Summarizer interface {
	Summary() string
}

// Summary flattens the context details of an error chain into a single
// user-presentable message, dropping the raw causes. Errors that carry no
// summarizable context at all yield an empty string; callers should fall back
// to a generic message rather than the raw chain.
func Summary(err error) string {
	parts := make([]string, 0, 4)
	for err != nil {
		var wrapped *Error
		if errors.As(err, &wrapped) {
			parts = append(parts, wrapped.detail)
			err = wrapped.cause
			continue
		}
		var s Summarizer
		if errors.As(err, &s) {
			if detail := strings.TrimSpace(s.Summary()); detail != "" {
				parts = append(parts, detail)
			}
		}
		break
	}
	return strings.Join(parts, ": ")
}

// Classify maps an error to its taxonomy kind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrPaused):
		return KindPaused
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrProviderFatal):
		return KindProviderFatal
	case errors.Is(err, ErrComposition):
		return KindComposition
	case errors.Is(err, ErrStore):
		return KindStore
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindUnknown
	}
}

// FailureStatus maps a stage error to the queue status the workflow manager
// should persist after the stage aborts.
func FailureStatus(err error) queue.Status {
	switch {
	case errors.Is(err, ErrCancelled):
		return queue.StatusCancelled
	case errors.Is(err, ErrPaused):
		return queue.StatusPaused
	default:
		return queue.StatusFailed
	}
}

// RateLimited wraps err as transient while carrying the provider-supplied
// retry-after delay for the retry policy to honor.
type RateLimited struct {
	Delay time.Duration
	Err   error
}

func (e *RateLimited) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("rate limited, retry after %s", e.Delay)
}

func (e *RateLimited) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrTransient
}

// RetryAfter reports the provider-requested delay.
func (e *RateLimited) RetryAfter() time.Duration { return e.Delay }

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

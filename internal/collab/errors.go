package collab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrUpstream marks every failure of a remote collaborator
var ErrUpstream = errors.New("upstream failure")

// UpstreamError is a failed collaborator call. StatusCode is 0 when no
// response was received.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 && e.Err != nil {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Is lets errors.Is(err, ErrUpstream) match
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the call may succeed: rate limits,
// server errors and transport failures.
func (e *UpstreamError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	case e.StatusCode != 0:
		return false
	}
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	return e.Err != nil
}

// IsRetryable reports whether err is an UpstreamError worth retrying
func IsRetryable(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Retryable()
}

package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable marks a source that contributed nothing this cycle.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedRecord marks a single descriptor or row that was skipped.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrTransport marks a failure after some pages were already collected.
	ErrTransport = errors.New("transport error")
)

type StatusError struct {
	Source string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Source, e.Status)
	}
	return fmt.Sprintf("%s: unexpected status %d body=%s", e.Source, e.Status, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

func (e *StatusError) Retryable() bool {
	switch e.Status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

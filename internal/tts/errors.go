package tts

import (
	"fmt"
	"time"
)

// ErrorKind classifies a synthesis failure.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindStatus    ErrorKind = "status"
	KindTransport ErrorKind = "transport"
)

// SynthesisError is the single failure signal raised for one backend attempt.
type SynthesisError struct {
	Endpoint   string
	Kind       ErrorKind
	StatusCode int
	Elapsed    time.Duration
	Err        error
}

func (e *SynthesisError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("tts %s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("tts %s: %s after %s: %v", e.Endpoint, e.Kind, e.Elapsed, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// StatusError is returned by HTTPBackend on a non-success response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

package core

import (
	"errors"
	"fmt"

	"github.com/dkeye/Classroom/internal/domain"
)

var (
	// ErrValidation is returned before any network call when room or name is missing.
	ErrValidation = errors.New("room and name are required")
	// ErrMalformedPayload marks data-channel content that is not a chat envelope.
	// It is handled by falling back to raw text and never leaves the router.
	ErrMalformedPayload = errors.New("malformed payload")
	ErrNotConnected     = errors.New("not connected")
	ErrSuperseded       = errors.New("session superseded")
	ErrBusy             = errors.New("request already in flight")

	// Media failure reasons a transport wraps into its errors.
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnsupported      = errors.New("unsupported")
)

// AuthRejectedError is an explicit non-2xx answer of the join endpoint.
type AuthRejectedError struct {
	Status  int
	Message string
}

func (e *AuthRejectedError) Error() string {
	return e.Message
}

// TransportError wraps a network or connect failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type MediaErrorCategory string

const (
	MediaPermissionDenied MediaErrorCategory = "permission denied"
	MediaUnsupported      MediaErrorCategory = "unsupported"
	MediaOther            MediaErrorCategory = "other"
)

// MediaError is a camera, microphone or screen failure. The session stays connected.
type MediaError struct {
	Source   domain.Source
	Category MediaErrorCategory
	Err      error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Category, e.Err)
}

func (e *MediaError) Unwrap() error { return e.Err }

// NewMediaError classifies err by the sentinel it wraps.
func NewMediaError(src domain.Source, err error) *MediaError {
	cat := MediaOther
	switch {
	case errors.Is(err, ErrPermissionDenied):
		cat = MediaPermissionDenied
	case errors.Is(err, ErrUnsupported):
		cat = MediaUnsupported
	}
	return &MediaError{Source: src, Category: cat, Err: err}
}

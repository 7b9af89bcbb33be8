// Package fault defines the pipeline's error taxonomy. Validation
// failures carry BadRequest and are raised before any external work;
// stage failures are wrapped with the stage name and media id so logs
// can place them; cleanup failures are DeletionFailed and are logged,
// never surfaced as the operation's failure.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure for callers.
type Kind string

const (
	BadRequest       Kind = "bad_request"
	DownloadFailed   Kind = "download_failed"
	ProcessingFailed Kind = "processing_failed"
	DeletionFailed   Kind = "deletion_failed"
	Unauthorized     Kind = "unauthorized"
	NotFound         Kind = "not_found"
	Unknown          Kind = "unknown"
)

// Error is a stage-aware pipeline error.
type Error struct {
	Kind    Kind
	Stage   string
	MediaID string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Stage == "" {
		return msg
	}
	if e.MediaID == "" {
		return fmt.Sprintf("%s: %s", e.Stage, msg)
	}
	return fmt.Sprintf("%s [media %s]: %s", e.Stage, e.MediaID, msg)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a fault with a message and no underlying error.
func New(kind Kind, stage, message string) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message}
}

// Wrap attaches kind and stage context to err.
func Wrap(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// WithMedia returns a copy carrying the media id.
func (e *Error) WithMedia(id string) *Error {
	if e == nil {
		return nil
	}
	clone := *e
	clone.MediaID = id
	return &clone
}

// KindOf extracts the Kind from err, or Unknown for foreign errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// IsBadRequest reports whether err is a caller error.
func IsBadRequest(err error) bool {
	return KindOf(err) == BadRequest
}

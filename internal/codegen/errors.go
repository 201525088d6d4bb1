package codegen

import (
	"errors"
	"fmt"
)

var (
	// ErrTurnInFlight rejects a second generation for an app while one is
	// active. Turns for one app are serialized; concurrent turns would
	// corrupt the conversation key and the deploy directory.
	ErrTurnInFlight = errors.New("codegen: a generation for this app is already in flight")
	// ErrEmptyMessage rejects blank user input before any model call.
	ErrEmptyMessage = errors.New("codegen: user message is empty")
)

// GenerationError wraps a model failure or stream abort. Partial carries
// whatever output arrived before the failure; it is never silently dropped.
// Retryable by re-issuing the whole turn.
type GenerationError struct {
	AppID   int64
	Type    GenerationType
	Partial string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("codegen: generation failed (app=%d type=%s): %v", e.AppID, e.Type, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

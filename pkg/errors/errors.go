package errors

import (
	"errors"
	"fmt"

	"github.com/jscyril/soundbridge/api"
)

// Sentinel errors for common conditions
var (
	ErrResourceNotFound   = errors.New("resource not found")
	ErrPreparationFailed  = errors.New("preparation failed")
	ErrPlaybackFailed     = errors.New("playback failed")
	ErrUnknownHandle      = errors.New("unknown handle")
	ErrNotPrepared        = errors.New("session is not prepared")
	ErrAlreadyPlaying     = errors.New("session is already playing")
	ErrInvalidFormat      = errors.New("unsupported audio format")
	ErrBackendUnavailable = errors.New("audio backend unavailable")
	ErrReleased           = errors.New("player released")
)

// CodeResourceNotFound is the code handed to callers when prepare cannot find its source
const CodeResourceNotFound = -1

// PlayerError wraps errors with the operation and session that produced them
type PlayerError struct {
	Op     string     // Operation that failed
	Handle api.Handle // Session handle
	Err    error      // Underlying error
}

func (e *PlayerError) Error() string {
	return fmt.Sprintf("%s failed for handle %d: %v", e.Op, e.Handle, e.Err)
}

func (e *PlayerError) Unwrap() error {
	return e.Err
}

// NewPlayerError creates a new PlayerError
func NewPlayerError(op string, handle api.Handle, err error) *PlayerError {
	return &PlayerError{Op: op, Handle: handle, Err: err}
}

// BridgeError is the structured error passed to bridge callbacks
type BridgeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// ToBridgeError maps an internal error to the shape bridge callers receive
func ToBridgeError(err error) *BridgeError {
	if err == nil {
		return nil
	}
	var be *BridgeError
	if errors.As(err, &be) {
		return be
	}
	if errors.Is(err, ErrResourceNotFound) {
		return &BridgeError{Code: CodeResourceNotFound, Message: ErrResourceNotFound.Error()}
	}
	return &BridgeError{Code: -2, Message: err.Error()}
}

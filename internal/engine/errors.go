package engine

import (
	"errors"
	"fmt"
)

// Well-known recognition error codes, mirroring the codes continuous
// recognition engines report.
const (
	CodeAborted      = "aborted"
	CodeNoSpeech     = "no-speech"
	CodeAudioCapture = "audio-capture"
	CodeNetwork      = "network"
)

// Tier classifies how the session reacts to a recognition error.
type Tier int

const (
	// TierIgnorable errors cause no state change and no user-visible
	// effect (aborted, no-speech).
	TierIgnorable Tier = iota
	// TierRecoverable errors force-stop the engine; the end-event path
	// restarts it (audio-capture, network).
	TierRecoverable
	// TierFatal errors are surfaced to the user as text. State and the
	// listening intent are left unchanged.
	TierFatal
)

// String returns the string representation of the tier.
func (t Tier) String() string {
	switch t {
	case TierIgnorable:
		return "ignorable"
	case TierRecoverable:
		return "recoverable"
	case TierFatal:
		return "fatal"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(t))
	}
}

// Error is a recognition error with a provider-agnostic code.
type Error struct {
	Code string
	Err  error
}

// NewError creates a recognition error with the given code.
func NewError(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("recognition error %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("recognition error %s", e.Code)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Classify maps a recognition error to its tier and code. Errors that
// carry no known code are fatal, with the raw error text as the code.
func Classify(err error) (Tier, string) {
	var re *Error
	if !errors.As(err, &re) {
		return TierFatal, err.Error()
	}

	switch re.Code {
	case CodeAborted, CodeNoSpeech:
		return TierIgnorable, re.Code
	case CodeAudioCapture, CodeNetwork:
		return TierRecoverable, re.Code
	default:
		return TierFatal, re.Code
	}
}

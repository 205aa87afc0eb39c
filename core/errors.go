// Package core carries the controller's cross-cutting error handling:
// typed error kinds and the fixed-capacity ring of most-recent error
// codes the REST layer reads back.
package core

import (
	"encoding/json"
	"errors"
)

// Kind is one of the error categories the controller distinguishes.
// Kind alone decides propagation policy; message text is for
// logs/telemetry only.
type Kind int

const (
	KindInputValidation Kind = iota
	KindTransientSensor
	KindUnsettled
	KindMotorCommandFailure
	KindFlashIO
	KindChecksumMismatch
	KindBootCountExceeded
)

func (k Kind) String() string {
	switch k {
	case KindInputValidation:
		return "INPUT_VALIDATION"
	case KindTransientSensor:
		return "TRANSIENT_SENSOR"
	case KindUnsettled:
		return "UNSETTLED"
	case KindMotorCommandFailure:
		return "MOTOR_COMMAND_FAILURE"
	case KindFlashIO:
		return "FLASH_IO"
	case KindChecksumMismatch:
		return "CHECKSUM_MISMATCH"
	case KindBootCountExceeded:
		return "BOOT_COUNT_EXCEEDED"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON renders Kind by name, so the REST error-log endpoint reads
// "INPUT_VALIDATION" rather than a bare integer.
func (k Kind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

// UnmarshalJSON is MarshalJSON's inverse, for clients round-tripping the
// error-log response.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, candidate := range []Kind{
		KindInputValidation, KindTransientSensor, KindUnsettled,
		KindMotorCommandFailure, KindFlashIO, KindChecksumMismatch, KindBootCountExceeded,
	} {
		if candidate.String() == s {
			*k = candidate
			return nil
		}
	}
	return errors.New("core: unknown Kind " + s)
}

// Error is the explicit-status return type used throughout the
// controller: every fallible operation returns one of these instead of
// panicking outward.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Msg }

// New wraps a message under a Kind.
func New(k Kind, msg string) *Error { return &Error{Kind: k, Msg: msg} }

// Wrap attaches a Kind to an existing error.
func Wrap(k Kind, prefix string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Msg: prefix + ": " + err.Error()}
}

// AsCoreError unwraps err to a *Error, if it is one.
func AsCoreError(err error) (*Error, bool) {
	var ce *Error
	ok := errors.As(err, &ce)
	return ce, ok
}

// logCapacity bounds the structured error log to the most-recent N
// codes; the REST layer reads them back oldest-first.
const logCapacity = 16

// Log is a fixed-capacity ring of recent errors. It is not safe for
// concurrent use by itself; callers serialize access the same way
// motorqueue.go serializes the motor command queue.
type Log struct {
	entries [logCapacity]Entry
	next    int
	count   int
}

// Entry is one ring slot: the Kind, message, and the tick it was
// recorded at (caller-supplied, since core has no clock of its own).
type Entry struct {
	Kind Kind
	Msg  string
	Tick int64
}

func NewLog() *Log { return &Log{} }

func (l *Log) Record(k Kind, msg string, tick int64) {
	l.entries[l.next] = Entry{Kind: k, Msg: msg, Tick: tick}
	l.next = (l.next + 1) % logCapacity
	if l.count < logCapacity {
		l.count++
	}
}

// Recent returns the log's entries oldest-first, most-recent last.
func (l *Log) Recent() []Entry {
	out := make([]Entry, l.count)
	start := (l.next - l.count + logCapacity) % logCapacity
	for i := 0; i < l.count; i++ {
		out[i] = l.entries[(start+i)%logCapacity]
	}
	return out
}

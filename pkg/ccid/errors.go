package ccid

import (
	"fmt"

	"github.com/pkg/errors"
)

// Transport errors. Every failure of Send or Receive matches one of these
// with errors.Is; the typed errors below carry the offending values.
var (
	ErrIO               = errors.New("ccid: i/o error")
	ErrTruncated        = errors.New("ccid: truncated message")
	ErrLengthMismatch   = errors.New("ccid: dwLength exceeds received bytes")
	ErrSlotMismatch     = errors.New("ccid: reply for unexpected slot")
	ErrSequenceMismatch = errors.New("ccid: reply with unexpected sequence number")
	ErrTimeExtension    = errors.New("ccid: time extension retries exhausted")
	ErrCommandFailed    = errors.New("ccid: command failed")
	ErrBadSlot          = errors.New("ccid: slot index out of range")
	ErrBadVoltage       = errors.New("ccid: invalid voltage selector")
	ErrUnexpectedType   = errors.New("ccid: unexpected message type")
	ErrUnsupported      = errors.New("ccid: operation not supported on this slot")
	ErrBadDescriptor    = errors.New("ccid: invalid class descriptor")
)

// SlotError reports a reply addressed to another slot.
type SlotError struct {
	Expected byte
	Got      byte
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("ccid: bad slot %d (expected %d)", e.Got, e.Expected)
}

func (e *SlotError) Is(target error) bool { return target == ErrSlotMismatch }

// SequenceError reports a reply whose bSeq does not answer the last send.
// Expected is the sequence number of the last command sent.
type SequenceError struct {
	Expected byte
	Got      byte
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("ccid: expected seq 0x%02x got 0x%02x", e.Expected, e.Got)
}

func (e *SequenceError) Is(target error) bool { return target == ErrSequenceMismatch }

// CommandError is returned when the reader reports bmCommandStatus=failed.
type CommandError struct {
	Type   MessageType
	Code   ErrorCode
	Status SlotStatus
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("ccid: %s: %s (0x%02x)", e.Type, e.Code, byte(e.Code))
}

func (e *CommandError) Is(target error) bool { return target == ErrCommandFailed }

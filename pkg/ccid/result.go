package ccid

import (
	"fmt"

	"github.com/pkg/errors"
)

// SlotStatus is the cached presence state of a slot (bmICCStatus).
//
// Transitions are only observed, never forced: every RDR_to_PC message
// and every NotifySlotChange interrupt overwrites the cached value.
//
//	NotPresent -> Present  (card inserted, or powered off)
//	Present    -> Active   (IccPowerOn succeeded, clock running)
//	any        -> NotPresent (card removed)
type SlotStatus byte

const (
	SlotActive     SlotStatus = 0
	SlotPresent    SlotStatus = 1
	SlotNotPresent SlotStatus = 2
)

func (s SlotStatus) String() string {
	switch s {
	case SlotActive:
		return "present and active"
	case SlotPresent:
		return "present and inactive"
	case SlotNotPresent:
		return "not present"
	default:
		return "RFU"
	}
}

// CardPresent reports whether a card sits in the slot, powered or not.
func (s SlotStatus) CardPresent() bool {
	return s == SlotActive || s == SlotPresent
}

// ClockStatus is the bClockStatus byte of RDR_to_PC_SlotStatus.
type ClockStatus byte

const (
	ClockRunning      ClockStatus = 0
	ClockStoppedLow   ClockStatus = 1
	ClockStoppedHigh  ClockStatus = 2
	ClockStoppedOther ClockStatus = 3
)

func (c ClockStatus) String() string {
	switch c {
	case ClockRunning:
		return "clock running"
	case ClockStoppedLow:
		return "clock stopped in L state"
	case ClockStoppedHigh:
		return "clock stopped in H state"
	case ClockStoppedOther:
		return "clock stopped in unknown state"
	default:
		return fmt.Sprintf("ClockStatus(0x%02X)", byte(c))
	}
}

// Result is the outcome class of a reader reply.
type Result int

const (
	ResultSuccess Result = iota
	ResultError
	ResultTimeExtension
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultError:
		return "error"
	case ResultTimeExtension:
		return "time extension requested"
	default:
		return "unknown"
	}
}

// ErrorCode is the bError byte of a failed command.
type ErrorCode byte

// Slot error register values (CCID 1.1, table 6.2-2).
const (
	ErrCmdNotSupported   ErrorCode = 0x00
	ErrICCAborted        ErrorCode = 0xFF
	ErrICCMute           ErrorCode = 0xFE
	ErrXfrParity         ErrorCode = 0xFD
	ErrXfrOverrun        ErrorCode = 0xFC
	ErrHardware          ErrorCode = 0xFB
	ErrBadATRTS          ErrorCode = 0xF8
	ErrBadATRTCK         ErrorCode = 0xF7
	ErrProtocolNotSupp   ErrorCode = 0xF6
	ErrClassNotSupp      ErrorCode = 0xF5
	ErrProcedureConflict ErrorCode = 0xF4
	ErrDeactivatedProto  ErrorCode = 0xF3
	ErrBusyAutoSequence  ErrorCode = 0xF2
	ErrPINTimeout        ErrorCode = 0xF0
	ErrPINCancelled      ErrorCode = 0xEF
	ErrCmdSlotBusy       ErrorCode = 0xE0
	ErrUserDefinedFirst  ErrorCode = 0x81
	ErrUserDefinedLast   ErrorCode = 0xC0
)

var errorReasons = map[ErrorCode]string{
	ErrCmdNotSupported:   "command not supported",
	ErrICCAborted:        "ICC aborted",
	ErrICCMute:           "ICC mute (timed out)",
	ErrXfrParity:         "ICC parity error",
	ErrXfrOverrun:        "ICC buffer overrun",
	ErrHardware:          "hardware error",
	ErrBadATRTS:          "bad ATR TS",
	ErrBadATRTCK:         "bad ATR TCK",
	ErrProtocolNotSupp:   "unsupported protocol",
	ErrClassNotSupp:      "unsupported class",
	ErrProcedureConflict: "procedure byte conflict",
	ErrDeactivatedProto:  "deactivated protocol",
	ErrBusyAutoSequence:  "busy with auto-sequencing",
	ErrPINTimeout:        "PIN timeout",
	ErrPINCancelled:      "PIN cancelled",
	ErrCmdSlotBusy:       "slot busy",
}

// IsUserDefined reports whether the code lies in the vendor range.
func (c ErrorCode) IsUserDefined() bool {
	return c >= ErrUserDefinedFirst && c <= ErrUserDefinedLast
}

func (c ErrorCode) String() string {
	if reason, ok := errorReasons[c]; ok {
		return reason
	}
	if c.IsUserDefined() {
		return fmt.Sprintf("vendor error 0x%02x", byte(c))
	}
	if c >= 0x01 && c <= 0x7F {
		return fmt.Sprintf("bad parameter at offset %d", byte(c))
	}
	return fmt.Sprintf("reserved error 0x%02x", byte(c))
}

// CommandResult maps the status byte of a reply to its outcome. The
// error code is only meaningful for ResultError.
func CommandResult(p ReceiveParams) (Result, ErrorCode) {
	switch p.CommandStatus() {
	case CommandProcessed:
		return ResultSuccess, 0
	case CommandTimeExtension:
		return ResultTimeExtension, 0
	default:
		// bmCommandStatus=3 is RFU; treat it as a failure with the reported byte.
		return ResultError, ErrorCode(p.Error)
	}
}

// ParseSlotStatus interprets an RDR_to_PC_SlotStatus reply.
func ParseSlotStatus(h Header) (ClockStatus, error) {
	if h.Type != RDRtoPCSlotStatus {
		return 0, errors.Wrapf(ErrUnexpectedType, "want %s got %s", RDRtoPCSlotStatus, h.Type)
	}
	clock := ClockStatus(h.Receive().App)
	if clock > ClockStoppedOther {
		return clock, errors.Errorf("ccid: invalid clock status 0x%02x", byte(clock))
	}
	return clock, nil
}

// ParseDataBlock interprets an RDR_to_PC_DataBlock reply and returns
// its bChainParameter.
func ParseDataBlock(h Header) (byte, error) {
	if h.Type != RDRtoPCDataBlock {
		return 0, errors.Wrapf(ErrUnexpectedType, "want %s got %s", RDRtoPCDataBlock, h.Type)
	}
	return h.Receive().App, nil
}

package iso7816

import (
	"fmt"

	"github.com/pkg/errors"
)

// APDU encoding according to ISO/IEC 7816-3 and 7816-4.
//
// A command APDU is a 4 byte header (CLA INS P1 P2) optionally followed by
// Lc + data and/or Le. The four encoding cases are:
//   - Case 1: header only.
//   - Case 2: header + Le.
//   - Case 3: header + Lc + data.
//   - Case 4: header + Lc + data + Le.
//
// Lc/Le use one byte (short form) unless Nc > 255 or Ne > 256, in which case
// the extended form is used for both fields.
//
// A response APDU is an optional body followed by the SW1-SW2 trailer.

// APDU limits according to ISO 7816-3.
const (
	// MaxShortLc is the largest Nc encodable on one byte.
	MaxShortLc = 255

	// MaxShortLe is the largest Ne encodable on one byte ('00' encodes 256).
	MaxShortLe = 256

	// MaxExtendedLc is the largest Nc encodable in extended form.
	MaxExtendedLc = 65535

	// MaxExtendedLe is the largest Ne encodable in extended form ('0000' encodes 65536).
	MaxExtendedLe = 65536

	// MaxAPDUBufferSize bounds an extended command: header, extended Lc,
	// data, extended Le and one spare byte.
	MaxAPDUBufferSize = 4 + 3 + MaxExtendedLc + 2 + 1
)

// ErrBadAPDU reports a command that cannot be encoded or a response
// shorter than its status word.
var ErrBadAPDU = errors.New("iso7816: malformed APDU")

// CommandAPDU represents a command sent to the card.
type CommandAPDU struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Ne          int // Expected response length (0 means none)
}

// NewCommandAPDU creates a basic command.
func NewCommandAPDU(cla Class, ins Instruction, p1, p2 byte, data []byte, ne int) *CommandAPDU {
	return &CommandAPDU{
		Class:       cla,
		Instruction: ins,
		P1:          p1,
		P2:          p2,
		Data:        data,
		Ne:          ne,
	}
}

// Bytes encodes the command, choosing short or extended length fields from
// Nc and Ne.
func (c *CommandAPDU) Bytes() ([]byte, error) {
	nc, ne := len(c.Data), c.Ne
	if nc > MaxExtendedLc {
		return nil, errors.Wrapf(ErrBadAPDU, "%d bytes of command data", nc)
	}
	if ne < 0 || ne > MaxExtendedLe {
		return nil, errors.Wrapf(ErrBadAPDU, "Ne %d", ne)
	}

	class, err := c.Class.Encode()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 4+3+nc+3)
	out = append(out, class, byte(c.Instruction.Raw), c.P1, c.P2)

	extended := nc > MaxShortLc || ne > MaxShortLe

	if nc > 0 {
		if extended {
			out = append(out, 0x00, byte(nc>>8), byte(nc))
		} else {
			out = append(out, byte(nc))
		}
		out = append(out, c.Data...)
	}

	if ne > 0 {
		switch {
		case !extended:
			// 256 wraps to '00'
			out = append(out, byte(ne))
		case nc == 0:
			// Extended case 2 needs the leading '00' Lc would otherwise carry.
			out = append(out, 0x00, byte(ne>>8), byte(ne))
		default:
			out = append(out, byte(ne>>8), byte(ne))
		}
	}

	return out, nil
}

// String returns a readable representation of the command meta-data.
func (c *CommandAPDU) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Ne)
}

// ResponseAPDU represents the reply from the card (R-APDU).
type ResponseAPDU struct {
	Data   []byte
	Status StatusWord
}

// ParseResponseAPDU splits raw card output into body and status word.
// The input must contain at least SW1 and SW2.
func ParseResponseAPDU(raw []byte) (*ResponseAPDU, error) {
	if len(raw) < 2 {
		return nil, errors.Wrapf(ErrBadAPDU, "%d byte response", len(raw))
	}

	n := len(raw) - 2
	return &ResponseAPDU{
		Data:   raw[:n],
		Status: NewStatusWord(raw[n], raw[n+1]),
	}, nil
}

// String returns a readable representation of the response.
func (r *ResponseAPDU) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}

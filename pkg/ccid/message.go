package ccid

import (
	"encoding/binary"
	"fmt"

	"github.com/gregLibert/ccid-emv/pkg/bits"
	"github.com/pkg/errors"
)

// CCID MESSAGE FRAMING (USB CCID 1.1, section 6):
// Every bulk message starts with a fixed 10 byte header followed by
// dwLength payload bytes.
//
//	Offset  Size  Field
//	0       1     bMessageType
//	1       4     dwLength (little endian, payload only)
//	5       1     bSlot
//	6       1     bSeq
//	7       3     message specific
//
// The last three bytes mean different things depending on direction:
//   - PC_to_RDR: command parameters (voltage selector, protocol number,
//     BWI and level parameter, ...). Modelled by TransmitParams.
//   - RDR_to_PC: bStatus, bError and one message specific byte (clock
//     status, chaining parameter, protocol number). Modelled by
//     ReceiveParams.
//
// Interrupt-IN messages are shorter and not framed by this header.

// HeaderLen is the size of the CCID bulk message header.
const HeaderLen = 10

// MessageType identifies a CCID message (bMessageType).
type MessageType byte

// Bulk-OUT (PC to reader) message types.
const (
	PCtoRDRSetParameters   MessageType = 0x61
	PCtoRDRIccPowerOn      MessageType = 0x62
	PCtoRDRIccPowerOff     MessageType = 0x63
	PCtoRDRGetSlotStatus   MessageType = 0x65
	PCtoRDRSecure          MessageType = 0x69
	PCtoRDRT0APDU          MessageType = 0x6A
	PCtoRDREscape          MessageType = 0x6B
	PCtoRDRGetParameters   MessageType = 0x6C
	PCtoRDRResetParameters MessageType = 0x6D
	PCtoRDRIccClock        MessageType = 0x6E
	PCtoRDRXfrBlock        MessageType = 0x6F
	PCtoRDRMechanical      MessageType = 0x71
	PCtoRDRAbort           MessageType = 0x72
	PCtoRDRSetBaudAndFreq  MessageType = 0x73
)

// Bulk-IN (reader to PC) message types.
const (
	RDRtoPCDataBlock   MessageType = 0x80
	RDRtoPCSlotStatus  MessageType = 0x81
	RDRtoPCParameters  MessageType = 0x82
	RDRtoPCEscape      MessageType = 0x83
	RDRtoPCBaudAndFreq MessageType = 0x84
)

// Interrupt-IN message types.
const (
	RDRtoPCNotifySlotChange MessageType = 0x50
	RDRtoPCHardwareError    MessageType = 0x51
)

var messageNames = map[MessageType]string{
	PCtoRDRSetParameters:    "PC_to_RDR_SetParameters",
	PCtoRDRIccPowerOn:       "PC_to_RDR_IccPowerOn",
	PCtoRDRIccPowerOff:      "PC_to_RDR_IccPowerOff",
	PCtoRDRGetSlotStatus:    "PC_to_RDR_GetSlotStatus",
	PCtoRDRSecure:           "PC_to_RDR_Secure",
	PCtoRDRT0APDU:           "PC_to_RDR_T0APDU",
	PCtoRDREscape:           "PC_to_RDR_Escape",
	PCtoRDRGetParameters:    "PC_to_RDR_GetParameters",
	PCtoRDRResetParameters:  "PC_to_RDR_ResetParameters",
	PCtoRDRIccClock:         "PC_to_RDR_IccClock",
	PCtoRDRXfrBlock:         "PC_to_RDR_XfrBlock",
	PCtoRDRMechanical:       "PC_to_RDR_Mechanical",
	PCtoRDRAbort:            "PC_to_RDR_Abort",
	PCtoRDRSetBaudAndFreq:   "PC_to_RDR_SetDataRateAndClockFrequency",
	RDRtoPCDataBlock:        "RDR_to_PC_DataBlock",
	RDRtoPCSlotStatus:       "RDR_to_PC_SlotStatus",
	RDRtoPCParameters:       "RDR_to_PC_Parameters",
	RDRtoPCEscape:           "RDR_to_PC_Escape",
	RDRtoPCBaudAndFreq:      "RDR_to_PC_DataRateAndClockFrequency",
	RDRtoPCNotifySlotChange: "RDR_to_PC_NotifySlotChange",
	RDRtoPCHardwareError:    "RDR_to_PC_HardwareError",
}

func (t MessageType) String() string {
	if name, ok := messageNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(0x%02X)", byte(t))
}

// TransmitParams is the message specific trailer of a PC_to_RDR header.
type TransmitParams [3]byte

// ReceiveParams is the message specific trailer of a RDR_to_PC header.
type ReceiveParams struct {
	Status byte // bStatus
	Error  byte // bError
	App    byte // clock status, chaining parameter or protocol number
}

// CommandStatus is bmCommandStatus, bits 8-7 of bStatus.
type CommandStatus byte

const (
	CommandProcessed     CommandStatus = 0
	CommandFailed        CommandStatus = 1
	CommandTimeExtension CommandStatus = 2
)

func (c CommandStatus) String() string {
	switch c {
	case CommandProcessed:
		return "processed"
	case CommandFailed:
		return "failed"
	case CommandTimeExtension:
		return "time extension"
	default:
		return "RFU"
	}
}

// CommandStatus extracts bmCommandStatus.
func (p ReceiveParams) CommandStatus() CommandStatus {
	return CommandStatus(bits.GetRange(p.Status, 8, 7))
}

// ICCStatus extracts bmICCStatus, bits 2-1 of bStatus.
func (p ReceiveParams) ICCStatus() SlotStatus {
	return SlotStatus(bits.GetRange(p.Status, 2, 1))
}

// Header is a decoded CCID bulk message header.
type Header struct {
	Type   MessageType
	Length uint32
	Slot   byte
	Seq    byte
	Params [3]byte
}

// Receive returns the reader-to-host view of the trailing bytes.
func (h Header) Receive() ReceiveParams {
	return ReceiveParams{Status: h.Params[0], Error: h.Params[1], App: h.Params[2]}
}

// Transmit returns the host-to-reader view of the trailing bytes.
func (h Header) Transmit() TransmitParams {
	return TransmitParams(h.Params)
}

// AppendTo encodes the header at the end of dst.
func (h Header) AppendTo(dst []byte) []byte {
	dst = append(dst, byte(h.Type))
	dst = binary.LittleEndian.AppendUint32(dst, h.Length)
	dst = append(dst, h.Slot, h.Seq)
	return append(dst, h.Params[:]...)
}

// ParseHeader decodes the first HeaderLen bytes of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, errors.Wrapf(ErrTruncated, "%d byte message", len(b))
	}
	h := Header{
		Type:   MessageType(b[0]),
		Length: binary.LittleEndian.Uint32(b[1:5]),
		Slot:   b[5],
		Seq:    b[6],
	}
	copy(h.Params[:], b[7:HeaderLen])
	return h, nil
}

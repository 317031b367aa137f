package ccid

import (
	"github.com/gregLibert/ccid-emv/pkg/xfr"
	"github.com/pkg/errors"
)

// COMMAND BUILDERS:
// Each builder fills the message specific header bytes and calls Send.
// They only report whether the command went out; the caller reads the
// reply with Receive and interprets it with the matching parser
// (ParseSlotStatus, ParseDataBlock, ParseParameters).

// Voltage is the bPowerSelect byte of PC_to_RDR_IccPowerOn.
type Voltage byte

const (
	VoltageAuto Voltage = 0
	Voltage5V   Voltage = 1
	Voltage3V   Voltage = 2
	Voltage1V8  Voltage = 3
)

func (v Voltage) String() string {
	switch v {
	case VoltageAuto:
		return "auto"
	case Voltage5V:
		return "5.0V"
	case Voltage3V:
		return "3.0V"
	case Voltage1V8:
		return "1.8V"
	default:
		return "invalid"
	}
}

// PowerOn sends PC_to_RDR_IccPowerOn.
func (d *Device) PowerOn(slot byte, v Voltage) error {
	if v > Voltage1V8 {
		return errors.Wrapf(ErrBadVoltage, "bPowerSelect %d", byte(v))
	}
	return d.Send(slot, PCtoRDRIccPowerOn, TransmitParams{byte(v)}, nil)
}

// PowerOff sends PC_to_RDR_IccPowerOff.
func (d *Device) PowerOff(slot byte) error {
	return d.Send(slot, PCtoRDRIccPowerOff, TransmitParams{}, nil)
}

// GetSlotStatus sends PC_to_RDR_GetSlotStatus.
func (d *Device) GetSlotStatus(slot byte) error {
	return d.Send(slot, PCtoRDRGetSlotStatus, TransmitParams{}, nil)
}

// XfrBlock sends the pending transmit bytes of buf in PC_to_RDR_XfrBlock.
func (d *Device) XfrBlock(slot byte, buf *xfr.Buffer) error {
	return d.Send(slot, PCtoRDRXfrBlock, TransmitParams{}, buf.Transmit())
}

// Escape sends the pending transmit bytes of buf in PC_to_RDR_Escape.
// The slot is not range checked: contactless fields live past the contact
// slots.
func (d *Device) Escape(slot byte, buf *xfr.Buffer) error {
	return d.Send(slot, PCtoRDREscape, TransmitParams{}, buf.Transmit())
}

// GetParameters sends PC_to_RDR_GetParameters.
func (d *Device) GetParameters(slot byte) error {
	return d.Send(slot, PCtoRDRGetParameters, TransmitParams{}, nil)
}

// ResetParameters sends PC_to_RDR_ResetParameters.
func (d *Device) ResetParameters(slot byte) error {
	return d.Send(slot, PCtoRDRResetParameters, TransmitParams{}, nil)
}

// SetParameters sends PC_to_RDR_SetParameters with p's protocol data
// structure.
func (d *Device) SetParameters(slot byte, p Parameters) error {
	if p.Protocol != ProtocolT0 && p.Protocol != ProtocolT1 {
		return errors.Errorf("ccid: cannot set parameters for %s", p.Protocol)
	}
	return d.Send(slot, PCtoRDRSetParameters, TransmitParams{byte(p.Protocol)}, p.Marshal())
}

// IccClock sends PC_to_RDR_IccClock, stopping or restarting the clock.
func (d *Device) IccClock(slot byte, stop bool) error {
	var cmd byte
	if stop {
		cmd = 1
	}
	return d.Send(slot, PCtoRDRIccClock, TransmitParams{cmd}, nil)
}

package ccid

import (
	"fmt"
	"strings"

	"github.com/gregLibert/ccid-emv/pkg/bits"
	"github.com/pkg/errors"
)

// PROTOCOL DATA STRUCTURES (CCID 1.1, RDR_to_PC_Parameters):
// The payload layout depends on bProtocolNum, carried in the third
// trailing header byte.
//
//	T=0 (5 bytes): bmFindexDindex, bmTCCKST0, bGuardTimeT0,
//	               bWaitingIntegerT0, bClockStop
//	T=1 (7 bytes): bmFindexDindex, bmTCCKST1, bGuardTimeT1,
//	               bmWaitingIntegersT1, bClockStop, bIFSC, bNadValue
//
// bmFindexDindex packs the ISO 7816-3 FI (high nibble) and DI (low
// nibble) indices into the clock rate conversion and baud rate
// adjustment tables below. The values are only reported, the reader
// applies them itself.

// Protocol is bProtocolNum.
type Protocol byte

const (
	ProtocolT0 Protocol = 0
	ProtocolT1 Protocol = 1
)

func (p Protocol) String() string {
	switch p {
	case ProtocolT0:
		return "T=0"
	case ProtocolT1:
		return "T=1"
	default:
		return fmt.Sprintf("T=?(%d)", byte(p))
	}
}

type clockRate struct {
	fi   int // clock rate conversion integer
	fmax int // maximum clock frequency in kHz
}

// ISO 7816-3 table 7. Zero marks RFU indices.
var fiTable = [16]clockRate{
	{372, 4000}, {372, 5000}, {558, 6000}, {744, 8000},
	{1116, 12000}, {1488, 16000}, {1860, 20000}, {0, 0},
	{0, 0}, {512, 5000}, {768, 7500}, {1024, 10000},
	{1536, 15000}, {2048, 20000}, {0, 0}, {0, 0},
}

// ISO 7816-3 table 8. Zero marks RFU indices.
var diTable = [16]int{0, 1, 2, 4, 8, 16, 32, 64, 12, 20, 0, 0, 0, 0, 0, 0}

// Parameters is a decoded protocol data structure.
type Parameters struct {
	Protocol  Protocol
	FIndex    byte
	DIndex    byte
	TCCKS     byte
	GuardTime byte
	// WaitingInteger is WI for T=0 and the BWI/CWI pair for T=1.
	WaitingInteger byte
	ClockStop      byte
	IFSC           byte // T=1 only
	NAD            byte // T=1 only
}

// Fi returns the clock rate conversion integer, or 0 for an RFU index.
func (p Parameters) Fi() int { return fiTable[p.FIndex&0x0F].fi }

// FMaxKHz returns the maximum clock frequency, or 0 for an RFU index.
func (p Parameters) FMaxKHz() int { return fiTable[p.FIndex&0x0F].fmax }

// Di returns the baud rate adjustment integer, or 0 for an RFU index.
func (p Parameters) Di() int { return diTable[p.DIndex&0x0F] }

// InverseConvention reports the convention bit of bmTCCKS.
func (p Parameters) InverseConvention() bool { return bits.IsSet(p.TCCKS, 2) }

// CRC reports whether T=1 uses CRC instead of LRC.
func (p Parameters) CRC() bool { return p.Protocol == ProtocolT1 && bits.IsSet(p.TCCKS, 1) }

func (p Parameters) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s", p.Protocol)
	if fi := p.Fi(); fi != 0 {
		fmt.Fprintf(&sb, " Fi=%d (fmax %d kHz)", fi, p.FMaxKHz())
	} else {
		fmt.Fprintf(&sb, " Fi=RFU(%d)", p.FIndex)
	}
	if di := p.Di(); di != 0 {
		fmt.Fprintf(&sb, " Di=%d", di)
	} else {
		fmt.Fprintf(&sb, " Di=RFU(%d)", p.DIndex)
	}
	convention := "direct"
	if p.InverseConvention() {
		convention = "inverse"
	}
	fmt.Fprintf(&sb, " %s convention, guard time %d", convention, p.GuardTime)
	if p.Protocol == ProtocolT1 {
		check := "LRC"
		if p.CRC() {
			check = "CRC"
		}
		fmt.Fprintf(&sb, ", %s, BWI=%d CWI=%d, IFSC=%d, NAD=0x%02x",
			check, p.WaitingInteger>>4, p.WaitingInteger&0x0F, p.IFSC, p.NAD)
	} else {
		fmt.Fprintf(&sb, ", WI=%d", p.WaitingInteger)
	}
	return sb.String()
}

// Marshal encodes the protocol data structure for PC_to_RDR_SetParameters.
func (p Parameters) Marshal() []byte {
	out := []byte{
		p.FIndex<<4 | p.DIndex&0x0F,
		p.TCCKS,
		p.GuardTime,
		p.WaitingInteger,
		p.ClockStop,
	}
	if p.Protocol == ProtocolT1 {
		out = append(out, p.IFSC, p.NAD)
	}
	return out
}

// ParseParameters decodes an RDR_to_PC_Parameters reply.
func ParseParameters(h Header, payload []byte) (Parameters, error) {
	if h.Type != RDRtoPCParameters {
		return Parameters{}, errors.Wrapf(ErrUnexpectedType, "want %s got %s", RDRtoPCParameters, h.Type)
	}

	p := Parameters{Protocol: Protocol(h.Receive().App)}

	need := 5
	switch p.Protocol {
	case ProtocolT0:
	case ProtocolT1:
		need = 7
	default:
		return p, errors.Errorf("ccid: unknown protocol number %d", byte(p.Protocol))
	}
	if len(payload) < need {
		return p, errors.Wrapf(ErrTruncated, "%s parameters: %d/%d bytes", p.Protocol, len(payload), need)
	}

	p.FIndex = payload[0] >> 4
	p.DIndex = payload[0] & 0x0F
	p.TCCKS = payload[1]
	p.GuardTime = payload[2]
	p.WaitingInteger = payload[3]
	p.ClockStop = payload[4]
	if p.Protocol == ProtocolT1 {
		p.IFSC = payload[5]
		p.NAD = payload[6]
	}
	return p, nil
}

package ccid

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// CCID CLASS DESCRIPTOR (CCID 1.1, section 5.1):
// A fixed 54 byte functional descriptor (bDescriptorType 0x21) found in
// the configuration descriptor next to the smart card interface. All
// multi-byte fields are little endian on the wire.

// ClassDescriptorType is the bDescriptorType of the CCID functional descriptor.
const ClassDescriptorType = 0x21

// ClassDescriptorLen is the size of the CCID functional descriptor.
const ClassDescriptorLen = 54

// MaxSlots is the highest number of slots a reader may declare.
const MaxSlots = 16

// Voltage support bits (bVoltageSupport).
const (
	VoltageSupport5V  = 1 << 0
	VoltageSupport3V  = 1 << 1
	VoltageSupport18V = 1 << 2
)

// Protocol bits (dwProtocols).
const (
	ProtocolMaskT0 = 1 << 0
	ProtocolMaskT1 = 1 << 1
)

// Feature bits (dwFeatures).
const (
	FeatureATRConfig     = 1 << 1
	FeatureAutoActivate  = 1 << 2
	FeatureAutoVoltage   = 1 << 3
	FeatureAutoClock     = 1 << 4
	FeatureAutoBaud      = 1 << 5
	FeatureVendorPPS     = 1 << 6
	FeatureAutoPPS       = 1 << 7
	FeatureClockStop     = 1 << 8
	FeatureNAD           = 1 << 9
	FeatureAutoIFSD      = 1 << 10
	FeatureT1TPDU        = 1 << 16
	FeatureShortAPDU     = 1 << 17
	FeatureExtendedAPDU  = 1 << 18
	featureExchangeLevel = FeatureT1TPDU | FeatureShortAPDU | FeatureExtendedAPDU
)

// PIN support bits (bPINSupport).
const (
	PINVerification = 1 << 0
	PINModification = 1 << 1
)

// ClassDescriptor is the decoded CCID functional descriptor.
type ClassDescriptor struct {
	Length            byte
	DescriptorType    byte
	BCDCCID           uint16
	MaxSlotIndex      byte
	VoltageSupport    byte
	Protocols         uint32
	DefaultClock      uint32 // kHz
	MaximumClock      uint32 // kHz
	NumClockSupported byte
	DataRate          uint32 // bps
	MaxDataRate       uint32 // bps
	NumDataRates      byte
	MaxIFSD           uint32
	SynchProtocols    uint32
	Mechanical        uint32
	Features          uint32
	MaxMessageLength  uint32
	ClassGetResponse  byte
	ClassEnvelope     byte
	LCDLayout         uint16
	PINSupport        byte
	MaxBusySlots      byte
}

// ParseClassDescriptor decodes the functional descriptor at the start of b.
func ParseClassDescriptor(b []byte) (ClassDescriptor, error) {
	if len(b) < ClassDescriptorLen {
		return ClassDescriptor{}, errors.Wrapf(ErrBadDescriptor, "truncated: %d/%d bytes", len(b), ClassDescriptorLen)
	}
	le := binary.LittleEndian
	d := ClassDescriptor{
		Length:            b[0],
		DescriptorType:    b[1],
		BCDCCID:           le.Uint16(b[2:4]),
		MaxSlotIndex:      b[4],
		VoltageSupport:    b[5],
		Protocols:         le.Uint32(b[6:10]),
		DefaultClock:      le.Uint32(b[10:14]),
		MaximumClock:      le.Uint32(b[14:18]),
		NumClockSupported: b[18],
		DataRate:          le.Uint32(b[19:23]),
		MaxDataRate:       le.Uint32(b[23:27]),
		NumDataRates:      b[27],
		MaxIFSD:           le.Uint32(b[28:32]),
		SynchProtocols:    le.Uint32(b[32:36]),
		Mechanical:        le.Uint32(b[36:40]),
		Features:          le.Uint32(b[40:44]),
		MaxMessageLength:  le.Uint32(b[44:48]),
		ClassGetResponse:  b[48],
		ClassEnvelope:     b[49],
		LCDLayout:         le.Uint16(b[50:52]),
		PINSupport:        b[52],
		MaxBusySlots:      b[53],
	}
	if d.DescriptorType != ClassDescriptorType {
		return d, errors.Wrapf(ErrBadDescriptor, "descriptor type 0x%02x", d.DescriptorType)
	}
	return d, nil
}

// FindClassDescriptor scans a raw configuration descriptor for the CCID
// functional descriptor.
func FindClassDescriptor(config []byte) (ClassDescriptor, error) {
	for p := 0; p+2 <= len(config); {
		l := int(config[p])
		if l < 2 || p+l > len(config) {
			return ClassDescriptor{}, errors.Wrapf(ErrBadDescriptor, "malformed descriptor at offset %d", p)
		}
		if config[p+1] == ClassDescriptorType {
			return ParseClassDescriptor(config[p : p+l])
		}
		p += l
	}
	return ClassDescriptor{}, errors.Wrap(ErrBadDescriptor, "no CCID functional descriptor")
}

// NumSlots returns the number of slots, capped at MaxSlots.
func (d ClassDescriptor) NumSlots() int {
	n := int(d.MaxSlotIndex) + 1
	if n > MaxSlots {
		n = MaxSlots
	}
	return n
}

func bcdPair(b byte) int {
	return int(b>>4)*10 + int(b&0x0F)
}

// CCIDVersion returns the major and minor release numbers of bcdCCID.
func (d ClassDescriptor) CCIDVersion() (major, minor int) {
	return bcdPair(byte(d.BCDCCID >> 8)), bcdPair(byte(d.BCDCCID))
}

// LCD returns the LCD layout as lines and characters per line.
func (d ClassDescriptor) LCD() (lines, chars int) {
	return bcdPair(byte(d.LCDLayout >> 8)), bcdPair(byte(d.LCDLayout))
}

// HasFeature reports whether all bits of f are set in dwFeatures.
func (d ClassDescriptor) HasFeature(f uint32) bool {
	return d.Features&f == f
}

// SupportsT0 reports T=0 support.
func (d ClassDescriptor) SupportsT0() bool { return d.Protocols&ProtocolMaskT0 != 0 }

// SupportsT1 reports T=1 support.
func (d ClassDescriptor) SupportsT1() bool { return d.Protocols&ProtocolMaskT1 != 0 }

// Voltages lists the supported ICC voltages.
func (d ClassDescriptor) Voltages() []string {
	var v []string
	if d.VoltageSupport&VoltageSupport5V != 0 {
		v = append(v, "5V")
	}
	if d.VoltageSupport&VoltageSupport3V != 0 {
		v = append(v, "3V")
	}
	if d.VoltageSupport&VoltageSupport18V != 0 {
		v = append(v, "1.8V")
	}
	return v
}

// ExchangeLevel names the level of exchange advertised in dwFeatures.
func (d ClassDescriptor) ExchangeLevel() string {
	switch d.Features & featureExchangeLevel {
	case 0:
		return "character"
	case FeatureT1TPDU:
		return "TPDU"
	case FeatureShortAPDU:
		return "short APDU"
	case FeatureExtendedAPDU:
		return "short and extended APDU"
	default:
		return "conflicting"
	}
}

// Validate rejects descriptors advertising mutually exclusive features.
func (d ClassDescriptor) Validate() error {
	if d.HasFeature(FeatureVendorPPS | FeatureAutoPPS) {
		return errors.Wrap(ErrBadDescriptor, "PPS/PPS_VENDOR conflict")
	}
	switch d.Features & featureExchangeLevel {
	case 0, FeatureT1TPDU, FeatureShortAPDU, FeatureExtendedAPDU:
	default:
		return errors.Wrap(ErrBadDescriptor, "T=1 exchange level conflict")
	}
	if d.MaxSlotIndex >= MaxSlots {
		return errors.Wrapf(ErrBadDescriptor, "bMaxSlotIndex %d", d.MaxSlotIndex)
	}
	return nil
}

func (d ClassDescriptor) String() string {
	major, minor := d.CCIDVersion()
	var protos []string
	if d.SupportsT0() {
		protos = append(protos, "T=0")
	}
	if d.SupportsT1() {
		protos = append(protos, "T=1")
	}
	return fmt.Sprintf("CCID %d.%d, %d slot(s), voltages [%s], protocols [%s], %s level, max message %d bytes",
		major, minor, d.NumSlots(), strings.Join(d.Voltages(), " "), strings.Join(protos, " "),
		d.ExchangeLevel(), d.MaxMessageLength)
}

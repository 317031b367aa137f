package iso7816

import (
	"fmt"

	"github.com/gregLibert/ccid-emv/pkg/bits"
	"github.com/pkg/errors"
)

// CLASS BYTE:
// Bit 8 set marks a proprietary class (EMV uses 80 for its own commands).
// Otherwise bit 7 picks the interindustry layout and bit 5 flags command
// chaining:
//   00xc ssnn   first interindustry, SM on bits 4-3, channel 0-3 on bits 2-1
//   01sc nnnn   further interindustry, SM on bit 6, channel 4-19 as n+4

// ErrBadClass reports a CLA byte or class parameters that cannot be encoded.
var ErrBadClass = errors.New("iso7816: invalid class")

// SecureMessaging is the secure messaging indication of the class byte.
type SecureMessaging int

const (
	SMNone SecureMessaging = iota
	// SMProprietary is only encodable on channels 0-3.
	SMProprietary
	SMHeaderNoProc
	// SMHeaderAuth is only encodable on channels 0-3.
	SMHeaderAuth
)

var smNames = [...]string{"none", "proprietary", "ISO, header not processed", "ISO, header authenticated"}

func (sm SecureMessaging) String() string {
	if sm < 0 || int(sm) >= len(smNames) {
		return fmt.Sprintf("SecureMessaging(%d)", int(sm))
	}
	return smNames[sm]
}

// Class is a decoded CLA byte.
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	// Channel is the logical channel, 0 to 19.
	Channel uint8
}

// NewClass decodes a CLA byte. FF is reserved for PPS and rejected.
func NewClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, errors.Wrap(ErrBadClass, "FF is reserved")
	}

	c := Class{Raw: cla}
	if bits.IsSet(cla, 8) {
		c.IsProprietary = true
		return c, nil
	}

	c.IsChained = bits.IsSet(cla, 5)
	if bits.IsSet(cla, 7) {
		if bits.IsSet(cla, 6) {
			c.SecureMessaging = SMHeaderNoProc
		}
		c.Channel = bits.GetRange(cla, 4, 1) + 4
	} else {
		c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
		c.Channel = bits.GetRange(cla, 2, 1)
	}
	return c, nil
}

// NewInterindustryClass builds an interindustry class, using the further
// layout for channels above 3.
func NewInterindustryClass(chained bool, sm SecureMessaging, channel uint8) (Class, error) {
	c := Class{IsChained: chained, SecureMessaging: sm, Channel: channel}
	raw, err := c.Encode()
	if err != nil {
		return Class{}, err
	}
	c.Raw = raw
	return c, nil
}

// Encode returns the CLA byte. Proprietary classes return Raw unchanged.
func (c *Class) Encode() (byte, error) {
	if c.IsProprietary {
		return c.Raw, nil
	}
	if c.Channel > 19 {
		return 0, errors.Wrapf(ErrBadClass, "channel %d", c.Channel)
	}
	if c.SecureMessaging < SMNone || c.SecureMessaging > SMHeaderAuth {
		return 0, errors.Wrapf(ErrBadClass, "secure messaging %d", int(c.SecureMessaging))
	}

	var b byte
	if c.IsChained {
		b = bits.Set(b, 5)
	}
	if c.Channel <= 3 {
		return b | byte(c.SecureMessaging)<<2 | c.Channel, nil
	}

	switch c.SecureMessaging {
	case SMProprietary, SMHeaderAuth:
		return 0, errors.Wrapf(ErrBadClass, "secure messaging %q on channel %d", c.SecureMessaging, c.Channel)
	case SMHeaderNoProc:
		b = bits.Set(b, 6)
	}
	return bits.Set(b, 7) | (c.Channel - 4), nil
}

func (c Class) String() string {
	if c.IsProprietary {
		return fmt.Sprintf("CLA %02X proprietary", c.Raw)
	}
	s := fmt.Sprintf("CLA %02X channel %d SM %s", c.Raw, c.Channel, c.SecureMessaging)
	if c.IsChained {
		s += " chained"
	}
	return s
}

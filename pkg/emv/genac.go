package emv

import (
	"fmt"

	"github.com/gregLibert/ccid-emv/pkg/ber"
	"github.com/gregLibert/ccid-emv/pkg/iso7816"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ACType is the cryptogram type requested from GENERATE AC (P1).
type ACType byte

const (
	AAC  ACType = 0x00
	TC   ACType = 0x40
	ARQC ACType = 0x80
	// CDA requests combined data authentication with the cryptogram.
	CDA ACType = 0x10
)

func (t ACType) String() string {
	var s string
	switch t & 0xC0 {
	case AAC:
		s = "AAC"
	case TC:
		s = "TC"
	case ARQC:
		s = "ARQC"
	default:
		s = "RFU"
	}
	if t&CDA != 0 {
		s += "+CDA"
	}
	return s
}

// Cryptogram is the card answer to GENERATE AC.
type Cryptogram struct {
	// CID is the cryptogram information data; its top bits give the type
	// the card chose.
	CID byte
	ATC uint16
	AC  []byte
	IAD []byte
	// SDAD is the signed dynamic application data of a CDA answer.
	SDAD []byte
}

// Type returns the cryptogram type the card generated.
func (c *Cryptogram) Type() ACType { return ACType(c.CID & 0xC0) }

func (c *Cryptogram) String() string {
	return fmt.Sprintf("%s ATC %d AC %X", c.Type(), c.ATC, c.AC)
}

func setATC(b []byte, c *Cryptogram) error {
	if len(b) != 2 {
		return errors.Errorf("ATC of %d bytes", len(b))
	}
	c.ATC = uint16(b[0])<<8 | uint16(b[1])
	return nil
}

var acFormat2Table = ber.MustTable(
	ber.Entry[*Cryptogram]{Tag: TagCID, Handle: func(b []byte, c *Cryptogram) error {
		if len(b) != 1 {
			return errors.Errorf("CID of %d bytes", len(b))
		}
		c.CID = b[0]
		return nil
	}},
	ber.Entry[*Cryptogram]{Tag: TagATC, Handle: setATC},
	ber.Entry[*Cryptogram]{Tag: TagAC, Handle: func(b []byte, c *Cryptogram) error {
		c.AC = b
		return nil
	}},
	ber.Entry[*Cryptogram]{Tag: TagIAD, Handle: func(b []byte, c *Cryptogram) error {
		c.IAD = b
		return nil
	}},
	ber.Entry[*Cryptogram]{Tag: TagDynamicData, Handle: func(b []byte, c *Cryptogram) error {
		c.SDAD = b
		return nil
	}},
)

var acTable = ber.MustTable(
	ber.Entry[*Cryptogram]{Tag: TagResponseFormat1, Handle: func(b []byte, c *Cryptogram) error {
		if len(b) < 11 {
			return errors.Errorf("format 1 cryptogram of %d bytes", len(b))
		}
		c.CID = b[0]
		c.ATC = uint16(b[1])<<8 | uint16(b[2])
		c.AC = b[3:11]
		c.IAD = b[11:]
		return nil
	}},
	ber.Entry[*Cryptogram]{Tag: TagResponseFormat2, Handle: func(b []byte, c *Cryptogram) error {
		_, err := acFormat2Table.Dispatch(b, c)
		return err
	}},
)

// BuildDOL fills the data object list held by tag (CDOL1, CDOL2, DDOL...)
// from the session data sources.
func (s *Session) BuildDOL(tag ber.Tag) ([]byte, error) {
	dol, err := s.store.Value(tag)
	if err != nil {
		return nil, s.done(err)
	}
	data, err := ConstructDOL(dol, s)
	return data, s.done(err)
}

// GenerateAC asks the card for a cryptogram over data, normally the
// result of BuildDOL(TagCDOL1) or BuildDOL(TagCDOL2).
func (s *Session) GenerateAC(t ACType, data []byte) (*Cryptogram, error) {
	c, err := s.generateAC(t, data)
	return c, s.done(err)
}

func (s *Session) generateAC(t ACType, data []byte) (*Cryptogram, error) {
	if s.app == nil {
		return nil, ErrAppNotSelected
	}
	ins, _ := iso7816.NewInstruction(iso7816.INS_GENERATE_AC)
	resp, err := s.command(iso7816.NewCommandAPDU(s.emvCLA, ins, byte(t), 0x00, data, 0))
	if err != nil {
		return nil, err
	}

	c := &Cryptogram{}
	n, err := acTable.Dispatch(resp, c)
	if err != nil {
		return nil, berError(0, err)
	}
	if n == 0 || c.AC == nil {
		return nil, missing(TagAC)
	}
	s.log.WithFields(logrus.Fields{
		"requested": t.String(),
		"type":      c.Type().String(),
		"atc":       c.ATC,
	}).Info("cryptogram generated")
	return c, nil
}

package emv

import (
	"strings"

	"github.com/gregLibert/ccid-emv/pkg/ber"
	"github.com/gregLibert/ccid-emv/pkg/iso7816"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// AIP is the application interchange profile, first byte in the high
// octet.
type AIP uint16

// AIP capabilities, byte 1.
const (
	AIPCDA AIP = 0x01 << 8
	AIPISS AIP = 0x04 << 8
	AIPTRM AIP = 0x08 << 8
	AIPCVM AIP = 0x10 << 8
	AIPDDA AIP = 0x20 << 8
	AIPSDA AIP = 0x40 << 8
)

var aipNames = []struct {
	bit  AIP
	name string
}{
	{AIPSDA, "SDA"},
	{AIPDDA, "DDA"},
	{AIPCVM, "cardholder verification"},
	{AIPTRM, "terminal risk management"},
	{AIPISS, "issuer authentication"},
	{AIPCDA, "CDA"},
}

// Has reports whether every bit of c is set.
func (a AIP) Has(c AIP) bool { return a&c == c }

// Bytes returns the two byte encoding.
func (a AIP) Bytes() []byte { return []byte{byte(a >> 8), byte(a)} }

func (a AIP) String() string {
	var names []string
	for _, n := range aipNames {
		if a.Has(n.bit) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

type processingOptions struct {
	aip  AIP
	afl  []byte
	seen bool
}

func setAIP(po *processingOptions, b []byte) error {
	if len(b) != 2 {
		return errors.Errorf("AIP of %d bytes", len(b))
	}
	po.aip = AIP(b[0])<<8 | AIP(b[1])
	po.seen = true
	return nil
}

var format2Table = ber.MustTable(
	ber.Entry[*processingOptions]{Tag: TagAIP, Handle: func(b []byte, po *processingOptions) error {
		return setAIP(po, b)
	}},
	ber.Entry[*processingOptions]{Tag: TagAFL, Handle: func(b []byte, po *processingOptions) error {
		po.afl = b
		return nil
	}},
)

var gpoTable = ber.MustTable(
	ber.Entry[*processingOptions]{Tag: TagResponseFormat1, Handle: func(b []byte, po *processingOptions) error {
		if len(b) < 2 {
			return errors.Errorf("format 1 response of %d bytes", len(b))
		}
		po.afl = b[2:]
		return setAIP(po, b[:2])
	}},
	ber.Entry[*processingOptions]{Tag: TagResponseFormat2, Handle: func(b []byte, po *processingOptions) error {
		_, err := format2Table.Dispatch(b, po)
		return err
	}},
)

// InitApp initiates application processing with GET PROCESSING OPTIONS.
// The PDOL of the selected application is filled from the session data
// sources. It records the AIP and AFL of the card.
func (s *Session) InitApp() error {
	return s.done(s.initApp())
}

func (s *Session) initApp() error {
	if s.app == nil {
		return ErrAppNotSelected
	}

	var pdolData []byte
	if pdol := s.fci.PDOL(); len(pdol) > 0 {
		var err error
		if pdolData, err = ConstructDOL(pdol, s); err != nil {
			return err
		}
	}
	ins, _ := iso7816.NewInstruction(iso7816.INS_GET_PROCESSING_OPTIONS)
	cmd := iso7816.NewCommandAPDU(s.emvCLA, ins, 0x00, 0x00, ber.Encode(TagCommandTemplate, pdolData), 0)

	data, err := s.command(cmd)
	if err != nil {
		return err
	}
	var po processingOptions
	if _, err := gpoTable.Dispatch(data, &po); err != nil {
		return berError(0, err)
	}
	if !po.seen {
		return missing(TagAIP)
	}
	afl, err := ParseAFL(po.afl)
	if err != nil {
		return err
	}

	s.aip, s.afl = po.aip, afl
	s.log.WithFields(logrus.Fields{
		"aip": s.aip.String(),
		"afl": len(afl),
	}).Info("application initiated")
	return nil
}

// ReadAppData reads the records named by the AFL into the session store.
func (s *Session) ReadAppData() error {
	return s.done(s.readAppData())
}

func (s *Session) readAppData() error {
	if s.app == nil {
		return ErrAppNotSelected
	}
	if s.afl == nil {
		return missing(TagAFL)
	}
	s.store = NewDataStore()
	if err := s.store.ReadAppData(s.afl, s); err != nil {
		var e *Error
		if errors.As(err, &e) {
			return e
		}
		return transportError(err)
	}
	s.log.WithField("elements", s.store.Len()).Info("application data read")
	return nil
}

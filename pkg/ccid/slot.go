package ccid

import (
	"context"

	"github.com/gregLibert/ccid-emv/pkg/xfr"
	"github.com/pkg/errors"
)

// SLOTS:
// A reader exposes contact slots, addressed directly, and optionally
// contactless fields that are tunnelled through PC_to_RDR_Escape. The two
// kinds form a closed set; each Slot method switches on the kind.

// SlotKind distinguishes contact slots from contactless fields.
type SlotKind int

const (
	Contact SlotKind = iota
	RfidField
)

func (k SlotKind) String() string {
	switch k {
	case Contact:
		return "contact"
	case RfidField:
		return "rf field"
	default:
		return "unknown"
	}
}

// Slot is one card interface of a Device.
type Slot struct {
	dev    *Device
	index  byte
	kind   SlotKind
	status SlotStatus
}

// Index is the bSlot value addressing this slot.
func (s *Slot) Index() byte { return s.index }

// Kind reports whether the slot is a contact slot or a field.
func (s *Slot) Kind() SlotKind { return s.kind }

// Status returns the last observed presence state.
func (s *Slot) Status() SlotStatus { return s.status }

// ClockStatus performs a GetSlotStatus round trip.
func (s *Slot) ClockStatus() (ClockStatus, error) {
	switch s.kind {
	case Contact:
		d := s.dev
		if err := d.GetSlotStatus(s.index); err != nil {
			return 0, err
		}
		h, err := d.Receive(s.index, nil)
		if err != nil {
			return 0, err
		}
		return ParseSlotStatus(h)
	default:
		return 0, errors.Wrapf(ErrUnsupported, "slot status on %s %d", s.kind, s.index)
	}
}

// PowerOn activates the card and returns its ATR.
func (s *Slot) PowerOn(v Voltage) ([]byte, error) {
	switch s.kind {
	case Contact:
		d := s.dev
		if err := d.PowerOn(s.index, v); err != nil {
			return nil, err
		}
		h, err := d.Receive(s.index, nil)
		if err != nil {
			return nil, err
		}
		if _, err := ParseDataBlock(h); err != nil {
			return nil, err
		}
		atr := append([]byte(nil), d.xfr.Received()...)
		d.log.WithField("slot", s.index).Debugf("ATR % X", atr)
		return atr, nil
	default:
		return nil, errors.Wrapf(ErrUnsupported, "power on %s %d", s.kind, s.index)
	}
}

// PowerOff deactivates the card.
func (s *Slot) PowerOff() (ClockStatus, error) {
	switch s.kind {
	case Contact:
		d := s.dev
		if err := d.PowerOff(s.index); err != nil {
			return 0, err
		}
		h, err := d.Receive(s.index, nil)
		if err != nil {
			return 0, err
		}
		return ParseSlotStatus(h)
	default:
		return 0, errors.Wrapf(ErrUnsupported, "power off %s %d", s.kind, s.index)
	}
}

// Transact sends the pending bytes of buf and stores the reply in it.
func (s *Slot) Transact(buf *xfr.Buffer) error {
	d := s.dev
	switch s.kind {
	case Contact:
		if err := d.XfrBlock(s.index, buf); err != nil {
			return err
		}
		h, err := d.Receive(s.index, buf)
		if err != nil {
			return err
		}
		chain, err := ParseDataBlock(h)
		if err != nil {
			return err
		}
		if chain != 0 {
			d.log.WithField("slot", s.index).Debugf("chaining parameter 0x%02x", chain)
		}
		return nil
	case RfidField:
		if err := d.Escape(s.index, buf); err != nil {
			return err
		}
		h, err := d.Receive(s.index, buf)
		if err != nil {
			return err
		}
		if h.Type != RDRtoPCEscape {
			return errors.Wrapf(ErrUnexpectedType, "want %s got %s", RDRtoPCEscape, h.Type)
		}
		return nil
	default:
		return errors.Wrapf(ErrUnsupported, "transact on %s", s.kind)
	}
}

// WaitForCard blocks until a card is present, alternating slot status
// requests with interrupt polls. Failed status commands (no card) keep the
// loop going; transport errors and ctx cancellation end it.
func (s *Slot) WaitForCard(ctx context.Context) error {
	if s.kind != Contact {
		return errors.Wrapf(ErrUnsupported, "wait for card on %s %d", s.kind, s.index)
	}
	d := s.dev
	for {
		if err := d.GetSlotStatus(s.index); err != nil {
			return err
		}
		if _, err := d.Receive(s.index, nil); err != nil && !errors.Is(err, ErrCommandFailed) {
			return err
		}
		if s.status.CardPresent() {
			return nil
		}

		d.InterruptPoll()
		if s.status.CardPresent() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Card returns a Transmitter exchanging raw APDUs with the card in s.
func (s *Slot) Card() *Card {
	n := s.dev.MaxPayload()
	return &Card{slot: s, buf: xfr.New(n, n)}
}

// Card adapts a Slot to the iso7816.Transmitter interface.
type Card struct {
	slot *Slot
	buf  *xfr.Buffer
}

// Transmit sends one command APDU and returns the response APDU including
// its status word.
func (c *Card) Transmit(cmd []byte) ([]byte, error) {
	c.buf.Reset()
	if err := c.buf.PushBytes(cmd); err != nil {
		return nil, err
	}
	if err := c.slot.Transact(c.buf); err != nil {
		return nil, err
	}
	if _, _, err := c.buf.StatusWord(); err != nil {
		return nil, err
	}
	return append([]byte(nil), c.buf.Received()...), nil
}

package ccid

import (
	"fmt"
	"io"

	"github.com/gregLibert/ccid-emv/pkg/xfr"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DEVICE & TRANSACTION MODEL:
// A Device drives one reader through three endpoints: bulk-OUT for
// commands, bulk-IN for replies and interrupt-IN for slot change and
// hardware error notifications.
//
// Every exchange is two-phase. A command builder (PowerOn, XfrBlock, ...)
// calls Send, which stamps the next sequence number. The caller then calls
// Receive, which accepts exactly one reply answering that sequence number
// on the expected slot. The reader may answer "time extension" any number
// of times while the card works; Receive swallows up to MaxTimeExtensions
// of those.
//
// The Device is not safe for concurrent use. All slots of a reader share
// one sequence counter and one bulk pipe, so callers serialize access.

// MaxTimeExtensions is the number of additional reads Receive performs
// while the reader keeps requesting more time.
const MaxTimeExtensions = 10

// DefaultMaxMessageLength is used when the descriptor leaves
// dwMaxCCIDMessageLength at zero: header plus a short APDU response.
const DefaultMaxMessageLength = HeaderLen + 261

const interruptPacketLen = 64

// Endpoints is the byte-level USB transport a Device runs on.
type Endpoints interface {
	BulkWrite(p []byte) (int, error)
	BulkRead(p []byte) (int, error)
	// InterruptRead returns (0, nil) when nothing arrived before its
	// poll timeout.
	InterruptRead(p []byte) (int, error)
	Close() error
}

// IOError wraps a failure of the underlying endpoints.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("ccid: %s: %v", e.Op, e.Err) }

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// Device is one CCID reader.
type Device struct {
	ep     Endpoints
	desc   ClassDescriptor
	log    logrus.Ext1FieldLogger
	seq    byte
	slots  []*Slot
	fields []*Slot
	nRF    int
	maxMsg int
	xfr    *xfr.Buffer
	in     []byte
	intr   []byte
}

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the logger used for transport tracing.
func WithLogger(l logrus.Ext1FieldLogger) Option {
	return func(d *Device) {
		if l != nil {
			d.log = l
		}
	}
}

// WithRFFields declares n contactless fields reached through Escape.
// Their indices follow the contact slots.
func WithRFFields(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.nRF = n
		}
	}
}

// WithMaxMessageLength overrides the bulk message size taken from the
// class descriptor.
func WithMaxMessageLength(n int) Option {
	return func(d *Device) {
		if n > HeaderLen {
			d.maxMsg = n
		}
	}
}

// WithSequence sets the first sequence number used.
func WithSequence(seq byte) Option {
	return func(d *Device) { d.seq = seq }
}

func discardLogger() logrus.Ext1FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// NewDevice builds a Device over ep. The descriptor decides the number of
// contact slots and the bulk message size.
func NewDevice(ep Endpoints, desc ClassDescriptor, opts ...Option) (*Device, error) {
	if ep == nil {
		return nil, errors.New("ccid: nil endpoints")
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	d := &Device{
		ep:     ep,
		desc:   desc,
		log:    discardLogger(),
		maxMsg: int(desc.MaxMessageLength),
		intr:   make([]byte, interruptPacketLen),
	}
	if d.maxMsg <= HeaderLen {
		d.maxMsg = DefaultMaxMessageLength
	}
	for _, opt := range opts {
		opt(d)
	}

	n := desc.NumSlots()
	if n+d.nRF > 256 {
		d.nRF = 256 - n
	}
	for i := 0; i < n; i++ {
		d.slots = append(d.slots, &Slot{dev: d, index: byte(i), kind: Contact, status: SlotNotPresent})
	}
	for i := 0; i < d.nRF; i++ {
		d.fields = append(d.fields, &Slot{dev: d, index: byte(n + i), kind: RfidField, status: SlotNotPresent})
	}

	payload := d.maxMsg - HeaderLen
	d.xfr = xfr.New(payload, payload)
	d.in = make([]byte, d.maxMsg)

	d.log.WithFields(logrus.Fields{
		"slots":  n,
		"fields": d.nRF,
		"maxmsg": d.maxMsg,
	}).Debug(desc.String())
	return d, nil
}

// Descriptor returns the class descriptor the device was built with.
func (d *Device) Descriptor() ClassDescriptor { return d.desc }

// Seq returns the sequence number the next Send will use.
func (d *Device) Seq() byte { return d.seq }

// MaxPayload is the largest payload a single bulk message carries.
func (d *Device) MaxPayload() int { return d.maxMsg - HeaderLen }

// Slots returns the contact slots.
func (d *Device) Slots() []*Slot { return d.slots }

// Fields returns the contactless fields.
func (d *Device) Fields() []*Slot { return d.fields }

// Slot returns contact slot i.
func (d *Device) Slot(i int) (*Slot, error) {
	if i < 0 || i >= len(d.slots) {
		return nil, errors.Wrapf(ErrBadSlot, "slot %d of %d", i, len(d.slots))
	}
	return d.slots[i], nil
}

// Field returns contactless field i.
func (d *Device) Field(i int) (*Slot, error) {
	if i < 0 || i >= len(d.fields) {
		return nil, errors.Wrapf(ErrBadSlot, "field %d of %d", i, len(d.fields))
	}
	return d.fields[i], nil
}

// Close releases the endpoints.
func (d *Device) Close() error {
	return d.ep.Close()
}

// Probe refreshes the cached status of every contact slot. A slot that
// reports a failed command (typically no card) is not an error.
func (d *Device) Probe() error {
	for _, s := range d.slots {
		if _, err := s.ClockStatus(); err != nil && !errors.Is(err, ErrCommandFailed) {
			return errors.Wrapf(err, "probe slot %d", s.index)
		}
	}
	return nil
}

func (d *Device) lookup(index byte) *Slot {
	if int(index) < len(d.slots) {
		return d.slots[index]
	}
	if i := int(index) - len(d.slots); i < len(d.fields) {
		return d.fields[i]
	}
	return nil
}

// Send frames payload behind a header for slot and writes it to bulk-OUT.
// The sequence counter advances even when the write fails, so a late reply
// to the lost command cannot be mistaken for the next one.
func (d *Device) Send(slot byte, typ MessageType, params TransmitParams, payload []byte) error {
	if typ != PCtoRDREscape && int(slot) >= len(d.slots) {
		return errors.Wrapf(ErrBadSlot, "%s to slot %d of %d", typ, slot, len(d.slots))
	}
	if len(payload) > d.MaxPayload() {
		return errors.Wrapf(xfr.ErrOverflow, "%d byte payload, reader accepts %d", len(payload), d.MaxPayload())
	}

	h := Header{Type: typ, Length: uint32(len(payload)), Slot: slot, Seq: d.seq, Params: params}
	d.seq++

	msg := h.AppendTo(make([]byte, 0, HeaderLen+len(payload)))
	msg = append(msg, payload...)

	d.log.WithFields(logrus.Fields{
		"slot": slot,
		"seq":  h.Seq,
		"type": typ,
		"len":  len(payload),
	}).Debug("xmit")
	if len(payload) > 0 {
		d.log.Tracef("xmit data: % X", payload)
	}

	n, err := d.ep.BulkWrite(msg)
	if err != nil {
		return &IOError{Op: "bulk write", Err: err}
	}
	if n != len(msg) {
		return &IOError{Op: "bulk write", Err: errors.Errorf("short write %d/%d", n, len(msg))}
	}
	return nil
}

// Receive reads the reply to the last Send on slot and copies its payload
// into buf (the device buffer when buf is nil). Time extension replies are
// read past, up to MaxTimeExtensions of them. A reply reporting a failed
// command is returned together with a *CommandError.
func (d *Device) Receive(slot byte, buf *xfr.Buffer) (Header, error) {
	if buf == nil {
		buf = d.xfr
	}
	for try := 0; ; try++ {
		h, err := d.receiveOne(slot, buf)
		if err != nil {
			return h, err
		}

		res, code := CommandResult(h.Receive())
		switch res {
		case ResultTimeExtension:
			if try < MaxTimeExtensions {
				d.log.WithFields(logrus.Fields{"slot": slot, "try": try + 1}).Debug("time extension")
				continue
			}
			return h, errors.Wrapf(ErrTimeExtension, "%s after %d retries", h.Type, MaxTimeExtensions)
		case ResultError:
			return h, &CommandError{Type: h.Type, Code: code, Status: h.Receive().ICCStatus()}
		}
		return h, nil
	}
}

func (d *Device) receiveOne(slot byte, buf *xfr.Buffer) (Header, error) {
	in := d.in
	if need := HeaderLen + buf.RxCap(); need > len(in) {
		in = make([]byte, need)
		d.in = in
	}

	n, err := d.ep.BulkRead(in)
	if err != nil {
		return Header{}, &IOError{Op: "bulk read", Err: err}
	}
	h, err := ParseHeader(in[:n])
	if err != nil {
		return h, err
	}
	if uint64(h.Length) > uint64(n-HeaderLen) {
		return h, errors.Wrapf(ErrLengthMismatch, "dwLength %d, %d bytes received", h.Length, n-HeaderLen)
	}
	if h.Slot != slot {
		return h, &SlotError{Expected: slot, Got: h.Slot}
	}
	if h.Seq+1 != d.seq {
		return h, &SequenceError{Expected: d.seq - 1, Got: h.Seq}
	}

	rp := h.Receive()
	if s := d.lookup(h.Slot); s != nil {
		s.status = rp.ICCStatus()
	}

	d.log.WithFields(logrus.Fields{
		"slot":   h.Slot,
		"seq":    h.Seq,
		"type":   h.Type,
		"len":    h.Length,
		"status": fmt.Sprintf("%02x", rp.Status),
		"error":  fmt.Sprintf("%02x", rp.Error),
	}).Debug("recv")

	payload := in[HeaderLen : HeaderLen+int(h.Length)]
	if len(payload) > 0 {
		d.log.Tracef("recv data: % X", payload)
	}
	return h, buf.SetResponse(payload)
}

// InterruptPoll reads one pending interrupt message, if any, and applies
// it. Failures are logged and never returned.
func (d *Device) InterruptPoll() {
	n, err := d.ep.InterruptRead(d.intr)
	if err != nil {
		d.log.WithError(err).Debug("interrupt read")
		return
	}
	if n == 0 {
		return
	}
	msg := d.intr[:n]

	switch typ := MessageType(msg[0]); typ {
	case RDRtoPCNotifySlotChange:
		d.notifySlotChange(msg[1:])
	case RDRtoPCHardwareError:
		if n < 4 {
			d.log.Warnf("truncated %s (%d bytes)", typ, n)
			return
		}
		d.log.WithFields(logrus.Fields{
			"slot": msg[1],
			"seq":  msg[2],
			"code": fmt.Sprintf("%02x", msg[3]),
		}).Warn("reader hardware error")
	default:
		d.log.Warnf("unknown interrupt message %s", typ)
	}
}

// notifySlotChange applies bmSlotICCState: two bits per slot, four slots
// per byte, the low bit giving presence and the high bit flagging a change.
func (d *Device) notifySlotChange(state []byte) {
	for i, s := range d.slots {
		if i/4 >= len(state) {
			break
		}
		b := state[i/4] >> (2 * uint(i%4))
		if b&2 == 0 {
			continue
		}
		if b&1 != 0 {
			s.status = SlotPresent
		} else {
			s.status = SlotNotPresent
		}
		d.log.WithFields(logrus.Fields{"slot": i, "status": s.status}).Info("slot change")
	}
}

// Package xfr implements the transfer buffer that carries one command and
// its response between the APDU layer and the CCID transport.
package xfr

import (
	"github.com/pkg/errors"
)

// TRANSFER BUFFER:
// A Buffer owns two fixed regions allocated once:
//
//  1. Transmit: filled by the caller with PushByte/PushBytes. The write
//     cursor never passes the capacity; an append that would overflow is
//     rejected whole and leaves the buffer untouched.
//  2. Receive: written wholesale by the transport after each exchange
//     (SetResponse). A card response ends with the two status bytes
//     SW1 SW2; ResponseData exposes everything before them.
//
// Reset rewinds both cursors without reallocating, so one Buffer is
// reused for every APDU of a session.

// MinResponseLen is the size of the status word trailer.
const MinResponseLen = 2

var (
	// ErrOverflow is returned when data does not fit in a region.
	ErrOverflow = errors.New("xfr: buffer overflow")
	// ErrUnderflow is returned when fewer than MinResponseLen bytes were received.
	ErrUnderflow = errors.New("xfr: response too short")
)

// Buffer is a fixed-capacity request/response buffer.
type Buffer struct {
	tx    []byte
	rx    []byte
	txLen int
	rxLen int
}

// New allocates a Buffer with the given transmit and receive capacities.
func New(txCap, rxCap int) *Buffer {
	if txCap < 0 {
		txCap = 0
	}
	if rxCap < 0 {
		rxCap = 0
	}
	return &Buffer{
		tx: make([]byte, txCap),
		rx: make([]byte, rxCap),
	}
}

// Reset empties both regions.
func (b *Buffer) Reset() {
	b.txLen = 0
	b.rxLen = 0
}

// TxCap returns the transmit capacity.
func (b *Buffer) TxCap() int { return len(b.tx) }

// RxCap returns the receive capacity.
func (b *Buffer) RxCap() int { return len(b.rx) }

// PushByte appends one byte to the transmit region.
func (b *Buffer) PushByte(c byte) error {
	if b.txLen >= len(b.tx) {
		return errors.Wrapf(ErrOverflow, "push 1 byte at %d/%d", b.txLen, len(b.tx))
	}
	b.tx[b.txLen] = c
	b.txLen++
	return nil
}

// PushBytes appends p to the transmit region. The data is copied.
func (b *Buffer) PushBytes(p []byte) error {
	if b.txLen+len(p) > len(b.tx) {
		return errors.Wrapf(ErrOverflow, "push %d bytes at %d/%d", len(p), b.txLen, len(b.tx))
	}
	copy(b.tx[b.txLen:], p)
	b.txLen += len(p)
	return nil
}

// Transmit returns the pending transmit bytes. The slice aliases the
// buffer and is only valid until the next Reset or push.
func (b *Buffer) Transmit() []byte {
	return b.tx[:b.txLen]
}

// SetResponse replaces the receive region with a copy of p.
func (b *Buffer) SetResponse(p []byte) error {
	if len(p) > len(b.rx) {
		b.rxLen = 0
		return errors.Wrapf(ErrOverflow, "response of %d bytes exceeds %d", len(p), len(b.rx))
	}
	b.rxLen = copy(b.rx, p)
	return nil
}

// Received returns every byte of the last response, status word included.
func (b *Buffer) Received() []byte {
	return b.rx[:b.rxLen]
}

// StatusWord returns the trailing SW1 and SW2 of the last response.
func (b *Buffer) StatusWord() (sw1, sw2 byte, err error) {
	if b.rxLen < MinResponseLen {
		return 0, 0, errors.Wrapf(ErrUnderflow, "%d bytes received", b.rxLen)
	}
	return b.rx[b.rxLen-2], b.rx[b.rxLen-1], nil
}

// ResponseData returns the last response without its status word.
func (b *Buffer) ResponseData() ([]byte, error) {
	if b.rxLen < MinResponseLen {
		return nil, errors.Wrapf(ErrUnderflow, "%d bytes received", b.rxLen)
	}
	return b.rx[:b.rxLen-MinResponseLen], nil
}

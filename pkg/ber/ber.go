// Package ber decodes the definite-length subset of ISO 8825 BER used by
// smart card protocols. Every decoder is bounds checked against the slice
// it is given: malformed input yields an error, never a panic or a read
// past the end.
//
// Tags are limited to two identifier octets (one 0x1F extension octet),
// which covers every EMV and ISO 7816 data object.
package ber

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrTruncated reports a buffer too short to hold an identifier and a length.
	ErrTruncated = errors.New("ber: truncated")
	// ErrBadTag reports an identifier longer than two octets.
	ErrBadTag = errors.New("ber: unsupported tag encoding")
	// ErrBadLength reports an invalid length field or content running past the buffer.
	ErrBadLength = errors.New("ber: bad length")
)

// Class is the tag class held in the top two bits of the identifier octet.
type Class byte

const (
	Universal Class = iota
	Application
	ContextSpecific
	Private
)

func (c Class) String() string {
	switch c {
	case Universal:
		return "universal"
	case Application:
		return "application"
	case ContextSpecific:
		return "context-specific"
	case Private:
		return "private"
	default:
		return fmt.Sprintf("Class(%d)", byte(c))
	}
}

// Tag is a one or two octet BER tag as it appears on the wire, so 0x9F13
// is the two octets 9F 13 and 0x5A is the single octet 5A.
type Tag uint16

func (t Tag) String() string {
	if t > 0xFF {
		return fmt.Sprintf("%04X", uint16(t))
	}
	return fmt.Sprintf("%02X", uint16(t))
}

// identifier returns the first identifier octet.
func (t Tag) identifier() byte {
	if t > 0xFF {
		return byte(t >> 8)
	}
	return byte(t)
}

// Class returns the tag class.
func (t Tag) Class() Class { return Class(t.identifier() >> 6) }

// Constructed reports whether the tag marks a constructed encoding.
func (t Tag) Constructed() bool { return t.identifier()&0x20 != 0 }

// Len returns the number of identifier octets.
func (t Tag) Len() int {
	if t > 0xFF {
		return 2
	}
	return 1
}

// Header is a decoded identifier and length.
type Header struct {
	Tag         Tag
	Class       Class
	Constructed bool
	Len         int
}

const maxLengthOctets = 4

// parseHeader decodes the identifier and length octets at the start of buf
// and returns the header size. It does not look at the content.
func parseHeader(buf []byte) (Header, int, error) {
	if len(buf) < 2 {
		return Header{}, 0, errors.Wrapf(ErrTruncated, "%d byte header", len(buf))
	}

	id := buf[0]
	h := Header{
		Tag:         Tag(id),
		Class:       Class(id >> 6),
		Constructed: id&0x20 != 0,
	}
	p := 1

	if id&0x1F == 0x1F {
		if buf[p]&0x80 != 0 {
			return Header{}, 0, errors.Wrapf(ErrBadTag, "tag %02X %02X continues past two octets", id, buf[p])
		}
		h.Tag = Tag(id)<<8 | Tag(buf[p])
		p++
		if p >= len(buf) {
			return Header{}, 0, errors.Wrapf(ErrTruncated, "tag %s has no length", h.Tag)
		}
	}

	lb := buf[p]
	p++
	if lb&0x80 == 0 {
		h.Len = int(lb)
		return h, p, nil
	}

	ll := int(lb & 0x7F)
	switch {
	case ll == 0:
		return Header{}, 0, errors.Wrapf(ErrBadLength, "tag %s: indefinite length", h.Tag)
	case ll > maxLengthOctets:
		return Header{}, 0, errors.Wrapf(ErrBadLength, "tag %s: %d length octets", h.Tag, ll)
	case p+ll > len(buf):
		return Header{}, 0, errors.Wrapf(ErrTruncated, "tag %s: length octets past end", h.Tag)
	}

	var n uint64
	for _, b := range buf[p : p+ll] {
		n = n<<8 | uint64(b)
	}
	p += ll
	if n > 1<<31-1 {
		return Header{}, 0, errors.Wrapf(ErrBadLength, "tag %s: length %d", h.Tag, n)
	}
	h.Len = int(n)
	return h, p, nil
}

// DecodeTagHeader decodes the header at the start of buf and splits the
// remainder into the content and what follows it.
func DecodeTagHeader(buf []byte) (h Header, content, rest []byte, err error) {
	h, n, err := parseHeader(buf)
	if err != nil {
		return Header{}, nil, nil, err
	}
	if h.Len > len(buf)-n {
		return Header{}, nil, nil, errors.Wrapf(ErrBadLength, "tag %s: length %d, %d bytes left", h.Tag, h.Len, len(buf)-n)
	}
	return h, buf[n : n+h.Len], buf[n+h.Len:], nil
}

// DecodeHeader decodes an identifier and length that are not followed by
// content, as in the entries of a data object list. rest starts right
// after the length octets.
func DecodeHeader(buf []byte) (Header, []byte, error) {
	h, n, err := parseHeader(buf)
	if err != nil {
		return Header{}, nil, err
	}
	return h, buf[n:], nil
}

// Block is one complete data object.
type Block struct {
	Header
	Content []byte
	// Raw is the whole encoding: identifier, length and content.
	Raw []byte
}

// DecodeBlock decodes the data object at the start of buf and returns it
// along with the bytes that follow it.
func DecodeBlock(buf []byte) (Block, []byte, error) {
	h, content, rest, err := DecodeTagHeader(buf)
	if err != nil {
		return Block{}, nil, err
	}
	size := len(buf) - len(rest)
	return Block{Header: h, Content: content, Raw: buf[:size:size]}, rest, nil
}

// Uint decodes a big-endian unsigned integer of at most eight octets.
func Uint(b []byte) (uint64, error) {
	if len(b) > 8 {
		return 0, errors.Wrapf(ErrBadLength, "%d octet integer", len(b))
	}
	var n uint64
	for _, c := range b {
		n = n<<8 | uint64(c)
	}
	return n, nil
}

// Uints splits b into big-endian unsigned integers of width octets each.
// The content length must be a multiple of width.
func Uints(b []byte, width int) ([]uint64, error) {
	if width < 1 || width > 8 || len(b)%width != 0 {
		return nil, errors.Wrapf(ErrBadLength, "%d bytes in %d octet integers", len(b), width)
	}
	out := make([]uint64, 0, len(b)/width)
	for i := 0; i < len(b); i += width {
		n, _ := Uint(b[i : i+width])
		out = append(out, n)
	}
	return out, nil
}

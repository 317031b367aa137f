package emv

import (
	"github.com/gregLibert/ccid-emv/pkg/ber"
	"github.com/pkg/errors"
)

// DOLSource supplies the values a data object list asks for.
type DOLSource interface {
	DOLValue(tag ber.Tag) ([]byte, bool)
}

// TerminalData is a fixed set of terminal resident data objects.
type TerminalData map[ber.Tag][]byte

func (d TerminalData) DOLValue(tag ber.Tag) ([]byte, bool) {
	v, ok := d[tag]
	return v, ok
}

// ConstructDOL builds the concatenated values a data object list requests.
// Numeric values keep their rightmost digits and are padded with leading
// zeros; other values keep their leftmost bytes and are padded with
// trailing zeros. Objects the source does not know are zero filled.
func ConstructDOL(dol []byte, src DOLSource) ([]byte, error) {
	var out []byte
	for rest := dol; len(rest) > 0; {
		h, next, err := ber.DecodeHeader(rest)
		if err != nil {
			return nil, berError(0, err)
		}
		if h.Len > 0xFF {
			return nil, berError(h.Tag, errors.Errorf("DOL entry of %d bytes", h.Len))
		}
		rest = next

		v, ok := src.DOLValue(h.Tag)
		if !ok {
			out = append(out, make([]byte, h.Len)...)
			continue
		}
		out = appendFitted(out, v, h.Len, LookupTag(h.Tag).Type)
	}
	return out, nil
}

func appendFitted(dst, v []byte, n int, typ DataType) []byte {
	numeric := typ == BCD || typ == Date || typ == Int
	switch {
	case len(v) == n:
		return append(dst, v...)
	case len(v) > n && numeric:
		return append(dst, v[len(v)-n:]...)
	case len(v) > n:
		return append(dst, v[:n]...)
	case numeric:
		dst = append(dst, make([]byte, n-len(v))...)
		return append(dst, v...)
	default:
		dst = append(dst, v...)
		return append(dst, make([]byte, n-len(v))...)
	}
}

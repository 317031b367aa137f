package emv

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gregLibert/ccid-emv/pkg/ber"
	"github.com/gregLibert/ccid-emv/pkg/tlv"
	"github.com/pkg/errors"
)

// DATA STORE LAYOUT:
// Record bytes are copied once into an arena. Every decoded data object,
// nested ones included, becomes an element of a single vector; children of
// a constructed object occupy a contiguous run of that vector, reserved by
// counting the siblings before decoding them. Elements refer to their value
// and children by offset and index, never by pointer. Once all records are
// in, an index of element positions is sorted by tag so that any object can
// be found by binary search wherever it sits in the tree.

// RecordReader reads one record of a short file identifier.
type RecordReader interface {
	ReadRecord(sfi, rec byte) ([]byte, error)
}

// RecordReaderFunc adapts a function to RecordReader.
type RecordReaderFunc func(sfi, rec byte) ([]byte, error)

func (f RecordReaderFunc) ReadRecord(sfi, rec byte) ([]byte, error) { return f(sfi, rec) }

type element struct {
	tag  ber.Tag
	info *TagInfo
	// value is arena[off : off+n].
	off, n int
	// children are elems[first : first+count].
	first, count int32
	composite    bool
}

type record struct {
	sfi, num byte
	sda      bool
	off, n   int
	// top level objects of the record.
	first, count int32
}

// DataStore holds the application data read from the card.
type DataStore struct {
	arena   []byte
	elems   []element
	index   []int32
	records []record
}

// NewDataStore returns an empty store.
func NewDataStore() *DataStore {
	return &DataStore{}
}

// Len returns the number of data elements, nested ones included.
func (s *DataStore) Len() int { return len(s.elems) }

// ReadAppData reads every record the AFL names and decodes it into the
// store. A record the card refuses ends its AFL entry, unless it is the
// first record of the entry, whose failure is returned. Malformed record
// data fails the whole read with ErrBerDecode.
func (s *DataStore) ReadAppData(afl []AFLEntry, r RecordReader) error {
	defer s.sortIndex()

	for _, e := range afl {
		for rec := int(e.First); rec <= int(e.Last); rec++ {
			data, err := r.ReadRecord(e.SFI, byte(rec))
			if err != nil {
				if rec == int(e.First) {
					return errors.Wrapf(err, "SFI %d record %d", e.SFI, rec)
				}
				break
			}
			sda := rec-int(e.First) < int(e.SDACount)
			if err := s.AddRecord(e.SFI, byte(rec), data, sda); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddRecord decodes one record into the store. The index is left unsorted
// until ReadAppData returns; call Sort after adding records directly.
func (s *DataStore) AddRecord(sfi, num byte, data []byte, sda bool) error {
	arenaLen, elemsLen := len(s.arena), len(s.elems)
	off := len(s.arena)
	s.arena = append(s.arena, data...)

	first, count, err := s.decodeLevel(off, len(data))
	if err != nil {
		s.arena, s.elems = s.arena[:arenaLen], s.elems[:elemsLen]
		return berError(0, errors.Wrapf(err, "SFI %d record %d", sfi, num))
	}
	s.records = append(s.records, record{
		sfi: sfi, num: num, sda: sda,
		off: off, n: len(data),
		first: first, count: count,
	})
	return nil
}

// Sort rebuilds the tag index. ReadAppData calls it on return.
func (s *DataStore) Sort() { s.sortIndex() }

// decodeLevel decodes the sibling objects in arena[off:off+n] into a
// contiguous run of elements and returns its position.
func (s *DataStore) decodeLevel(off, n int) (int32, int32, error) {
	buf := s.arena[off : off+n]

	count := 0
	for rest := buf; len(rest) > 0; count++ {
		_, next, err := ber.DecodeBlock(rest)
		if err != nil {
			return 0, 0, err
		}
		rest = next
	}

	first := len(s.elems)
	s.elems = append(s.elems, make([]element, count)...)

	for i, rest := 0, buf; i < count; i++ {
		b, next, _ := ber.DecodeBlock(rest)
		valueOff := off + (len(buf) - len(rest)) + (len(b.Raw) - len(b.Content))
		el := element{
			tag:       b.Tag,
			info:      LookupTag(b.Tag),
			off:       valueOff,
			n:         len(b.Content),
			composite: b.Constructed,
		}
		if b.Constructed {
			cf, cc, err := s.decodeLevel(valueOff, len(b.Content))
			if err != nil {
				return 0, 0, errors.Wrapf(err, "in %s", b.Tag)
			}
			el.first, el.count = cf, cc
		}
		s.elems[first+i] = el
		rest = next
	}
	return int32(first), int32(count), nil
}

func (s *DataStore) sortIndex() {
	s.index = s.index[:0]
	for i := range s.elems {
		s.index = append(s.index, int32(i))
	}
	slices.SortStableFunc(s.index, func(a, b int32) int {
		return cmp.Compare(s.elems[a].tag, s.elems[b].tag)
	})
}

// Retrieve returns the first element read with tag.
func (s *DataStore) Retrieve(tag ber.Tag) (DataElement, bool) {
	i, ok := slices.BinarySearchFunc(s.index, tag, func(e int32, t ber.Tag) int {
		return cmp.Compare(s.elems[e].tag, t)
	})
	if !ok {
		return DataElement{}, false
	}
	return DataElement{s: s, i: s.index[i]}, true
}

// Value returns the value of tag, or ErrDataElementNotFound.
func (s *DataStore) Value(tag ber.Tag) ([]byte, error) {
	el, ok := s.Retrieve(tag)
	if !ok {
		return nil, missing(tag)
	}
	return el.Value(), nil
}

func (s *DataStore) topLevel(sdaOnly bool) []DataElement {
	var out []DataElement
	for _, r := range s.records {
		if sdaOnly && !r.sda {
			continue
		}
		for i := r.first; i < r.first+r.count; i++ {
			out = append(out, DataElement{s: s, i: i})
		}
	}
	return out
}

// Records returns the top level objects of every record in read order.
func (s *DataStore) Records() []DataElement { return s.topLevel(false) }

// SDARecords returns the top level objects of the records protected by
// static data authentication, in read order.
func (s *DataStore) SDARecords() []DataElement { return s.topLevel(true) }

// SDAData returns the static data to authenticate. For files 1 to 10 it is
// the content of the record template; for other files, the whole record.
// A protected record of files 1 to 10 that is not a single record
// template fails static data authentication.
func (s *DataStore) SDAData() ([]byte, error) {
	var out []byte
	for _, r := range s.records {
		if !r.sda {
			continue
		}
		if r.sfi > 10 {
			out = append(out, s.arena[r.off:r.off+r.n]...)
			continue
		}
		if r.count != 1 || s.elems[r.first].tag != TagRecordTemplate {
			return nil, berError(TagRecordTemplate, errors.Errorf("SFI %d record %d is not a record template", r.sfi, r.num))
		}
		el := s.elems[r.first]
		out = append(out, s.arena[el.off:el.off+el.n]...)
	}
	return out, nil
}

// DataElement is a read-only view of one decoded data object. The zero
// value is not valid.
type DataElement struct {
	s *DataStore
	i int32
}

func (e DataElement) el() *element { return &e.s.elems[e.i] }

// Tag returns the element tag.
func (e DataElement) Tag() ber.Tag { return e.el().tag }

// Info returns the tag metadata.
func (e DataElement) Info() *TagInfo { return e.el().info }

// Value returns the content octets.
func (e DataElement) Value() []byte {
	el := e.el()
	return e.s.arena[el.off : el.off+el.n : el.off+el.n]
}

// Composite reports whether the element is a constructed object.
func (e DataElement) Composite() bool { return e.el().composite }

// Children returns the nested objects of a composite element in encoding
// order.
func (e DataElement) Children() []DataElement {
	el := e.el()
	out := make([]DataElement, el.count)
	for i := range out {
		out[i] = DataElement{s: e.s, i: el.first + int32(i)}
	}
	return out
}

// Child returns the first direct child with tag.
func (e DataElement) Child(tag ber.Tag) (DataElement, bool) {
	for _, c := range e.Children() {
		if c.Tag() == tag {
			return c, true
		}
	}
	return DataElement{}, false
}

// Int decodes the value as an unsigned integer. BCD values are read as
// decimal digits up to the first padding nibble.
func (e DataElement) Int() (uint64, error) {
	v := e.Value()
	if e.Info().Type == BCD {
		return bcdInt(v)
	}
	n, err := ber.Uint(v)
	if err != nil {
		return 0, berError(e.Tag(), err)
	}
	return n, nil
}

func bcdInt(v []byte) (uint64, error) {
	var n uint64
	digits := 0
	for _, b := range v {
		for _, d := range [2]byte{b >> 4, b & 0x0F} {
			if d == 0x0F {
				return n, nil
			}
			if d > 9 {
				return 0, errors.Errorf("invalid BCD digit %X", d)
			}
			if digits == 19 {
				return 0, errors.New("BCD value overflows 64 bits")
			}
			n = n*10 + uint64(d)
			digits++
		}
	}
	return n, nil
}

// Text renders the value for display according to its type.
func (e DataElement) Text() string {
	v := e.Value()
	switch e.Info().Type {
	case Text:
		return tlv.Printable(v)
	case BCD, Date:
		return strings.TrimRight(fmt.Sprintf("%X", v), "F")
	case Int:
		n, err := e.Int()
		if err != nil {
			return fmt.Sprintf("%X", v)
		}
		return fmt.Sprint(n)
	default:
		return fmt.Sprintf("%X", v)
	}
}

// Date decodes a YYMMDD BCD date. Years 69 and above fall in the 1900s.
func (e DataElement) Date() (time.Time, error) {
	v := e.Value()
	if len(v) != 3 {
		return time.Time{}, berError(e.Tag(), errors.Errorf("date of %d bytes", len(v)))
	}
	t, err := time.Parse("060102", fmt.Sprintf("%X", v))
	if err != nil {
		return time.Time{}, berError(e.Tag(), err)
	}
	return t, nil
}

func (e DataElement) String() string {
	if e.Composite() {
		return fmt.Sprintf("%s (%s): %d objects", e.Info().Label, e.Tag(), e.el().count)
	}
	return fmt.Sprintf("%s (%s): %s", e.Info().Label, e.Tag(), e.Text())
}

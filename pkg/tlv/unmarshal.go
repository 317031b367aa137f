// Package tlv maps BER-TLV data objects onto Go structs through `tlv`
// struct tags. Decoding is done by bertlv; this package only walks the
// decoded tree.
//
// A field tagged `tlv:"9F38"` receives the object with that tag. Byte
// slices get the raw value (the re-encoded children for constructed
// objects), unsigned integers the big-endian value, strings the value in
// hex, and structs or struct pointers the decoded children. A slice of
// structs collects every occurrence. The field tagged `tlv:",unknown"`, or
// named Unknown, receives the objects no other field claimed.
package tlv

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/moov-io/bertlv"
	"github.com/pkg/errors"
)

var (
	// ErrTarget reports a target that is not a non-nil struct pointer.
	ErrTarget = errors.New("tlv: target must be a non-nil struct pointer")
	// ErrNotFound reports a tag absent from the data.
	ErrNotFound = errors.New("tlv: tag not found")
)

// Unmarshaler is implemented by field types decoding their own value.
type Unmarshaler interface {
	UnmarshalTLV(data []byte) error
}

var (
	unmarshalerType = reflect.TypeOf((*Unmarshaler)(nil)).Elem()
	packetsType     = reflect.TypeOf([]bertlv.TLV(nil))
)

type field struct {
	index int
	name  string
	// tag is empty for fields only shown by WriteStructFields.
	tag    string
	format string
}

// plan is the parsed layout of one struct type.
type plan struct {
	fields  []field
	byTag   map[uint64]int
	unknown int
}

var plans sync.Map // reflect.Type -> *plan

func planFor(t reflect.Type) (*plan, error) {
	if p, ok := plans.Load(t); ok {
		return p.(*plan), nil
	}
	p := &plan{byTag: map[uint64]int{}, unknown: -1}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, opt, _ := strings.Cut(sf.Tag.Get("tlv"), ",")
		if opt == "unknown" || (sf.Name == "Unknown" && sf.Type == packetsType) {
			if sf.Type != packetsType {
				return nil, errors.Errorf("tlv: %s.%s: unknown field must be []bertlv.TLV", t, sf.Name)
			}
			p.unknown = i
			continue
		}
		f := field{index: i, name: sf.Name, format: sf.Tag.Get("fmt")}
		if name != "" {
			v, err := strconv.ParseUint(name, 16, 16)
			if err != nil {
				return nil, errors.Errorf("tlv: %s.%s: bad tag %q", t, sf.Name, name)
			}
			if _, dup := p.byTag[v]; dup {
				return nil, errors.Errorf("tlv: %s: tag %s mapped twice", t, name)
			}
			f.tag = strings.ToUpper(name)
			p.byTag[v] = len(p.fields)
		}
		p.fields = append(p.fields, f)
	}
	actual, _ := plans.LoadOrStore(t, p)
	return actual.(*plan), nil
}

func packetTag(p bertlv.TLV) (uint64, bool) {
	v, err := strconv.ParseUint(p.Tag, 16, 16)
	return v, err == nil
}

// Unmarshal decodes data and maps it onto target.
func Unmarshal(data []byte, target interface{}) error {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return errors.Wrap(err, "tlv: decoding")
	}
	return UnmarshalPackets(packets, target)
}

// UnmarshalPackets maps already decoded objects onto target.
func UnmarshalPackets(packets []bertlv.TLV, target interface{}) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return errors.Wrapf(ErrTarget, "got %T", target)
	}
	return unmarshalStruct(packets, v.Elem())
}

func unmarshalStruct(packets []bertlv.TLV, v reflect.Value) error {
	p, err := planFor(v.Type())
	if err != nil {
		return err
	}
	var leftovers []bertlv.TLV
	for _, pkt := range packets {
		tag, ok := packetTag(pkt)
		i, known := p.byTag[tag]
		if !ok || !known {
			leftovers = append(leftovers, pkt)
			continue
		}
		f := p.fields[i]
		if err := setField(pkt, v.Field(f.index)); err != nil {
			return errors.Wrapf(err, "tag %s", f.tag)
		}
	}
	if p.unknown >= 0 && len(leftovers) > 0 {
		v.Field(p.unknown).Set(reflect.ValueOf(leftovers))
	}
	return nil
}

// setField stores one object, appending when the field collects repeated
// occurrences.
func setField(pkt bertlv.TLV, fv reflect.Value) error {
	if fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() != reflect.Uint8 && fv.Type() != packetsType {
		elem := reflect.New(fv.Type().Elem()).Elem()
		if err := decodeValue(pkt, elem); err != nil {
			return err
		}
		fv.Set(reflect.Append(fv, elem))
		return nil
	}
	return decodeValue(pkt, fv)
}

func bigEndian(b []byte) (uint64, bool) {
	if len(b) > 8 {
		return 0, false
	}
	var n uint64
	for _, c := range b {
		n = n<<8 | uint64(c)
	}
	return n, true
}

func rawValue(p bertlv.TLV) ([]byte, error) {
	if len(p.TLVs) == 0 {
		return p.Value, nil
	}
	return bertlv.Encode(p.TLVs)
}

func decodeValue(pkt bertlv.TLV, fv reflect.Value) error {
	if fv.CanAddr() && fv.Addr().Type().Implements(unmarshalerType) {
		raw, err := rawValue(pkt)
		if err != nil {
			return err
		}
		return fv.Addr().Interface().(Unmarshaler).UnmarshalTLV(raw)
	}

	switch fv.Kind() {
	case reflect.Slice:
		if fv.Type() == packetsType {
			fv.Set(reflect.ValueOf(pkt.TLVs))
			return nil
		}
		raw, err := rawValue(pkt)
		if err != nil {
			return err
		}
		fv.SetBytes(append([]byte(nil), raw...))
	case reflect.String:
		fv.SetString(fmt.Sprintf("%X", pkt.Value))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := bigEndian(pkt.Value)
		if !ok || fv.OverflowUint(n) {
			return errors.Errorf("tlv: %X overflows %s", pkt.Value, fv.Type())
		}
		fv.SetUint(n)
	case reflect.Ptr:
		if fv.Type().Elem().Kind() != reflect.Struct {
			return errors.Errorf("tlv: unsupported field type %s", fv.Type())
		}
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		return decodeChildren(pkt, fv.Elem())
	case reflect.Struct:
		return decodeChildren(pkt, fv)
	default:
		return errors.Errorf("tlv: unsupported field type %s", fv.Type())
	}
	return nil
}

// decodeChildren maps a template onto a struct. A primitive object is
// decoded again from its value, for cards that flag templates primitive.
func decodeChildren(pkt bertlv.TLV, v reflect.Value) error {
	children := pkt.TLVs
	if len(children) == 0 && len(pkt.Value) > 0 {
		var err error
		if children, err = bertlv.Decode(pkt.Value); err != nil {
			return errors.Wrap(err, "tlv: decoding template")
		}
	}
	return unmarshalStruct(children, v)
}

// Find returns the value of the first top level object tagged tag, with
// the children re-encoded for a constructed object.
func Find(data []byte, tag uint16) ([]byte, error) {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, errors.Wrap(err, "tlv: decoding")
	}
	for _, p := range packets {
		if t, ok := packetTag(p); ok && t == uint64(tag) {
			return rawValue(p)
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "tag %X", tag)
}

package tlv

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// WriteStructFields appends one line per populated byte slice or unsigned
// integer field of s, then one per unclaimed object. Lines read
// "    - prefix.Name (tag): value" and are joined without a trailing
// newline; a newline separates them from earlier content in sb. The fmt
// struct tag selects ascii or int rendering next to the hex.
func WriteStructFields(sb *strings.Builder, prefix string, s interface{}) {
	v := reflect.ValueOf(s)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}
	p, err := planFor(v.Type())
	if err != nil {
		return
	}

	var lines []string
	for _, f := range p.fields {
		val, ok := fieldText(v.Field(f.index), f.format)
		if !ok {
			continue
		}
		name := f.name
		if f.tag != "" {
			name = fmt.Sprintf("%s (%s)", name, f.tag)
		}
		lines = append(lines, fmt.Sprintf("    - %s.%s: %s", prefix, name, val))
	}
	if p.unknown >= 0 {
		for _, pkt := range v.Field(p.unknown).Interface().([]bertlv.TLV) {
			lines = append(lines, fmt.Sprintf("    - %s.Unknown Tag %s: %X", prefix, strings.ToUpper(pkt.Tag), pkt.Value))
		}
	}

	if len(lines) == 0 {
		return
	}
	if sb.Len() > 0 {
		sb.WriteByte('\n')
	}
	sb.WriteString(strings.Join(lines, "\n"))
}

func fieldText(fv reflect.Value, format string) (string, bool) {
	switch {
	case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.Uint8:
		if fv.Len() == 0 {
			return "", false
		}
		return FormatValue(fv.Bytes(), format), true
	case fv.CanUint():
		if fv.IsZero() {
			return "", false
		}
		return fmt.Sprint(fv.Uint()), true
	default:
		return "", false
	}
}

// FormatValue renders b in hex followed, for the ascii and int formats, by
// its printable text or decimal value.
func FormatValue(b []byte, format string) string {
	switch format {
	case "ascii":
		return fmt.Sprintf("%X (%q)", b, Printable(b))
	case "int":
		if n, ok := bigEndian(b); ok {
			return fmt.Sprintf("%X (Dec: %d)", b, n)
		}
	}
	return fmt.Sprintf("%X", b)
}

// Printable replaces every byte outside printable ASCII with a dot.
func Printable(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c < 0x20 || c > 0x7E {
			c = '.'
		}
		out[i] = c
	}
	return string(out)
}

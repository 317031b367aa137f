package ber

import (
	"fmt"
	"io"
	"strings"
)

const dumpLineLen = 16

// Dump writes an indented tree of the data objects in buf to w. Primitive
// content is shown as offset, printable characters and hex, 16 bytes per
// line. Dumping stops at the first malformed object and reports it.
func Dump(w io.Writer, buf []byte) error {
	return Walk(buf, func(h Header, depth int, content []byte) error {
		indent := strings.Repeat("  ", depth)
		kind := "primitive"
		if h.Constructed {
			kind = "constructed"
		}
		if _, err := fmt.Fprintf(w, "%s%s %s %s len=%d\n", indent, h.Tag, h.Class, kind, h.Len); err != nil {
			return err
		}
		if h.Constructed {
			return nil
		}
		return hexDump(w, content, indent+"  ")
	})
}

func hexDump(w io.Writer, b []byte, indent string) error {
	for off := 0; off < len(b); off += dumpLineLen {
		end := off + dumpLineLen
		if end > len(b) {
			end = len(b)
		}
		line := b[off:end]

		var sb strings.Builder
		fmt.Fprintf(&sb, "%s%04x : ", indent, off)
		for _, c := range line {
			if c >= 0x20 && c <= 0x7E {
				sb.WriteByte(c)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString(strings.Repeat(" ", dumpLineLen-len(line)))
		for _, c := range line {
			fmt.Fprintf(&sb, " %02x", c)
		}
		sb.WriteByte('\n')

		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

package tlv

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/moov-io/bertlv"
	"github.com/stretchr/testify/assert"
)

type describeRecord struct {
	AID      []byte `tlv:"4F"`
	Label    []byte `tlv:"50" fmt:"ascii"`
	Priority []byte `tlv:"87" fmt:"int"`
	Missing  []byte `tlv:"9F12"`
	ATC      uint16 `tlv:"9F36"`
	Note     []byte
	Rest     []bertlv.TLV `tlv:",unknown"`
}

func TestWriteStructFields(t *testing.T) {
	rec := describeRecord{
		AID:      Hex("A000000003"),
		Label:    []byte("VISA\x00"),
		Priority: []byte{0x02},
		ATC:      66,
		Note:     Hex("CAFE"),
		Rest:     []bertlv.TLV{{Tag: "9f01", Value: Hex("1234")}},
	}
	want := []string{
		"    - Rec.AID (4F): A000000003",
		`    - Rec.Label (50): 5649534100 ("VISA.")`,
		"    - Rec.Priority (87): 02 (Dec: 2)",
		"    - Rec.ATC (9F36): 66",
		"    - Rec.Note: CAFE",
		"    - Rec.Unknown Tag 9F01: 1234",
	}

	for name, in := range map[string]interface{}{"value": rec, "pointer": &rec} {
		var sb strings.Builder
		WriteStructFields(&sb, "Rec", in)
		if diff := cmp.Diff(want, strings.Split(sb.String(), "\n")); diff != "" {
			t.Errorf("%s: mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestWriteStructFields_Appends(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("header")
	WriteStructFields(&sb, "X", (*describeRecord)(nil))
	WriteStructFields(&sb, "X", describeRecord{})
	WriteStructFields(&sb, "X", 42)
	assert.Equal(t, "header", sb.String())

	WriteStructFields(&sb, "X", describeRecord{ATC: 1})
	assert.Equal(t, "header\n    - X.ATC (9F36): 1", sb.String())
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "CAFE", FormatValue(Hex("CAFE"), ""))
	assert.Equal(t, `56495341 ("VISA")`, FormatValue([]byte("VISA"), "ascii"))
	assert.Equal(t, "0100 (Dec: 256)", FormatValue(Hex("0100"), "int"))
	assert.Equal(t, "000000000000000000", FormatValue(make([]byte, 9), "int"))
	assert.Equal(t, "AB...C", Printable([]byte{'A', 'B', 0x00, 0x1F, 0x7F, 'C'}))
}

package iso7816

import (
	"testing"

	"github.com/gregLibert/ccid-emv/pkg/tlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReadRecordCommand(t *testing.T) {
	cls, _ := NewClass(0x00)

	tests := []struct {
		name string
		cmd  *CommandAPDU
		want string
	}{
		{"Record 1 of SFI 1", ReadRecord(cls, 1, 1), "00B2010C00"},
		{"Record 3 of SFI 2", ReadRecord(cls, 2, 3), "00B2031400"},
		{"Current EF", ReadRecord(cls, 0, 5), "00B2050400"},
		{"All from record 1", NewReadRecordCommand(cls, 2, 1, RecordsFromNumber), "00B2011500"},
		{"Next occurrence of ID", NewReadRecordCommand(cls, 10, 0xAA, RecordIDNext), "00B2AA5200"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Bytes()
			require.NoError(t, err)
			assert.Equal(t, tlv.Hex(tt.want), got)
		})
	}
}

func TestRecordMode_String(t *testing.T) {
	assert.Equal(t, "record P1", RecordNumber.String())
	assert.Equal(t, "RecordMode(111)", RecordMode(7).String())
}

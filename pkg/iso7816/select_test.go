package iso7816

import (
	"testing"

	"github.com/gregLibert/ccid-emv/pkg/tlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectCommand(t *testing.T) {
	cls, _ := NewClass(0x00)

	tests := []struct {
		name string
		cmd  *CommandAPDU
		want string
	}{
		// Commands carrying a name never get Le.
		{"Payment system environment", SelectByAID(cls, []byte("1PAY.SYS.DDF01")),
			"00A404000E 315041592E5359532E4444463031"},
		{"Next occurrence of a partial AID", SelectNextByAID(cls, tlv.Hex("A000000003")),
			"00A4040205 A000000003"},
		{"Master file", NewSelectCommand(cls, SelectByFileID, FirstOrOnlyOccurrence, ReturnFCI, nil),
			"00A4000000"},
		{"Next occurrence with FCP", NewSelectCommand(cls, SelectByFileID, NextOccurrence, ReturnFCP, tlv.Hex("3F00")),
			"00A4000602 3F00"},
		{"No answer data", NewSelectCommand(cls, SelectByFileID, FirstOrOnlyOccurrence, ReturnNoData, nil),
			"00A4000C"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Bytes()
			require.NoError(t, err)
			assert.Equal(t, tlv.Hex(tt.want), got)
		})
	}
}

func TestFileOccurrence_String(t *testing.T) {
	assert.Equal(t, "next", NextOccurrence.String())
	assert.Equal(t, "FileOccurrence(4)", FileOccurrence(4).String())
}

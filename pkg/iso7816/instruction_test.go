package iso7816

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstruction(t *testing.T) {
	tests := []struct {
		name string
		ins  InsCode
		want Instruction
	}{
		{"SELECT", 0xA4, Instruction{Raw: INS_SELECT}},
		{"READ BINARY BER-TLV", 0xB1, Instruction{Raw: INS_READ_BINARY_BER, IsBERTLV: true}},
		{"GENERATE AC", 0xAE, Instruction{Raw: INS_GENERATE_AC}},
		{"CREATE FILE", 0xE0, Instruction{Raw: INS_CREATE_FILE}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewInstruction(tt.ins)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, ins := range []InsCode{0x6A, 0x90, 0x61} {
		_, err := NewInstruction(ins)
		assert.True(t, errors.Is(err, ErrBadInstruction), "INS %02X", byte(ins))
	}
}

func TestInstruction_Verbose(t *testing.T) {
	tests := []struct {
		ins  InsCode
		want string
	}{
		{INS_SELECT, "INS: 0xA4 | Command: INS_SELECT | Format: Standard"},
		{INS_READ_BINARY_BER, "INS: 0xB1 | Command: INS_READ_BINARY_BER | Format: BER-TLV"},
		{INS_GET_PROCESSING_OPTIONS, "INS: 0xA8 | Command: INS_GET_PROCESSING_OPTIONS | Format: Standard"},
		{0xF2, "INS: 0xF2 | Command: InsCode(0xF2) | Format: Standard"},
	}
	for _, tt := range tests {
		i, _ := NewInstruction(tt.ins)
		assert.Equal(t, tt.want, i.Verbose())
	}
}

package emv

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/ccid-emv/pkg/tlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_InitApp(t *testing.T) {
	wantAFL := []AFLEntry{{SFI: 1, First: 2, Last: 2, SDACount: 1}, {SFI: 2, First: 1, Last: 3, SDACount: 0}}

	tests := []struct {
		name  string
		reply string
	}{
		{name: "Format 1", reply: "80 0A 7C00 08020201 10010300"},
		{name: "Format 2", reply: "77 0E 82 02 7C00 94 08 08020201 10010300"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := newFakeCard()
			s := selectedSession(t, card)
			card.on("80A8000002 8300", tt.reply, "9000")

			require.NoError(t, s.InitApp())
			assert.Equal(t, AIPSDA|AIPDDA|AIPCVM|AIPTRM|AIPISS, s.AIP())
			if diff := cmp.Diff(wantAFL, s.AFL()); diff != "" {
				t.Errorf("AFL mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSession_InitApp_PDOL(t *testing.T) {
	card := newFakeCard()
	card.on("00A4040007"+visaAID,
		"6F 17 84 07 A0000000031010 A5 0C 50 04 56495341 9F38 03 9F1A02", "9000")
	s := NewSession(card, WithTerminalData(TerminalData{TagTerminalCountry: tlv.Hex("0250")}))
	require.NoError(t, s.SelectByName(tlv.Hex(visaAID)))

	card.on("80A8000004 8302 0250", "80 06 4000 08010100 9000")
	require.NoError(t, s.InitApp())
	assert.Equal(t, "SDA", s.AIP().String())
}

func TestSession_InitApp_Errors(t *testing.T) {
	t.Run("No application", func(t *testing.T) {
		s := NewSession(newFakeCard())
		assert.True(t, errors.Is(s.InitApp(), ErrAppNotSelected))
	})

	t.Run("Conditions not satisfied", func(t *testing.T) {
		card := newFakeCard()
		s := selectedSession(t, card)
		card.on("80A80000028300", "6985")
		err := s.InitApp()
		assert.True(t, errors.Is(err, &Error{Type: ICCError, SW: 0x6985}))
		assert.Equal(t, "emv: card returned 6985: Conditions of use not satisfied", err.Error())
	})

	t.Run("No AIP", func(t *testing.T) {
		card := newFakeCard()
		s := selectedSession(t, card)
		card.on("80A80000028300", "77 06 94 04 08010100 9000")
		assert.True(t, errors.Is(s.InitApp(), ErrDataElementNotFound))
	})

	t.Run("Bad AFL", func(t *testing.T) {
		card := newFakeCard()
		s := selectedSession(t, card)
		card.on("80A80000028300", "80 05 4000 080101 9000")
		assert.True(t, errors.Is(s.InitApp(), ErrBerDecode))
		assert.Nil(t, s.AFL())
	})
}

func TestSession_ReadAppData(t *testing.T) {
	card := newFakeCard()
	s := selectedSession(t, card)
	card.on("80A80000028300", "80 06 4000 08010200 9000")
	card.on("00B2010C00", "70 0A 5A 08 4761739001010010 9000")
	card.on("00B2020C00", "70 05 9F36 02 0001 9000")

	require.True(t, errors.Is(s.ReadAppData(), ErrDataElementNotFound), "before InitApp")
	require.NoError(t, s.InitApp())
	require.NoError(t, s.ReadAppData())

	pan, err := s.Store().Value(TagPAN)
	require.NoError(t, err)
	assert.Equal(t, tlv.Hex("4761739001010010"), pan)
	assert.Equal(t, 4, s.Store().Len())
	assert.Nil(t, s.LastError())
}

func TestAIP_String(t *testing.T) {
	assert.Equal(t, "none", AIP(0).String())
	assert.Equal(t, "SDA, DDA, CDA", (AIPSDA | AIPDDA | AIPCDA).String())
	assert.Equal(t, []byte{0x7C, 0x00}, (AIPSDA | AIPDDA | AIPCVM | AIPTRM | AIPISS).Bytes())
}

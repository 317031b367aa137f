package emv

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/ccid-emv/pkg/tlv"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFCI(t *testing.T) {
	t.Run("application", func(t *testing.T) {
		fci, err := ParseFCI(tlv.Hex(
			"6F 1A",
			"84 07 A0000000041010",
			"A5 0F",
			"50 0A 4D617374657243617264", // MasterCard
			"87 01 01",
		))
		require.NoError(t, err)
		assert.Equal(t, tlv.Hex("A0000000041010"), fci.DFName)
		assert.Equal(t, "MasterCard", string(fci.ProprietaryTemplate.ApplicationLabel))
		assert.Nil(t, fci.ProprietaryTemplate.IssuerDiscretionaryData)
	})

	t.Run("directory without 6F", func(t *testing.T) {
		fci, err := ParseFCI(tlv.Hex(
			"84 0E 325041592E5359532E4444463031", // 2PAY.SYS.DDF01
			"A5 08",
			"88 01 02",
			"5F2D 02 656E",
		))
		require.NoError(t, err)
		assert.Equal(t, "2PAY.SYS.DDF01", string(fci.DFName))
		assert.Equal(t, byte(2), fci.DirectorySFI())
		assert.Equal(t, "en", string(fci.ProprietaryTemplate.LanguagePreference))
	})

	for name, data := range map[string][]byte{
		"empty":      nil,
		"truncated":  {0x6F, 0x05, 0x84},
		"short name": tlv.Hex("6F 0A 84 03 A00000 A5 03 88 01 01"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFCI(data)
			assert.True(t, errors.Is(err, ErrBerDecode), "got %v", err)
		})
	}
}

func TestFCI_Describe(t *testing.T) {
	fci, err := ParseFCI(tlv.Hex(
		"6F 31",
		"84 07 A0000000031010",
		"A5 26",
		"50 04 56495341",
		"BF0C 17",
		"5F50 0E 7777772E6D795F62616E6B2E6575",
		"99 04 11223344",
		"9F38 03 9F1A02",
	))
	require.NoError(t, err)

	want := []string{
		"=== EMV FCI TEMPLATE ===",
		`    - FCI.DFName (84): A0000000031010 (".......")`,
		`    - Proprietary.ApplicationLabel (50): 56495341 ("VISA")`,
		`    - Proprietary.PDOL (9F38): 9F1A02`,
		`    - Discretionary.IssuerURL (5F50): 7777772E6D795F62616E6B2E6575 ("www.my_bank.eu")`,
		`    - Discretionary.Unknown Tag 99: 11223344`,
	}
	if diff := cmp.Diff(want, strings.Split(fci.Describe(), "\n")); diff != "" {
		t.Errorf("Describe() mismatch (-want +got):\n%s", diff)
	}
}

func TestFCI_App(t *testing.T) {
	fci, err := ParseFCI(tlv.Hex(
		"6F 28",
		"84 07 A0000000031010",
		"A5 1D",
		"50 04 56495341",
		"87 01 81",
		"9F12 0B 5669736120437265646974", // Visa Credit
		"9F38 03 9F3704",
	))
	require.NoError(t, err)

	app := fci.App()
	assert.Equal(t, `A0000000031010 "Visa Credit" (priority 1)`, app.String())
	assert.True(t, app.ConfirmationRequired())
	assert.Equal(t, tlv.Hex("9F3704"), fci.PDOL())
	assert.Equal(t, byte(1), fci.DirectorySFI())
}

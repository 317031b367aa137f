package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/ccid-emv/pkg/ber"
	"github.com/gregLibert/ccid-emv/pkg/ccid"
	"github.com/gregLibert/ccid-emv/pkg/emv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const full = `
[reader]
backend = "usb"
vendor_id = 0x076B
product_id = 0x5421
slot = 1
bulk_timeout = "2s"
voltage = "3V"

[log]
level = "debug"
format = "json"

[terminal]
pin = "1234"
challenge = "random"

[[terminal.app]]
aid = "A0000000041010"

[terminal.data]
9F1A = "0250"
9F02 = "000000001500"

[[ca_key]]
rid = "A000000003"
index = 5
modulus = "0CA1"
exponent = "11"
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(full))
	require.NoError(t, err)

	assert.Equal(t, BackendUSB, c.Reader.Backend)
	assert.EqualValues(t, 0x076B, c.Reader.VendorID)
	assert.Equal(t, 1, c.Reader.Slot)
	assert.Equal(t, 2*time.Second, c.Reader.BulkTimeout.Duration)
	assert.Equal(t, ccid.DefaultInterruptTimeout, c.Reader.InterruptTimeout.Duration, "default kept")

	v, err := c.Voltage()
	require.NoError(t, err)
	assert.Equal(t, ccid.Voltage3V, v)

	policy, err := c.Policy()
	require.NoError(t, err)
	want := emv.Policy{Apps: []emv.TerminalApp{{AID: []byte{0xA0, 0, 0, 0, 0x04, 0x10, 0x10}}}}
	if diff := cmp.Diff(want, policy); diff != "" {
		t.Errorf("Policy() mismatch (-want +got):\n%s", diff)
	}

	data, err := c.TerminalData()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x50}, data[ber.Tag(0x9F1A)])
	assert.Len(t, data, 2)

	ks, err := c.KeyStore()
	require.NoError(t, err)
	key, err := ks.CAKey([]byte{0xA0, 0, 0, 0, 0x03}, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, key.Size())

	assert.IsType(t, emv.RandomChallenge{}, c.Challenge())

	l := c.Logger()
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)
}

func TestParse_Defaults(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)

	if diff := cmp.Diff(Default(), c); diff != "" {
		t.Errorf("Parse(nil) mismatch (-want +got):\n%s", diff)
	}
	policy, err := c.Policy()
	require.NoError(t, err)
	require.Len(t, policy.Apps, 2)
	assert.True(t, policy.Apps[0].Partial)
	assert.True(t, policy.Supports([]byte{0xA0, 0, 0, 0, 0x29, 0x10, 0x10}))
	assert.IsType(t, emv.ZeroChallenge{}, c.Challenge())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"Unknown backend", "[reader]\nbackend = \"serial\""},
		{"USB without IDs", "[reader]\nbackend = \"usb\""},
		{"Voltage", "[reader]\nvoltage = \"12V\""},
		{"Log level", "[log]\nlevel = \"loud\""},
		{"Log format", "[log]\nformat = \"xml\""},
		{"PIN", "[terminal]\npin = \"12a4\""},
		{"Challenge", "[terminal]\nchallenge = \"fixed\""},
		{"AID", "[[terminal.app]]\naid = \"A0\""},
		{"Data tag", "[terminal.data]\nXYZ = \"00\""},
		{"Data value", "[terminal.data]\n9F1A = \"0\""},
		{"CA RID", "[[ca_key]]\nrid = \"A0\"\nmodulus = \"0CA1\"\nexponent = \"11\""},
		{"CA modulus", "[[ca_key]]\nrid = \"A000000003\"\nmodulus = \"\"\nexponent = \"03\""},
		{"Unknown key", "[reader]\nport = 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}

	_, err := Parse([]byte("[reader"))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalid), "syntax errors are not validation errors")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emvtool.toml")
	require.NoError(t, os.WriteFile(path, []byte(full), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "1234", c.Terminal.PIN)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

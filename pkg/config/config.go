// Package config loads the emvtool configuration from TOML.
package config

import (
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gregLibert/ccid-emv/pkg/ber"
	"github.com/gregLibert/ccid-emv/pkg/ccid"
	"github.com/gregLibert/ccid-emv/pkg/emv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrInvalid matches every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Reader backends.
const (
	BackendPCSC = "pcsc"
	BackendUSB  = "usb"
)

// Config is the whole configuration file.
type Config struct {
	Reader   Reader   `toml:"reader"`
	Log      Log      `toml:"log"`
	Terminal Terminal `toml:"terminal"`
	CAKeys   []CAKey  `toml:"ca_key"`
}

// Reader selects and tunes the card reader.
type Reader struct {
	Backend string `toml:"backend"`

	// Name picks a PC/SC reader by name. When empty, Index is used.
	Name  string `toml:"name"`
	Index int    `toml:"index"`

	VendorID  uint16 `toml:"vendor_id"`
	ProductID uint16 `toml:"product_id"`
	Slot      int    `toml:"slot"`

	BulkTimeout      duration `toml:"bulk_timeout"`
	InterruptTimeout duration `toml:"interrupt_timeout"`
	// Voltage is one of auto, 5V, 3V or 1.8V.
	Voltage string `toml:"voltage"`
}

// Log configures logrus.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Terminal holds the terminal side of the transaction.
type Terminal struct {
	PIN  string        `toml:"pin"`
	Apps []TerminalApp `toml:"app"`
	// Challenge is zero or random.
	Challenge string `toml:"challenge"`
	// Data maps hex tags to hex values offered to data object lists.
	Data map[string]string `toml:"data"`
}

// TerminalApp is one supported application.
type TerminalApp struct {
	AID     string `toml:"aid"`
	Partial bool   `toml:"partial"`
}

// CAKey is a certification authority public key.
type CAKey struct {
	RID      string `toml:"rid"`
	Index    uint8  `toml:"index"`
	Modulus  string `toml:"modulus"`
	Exponent string `toml:"exponent"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is given: a PC/SC
// reader and the Visa and LINK applications matched on their RID.
func Default() *Config {
	return &Config{
		Reader: Reader{
			Backend:          BackendPCSC,
			BulkTimeout:      duration{ccid.DefaultBulkTimeout},
			InterruptTimeout: duration{ccid.DefaultInterruptTimeout},
			Voltage:          "auto",
		},
		Log: Log{Level: "info", Format: "text"},
		Terminal: Terminal{
			Apps: []TerminalApp{
				{AID: "A000000003", Partial: true},
				{AID: "A000000029", Partial: true},
			},
			Challenge: "zero",
		},
	}
}

// Load reads and validates the file at path on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config")
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return c, nil
}

// Parse decodes data on top of the defaults and validates the result.
// Keys the configuration does not know are rejected.
func Parse(data []byte) (*Config, error) {
	c := Default()
	// Decoding reuses slice elements, so a file listing applications must
	// not inherit fields from the default ones.
	apps := c.Terminal.Apps
	c.Terminal.Apps = nil
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, errors.Wrap(err, "config: decoding")
	}
	if !md.IsDefined("terminal", "app") {
		c.Terminal.Apps = apps
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.Wrapf(ErrInvalid, "unknown keys %s", strings.Join(keys, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalid, format, args...)
}

// Validate checks every field that the other accessors convert.
func (c *Config) Validate() error {
	switch c.Reader.Backend {
	case BackendPCSC:
	case BackendUSB:
		if c.Reader.VendorID == 0 || c.Reader.ProductID == 0 {
			return invalid("usb backend needs vendor_id and product_id")
		}
	default:
		return invalid("unknown reader backend %q", c.Reader.Backend)
	}
	if c.Reader.Index < 0 || c.Reader.Slot < 0 {
		return invalid("negative reader index or slot")
	}
	if _, err := c.Voltage(); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return invalid("log level: %v", err)
	}
	if f := c.Log.Format; f != "text" && f != "json" {
		return invalid("log format %q", f)
	}
	if c.Terminal.PIN != "" {
		if _, err := emv.PINBlock(c.Terminal.PIN); err != nil {
			return invalid("terminal pin: %v", err)
		}
	}
	if ch := c.Terminal.Challenge; ch != "zero" && ch != "random" {
		return invalid("terminal challenge %q", ch)
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if _, err := c.TerminalData(); err != nil {
		return err
	}
	_, err := c.KeyStore()
	return err
}

// Voltage returns the power-on voltage selector.
func (c *Config) Voltage() (ccid.Voltage, error) {
	switch strings.ToUpper(c.Reader.Voltage) {
	case "", "AUTO":
		return ccid.VoltageAuto, nil
	case "5V":
		return ccid.Voltage5V, nil
	case "3V":
		return ccid.Voltage3V, nil
	case "1.8V":
		return ccid.Voltage1V8, nil
	default:
		return 0, invalid("voltage %q", c.Reader.Voltage)
	}
}

// Logger builds the logrus logger described by the [log] table.
func (c *Config) Logger() *logrus.Logger {
	l := logrus.New()
	if lvl, err := logrus.ParseLevel(c.Log.Level); err == nil {
		l.SetLevel(lvl)
	}
	if c.Log.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

func decodeHex(field, s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		return nil, invalid("%s: %v", field, err)
	}
	return b, nil
}

// Policy returns the application selection policy.
func (c *Config) Policy() (emv.Policy, error) {
	var p emv.Policy
	for i, a := range c.Terminal.Apps {
		aid, err := decodeHex("terminal.app["+strconv.Itoa(i)+"].aid", a.AID)
		if err != nil {
			return emv.Policy{}, err
		}
		if len(aid) < emv.RIDLen || len(aid) > 16 {
			return emv.Policy{}, invalid("terminal.app[%d]: AID of %d bytes", i, len(aid))
		}
		p.Apps = append(p.Apps, emv.TerminalApp{AID: aid, Partial: a.Partial})
	}
	return p, nil
}

// TerminalData returns the terminal resident data objects.
func (c *Config) TerminalData() (emv.TerminalData, error) {
	d := emv.TerminalData{}
	for k, v := range c.Terminal.Data {
		tag, err := strconv.ParseUint(k, 16, 16)
		if err != nil {
			return nil, invalid("terminal.data: tag %q", k)
		}
		val, err := decodeHex("terminal.data."+k, v)
		if err != nil {
			return nil, err
		}
		d[ber.Tag(tag)] = val
	}
	return d, nil
}

// Challenge returns the unpredictable number source.
func (c *Config) Challenge() emv.ChallengeGenerator {
	if c.Terminal.Challenge == "random" {
		return emv.RandomChallenge{}
	}
	return emv.ZeroChallenge{}
}

// KeyStore returns the configured certification authority keys.
func (c *Config) KeyStore() (emv.MapKeyStore, error) {
	ks := emv.MapKeyStore{}
	for i, k := range c.CAKeys {
		field := "ca_key[" + strconv.Itoa(i) + "]"
		rid, err := decodeHex(field+".rid", k.RID)
		if err != nil {
			return nil, err
		}
		if len(rid) != emv.RIDLen {
			return nil, invalid("%s: RID of %d bytes", field, len(rid))
		}
		mod, err := decodeHex(field+".modulus", k.Modulus)
		if err != nil {
			return nil, err
		}
		exp, err := decodeHex(field+".exponent", k.Exponent)
		if err != nil {
			return nil, err
		}
		key, err := emv.NewPublicKey(mod, exp)
		if err != nil {
			return nil, invalid("%s: %v", field, err)
		}
		ks.Add(rid, k.Index, key)
	}
	return ks, nil
}

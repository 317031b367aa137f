package emv

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/gregLibert/ccid-emv/pkg/tlv"
)

// fakeCard answers each command with the reply registered for its hex
// encoding. Unknown commands get 6A83 (record not found).
type fakeCard struct {
	replies map[string][]byte
	sent    []string
}

func newFakeCard() *fakeCard {
	return &fakeCard{replies: map[string][]byte{}}
}

func (c *fakeCard) on(cmd string, reply ...string) *fakeCard {
	c.replies[strings.ReplaceAll(strings.ToUpper(cmd), " ", "")] = tlv.Hex(reply...)
	return c
}

func (c *fakeCard) onBytes(cmd string, reply []byte) *fakeCard {
	c.replies[strings.ReplaceAll(strings.ToUpper(cmd), " ", "")] = reply
	return c
}

func (c *fakeCard) Transmit(cmd []byte) ([]byte, error) {
	key := strings.ToUpper(hex.EncodeToString(cmd))
	c.sent = append(c.sent, key)
	if r, ok := c.replies[key]; ok {
		return r, nil
	}
	return []byte{0x6A, 0x83}, nil
}

func ok(data []byte) []byte {
	return append(append([]byte(nil), data...), 0x90, 0x00)
}

const (
	visaAID = "A0000000031010"
	visaFCI = "6F 11 84 07 A0000000031010 A5 06 50 04 56495341"
)

// selectedSession returns a session over card with the Visa application
// selected.
func selectedSession(t *testing.T, card *fakeCard, opts ...Option) *Session {
	t.Helper()
	card.on("00A4040007"+visaAID, visaFCI, "9000")
	s := NewSession(card, opts...)
	if err := s.SelectByName(tlv.Hex(visaAID)); err != nil {
		t.Fatalf("SelectByName() error = %v", err)
	}
	return s
}

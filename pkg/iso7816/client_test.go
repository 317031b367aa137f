package iso7816

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/ccid-emv/pkg/tlv"
)

// scriptedCard answers each command with the reply registered for its hex
// encoding and records what was sent.
type scriptedCard struct {
	replies map[string][]string
	sent    []string
}

func (s *scriptedCard) Transmit(cmd []byte) ([]byte, error) {
	key := strings.ToUpper(hex.EncodeToString(cmd))
	s.sent = append(s.sent, key)
	queue := s.replies[key]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no reply for %s", key)
	}
	s.replies[key] = queue[1:]
	return tlv.Hex(queue[0]), nil
}

func TestClient_Send(t *testing.T) {
	cls, _ := NewClass(0x00)
	emvCls, _ := NewClass(0x80)

	tests := []struct {
		name     string
		cmd      *CommandAPDU
		replies  map[string][]string
		wantSent []string
		wantData []byte
		wantSW   StatusWord
	}{
		{
			name:     "Direct success",
			cmd:      GetData(emvCls, 0x9F36),
			replies:  map[string][]string{"80CA9F3600": {"9F36020042 9000"}},
			wantSent: []string{"80CA9F3600"},
			wantData: tlv.Hex("9F36020042"),
			wantSW:   SW_NO_ERROR,
		},
		{
			name: "61xx triggers GET RESPONSE",
			cmd:  SelectByAID(cls, tlv.Hex("A0000000031010")),
			replies: map[string][]string{
				"00A4040007A0000000031010": {"6104"},
				"00C0000004":               {"6F02 8400 9000"},
			},
			wantSent: []string{"00A4040007A0000000031010", "00C0000004"},
			wantData: tlv.Hex("6F02 8400"),
			wantSW:   SW_NO_ERROR,
		},
		{
			name: "6Cxx re-sends with corrected Le",
			cmd:  ReadRecord(cls, 1, 1),
			replies: map[string][]string{
				"00B2010C00": {"6C03"},
				"00B2010C03": {"700100 9000"},
			},
			wantSent: []string{"00B2010C00", "00B2010C03"},
			wantData: tlv.Hex("700100"),
			wantSW:   SW_NO_ERROR,
		},
		{
			name:     "Error status is returned, not raised",
			cmd:      ReadRecord(cls, 1, 5),
			replies:  map[string][]string{"00B2050C00": {"6A83"}},
			wantSent: []string{"00B2050C00"},
			wantData: []byte{},
			wantSW:   SW_ERR_RECORD_NOT_FOUND,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := &scriptedCard{replies: tt.replies}
			trace, err := NewClient(card).Send(tt.cmd)
			if err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			if diff := cmp.Diff(tt.wantSent, card.sent); diff != "" {
				t.Errorf("sent commands mismatch (-want +got):\n%s", diff)
			}
			last := trace.Last().Response
			if diff := cmp.Diff(tt.wantData, last.Data); diff != "" {
				t.Errorf("response data mismatch (-want +got):\n%s", diff)
			}
			if last.Status != tt.wantSW {
				t.Errorf("status = %s, want %s", last.Status, tt.wantSW)
			}
			if len(trace) != len(tt.wantSent) {
				t.Errorf("trace has %d transactions, want %d", len(trace), len(tt.wantSent))
			}
		})
	}
}

func TestClient_SendErrors(t *testing.T) {
	cls, _ := NewClass(0x00)
	emvCls, _ := NewClass(0x80)

	t.Run("Transmit failure", func(t *testing.T) {
		card := &scriptedCard{replies: map[string][]string{}}
		if _, err := NewClient(card).Send(GetData(emvCls, 0x9F13)); err == nil {
			t.Error("Send() succeeded without a reply")
		}
	})

	t.Run("Short response", func(t *testing.T) {
		card := &scriptedCard{replies: map[string][]string{"80CA9F1300": {"90"}}}
		if _, err := NewClient(card).Send(GetData(emvCls, 0x9F13)); err == nil {
			t.Error("Send() accepted a one byte response")
		}
	})

	t.Run("Endless 6Cxx", func(t *testing.T) {
		loop := make([]string, MaxExchanges+1)
		for i := range loop {
			loop[i] = "6C00"
		}
		card := &scriptedCard{replies: map[string][]string{
			"00B2010C00": loop,
		}}
		_, err := NewClient(card).Send(ReadRecord(cls, 1, 1))
		if !errors.Is(err, ErrTooManyExchanges) {
			t.Errorf("Send() error = %v, want ErrTooManyExchanges", err)
		}
	})
}

func TestClient_Exchange(t *testing.T) {
	cls, _ := NewClass(0x00)
	card := &scriptedCard{replies: map[string][]string{"0020008008241234FFFFFFFFFF": {"63C2"}}}

	resp, err := NewClient(card).Exchange(Verify(cls, VerifyPlaintextPIN, tlv.Hex("241234FFFFFFFFFF")))
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if n, ok := resp.Status.Counter(); !ok || n != 2 {
		t.Errorf("Counter() = (%d, %v), want (2, true)", n, ok)
	}
}

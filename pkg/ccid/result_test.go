package ccid

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/ccid-emv/pkg/tlv"
)

func TestHeader_RoundTrip(t *testing.T) {
	raw := tlv.Hex("80 02010000 03 7F 41 FE 01")
	h, err := ParseHeader(raw)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}

	want := Header{Type: RDRtoPCDataBlock, Length: 0x0102, Slot: 3, Seq: 0x7F, Params: [3]byte{0x41, 0xFE, 0x01}}
	if diff := cmp.Diff(want, h); diff != "" {
		t.Fatalf("ParseHeader() mismatch (-want +got):\n%s", diff)
	}

	rp := h.Receive()
	if rp.CommandStatus() != CommandFailed {
		t.Errorf("CommandStatus() = %s, want failed", rp.CommandStatus())
	}
	if rp.ICCStatus() != SlotPresent {
		t.Errorf("ICCStatus() = %s, want present", rp.ICCStatus())
	}
	if diff := cmp.Diff(raw, h.AppendTo(nil)); diff != "" {
		t.Errorf("AppendTo() mismatch (-want +got):\n%s", diff)
	}

	if _, err := ParseHeader(raw[:9]); !errors.Is(err, ErrTruncated) {
		t.Errorf("ParseHeader(9 bytes) error = %v, want ErrTruncated", err)
	}
}

func TestCommandResult(t *testing.T) {
	tests := []struct {
		name       string
		params     ReceiveParams
		wantResult Result
		wantCode   ErrorCode
		wantReason string
	}{
		{
			name:       "Processed",
			params:     ReceiveParams{Status: 0x00, Error: 0xFE},
			wantResult: ResultSuccess,
		},
		{
			name:       "Time extension",
			params:     ReceiveParams{Status: 0x80, Error: 0x01},
			wantResult: ResultTimeExtension,
		},
		{
			name:       "Mute card",
			params:     ReceiveParams{Status: 0x41, Error: 0xFE},
			wantResult: ResultError,
			wantCode:   ErrICCMute,
			wantReason: "ICC mute (timed out)",
		},
		{
			name:       "Slot busy",
			params:     ReceiveParams{Status: 0x40, Error: 0xE0},
			wantResult: ResultError,
			wantCode:   ErrCmdSlotBusy,
			wantReason: "slot busy",
		},
		{
			name:       "Vendor code",
			params:     ReceiveParams{Status: 0x40, Error: 0x90},
			wantResult: ResultError,
			wantCode:   0x90,
			wantReason: "vendor error 0x90",
		},
		{
			name:       "Bad parameter offset",
			params:     ReceiveParams{Status: 0x40, Error: 0x07},
			wantResult: ResultError,
			wantCode:   0x07,
			wantReason: "bad parameter at offset 7",
		},
		{
			name:       "Reserved code",
			params:     ReceiveParams{Status: 0x40, Error: 0xD0},
			wantResult: ResultError,
			wantCode:   0xD0,
			wantReason: "reserved error 0xd0",
		},
		{
			name:       "RFU command status",
			params:     ReceiveParams{Status: 0xC0, Error: 0x00},
			wantResult: ResultError,
			wantCode:   ErrCmdNotSupported,
			wantReason: "command not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, code := CommandResult(tt.params)
			if res != tt.wantResult || code != tt.wantCode {
				t.Fatalf("CommandResult() = (%s, 0x%02x), want (%s, 0x%02x)", res, byte(code), tt.wantResult, byte(tt.wantCode))
			}
			if tt.wantResult == ResultError && code.String() != tt.wantReason {
				t.Errorf("ErrorCode.String() = %q, want %q", code.String(), tt.wantReason)
			}
		})
	}
}

func TestParseSlotStatus(t *testing.T) {
	tests := []struct {
		name    string
		header  Header
		want    ClockStatus
		wantErr error
	}{
		{
			name:   "Clock stopped low",
			header: Header{Type: RDRtoPCSlotStatus, Params: [3]byte{0x00, 0x00, 0x01}},
			want:   ClockStoppedLow,
		},
		{
			name:    "Data block instead",
			header:  Header{Type: RDRtoPCDataBlock},
			wantErr: ErrUnexpectedType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSlotStatus(tt.header)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseSlotStatus() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseSlotStatus() = %s, want %s", got, tt.want)
			}
		})
	}

	if _, err := ParseSlotStatus(Header{Type: RDRtoPCSlotStatus, Params: [3]byte{0, 0, 0x09}}); err == nil {
		t.Error("ParseSlotStatus(clock 0x09) succeeded")
	}
}

func TestParseDataBlock(t *testing.T) {
	chain, err := ParseDataBlock(Header{Type: RDRtoPCDataBlock, Params: [3]byte{0, 0, 0x01}})
	if err != nil || chain != 0x01 {
		t.Errorf("ParseDataBlock() = (%d, %v), want (1, nil)", chain, err)
	}
	if _, err := ParseDataBlock(Header{Type: RDRtoPCEscape}); !errors.Is(err, ErrUnexpectedType) {
		t.Errorf("ParseDataBlock(escape) error = %v, want ErrUnexpectedType", err)
	}
}

func TestParseParameters(t *testing.T) {
	tests := []struct {
		name    string
		app     byte
		payload []byte
		want    Parameters
		wantStr string
		wantErr error
	}{
		{
			name:    "T=0 defaults",
			app:     0x00,
			payload: tlv.Hex("11 00 00 0A 00"),
			want:    Parameters{Protocol: ProtocolT0, FIndex: 1, DIndex: 1, WaitingInteger: 0x0A},
			wantStr: "T=0 Fi=372 (fmax 5000 kHz) Di=1 direct convention, guard time 0, WI=10",
		},
		{
			name:    "T=1 with CRC",
			app:     0x01,
			payload: tlv.Hex("96 13 02 4D 03 FE 00"),
			want: Parameters{
				Protocol: ProtocolT1, FIndex: 9, DIndex: 6, TCCKS: 0x13, GuardTime: 2,
				WaitingInteger: 0x4D, ClockStop: 3, IFSC: 0xFE,
			},
			wantStr: "T=1 Fi=512 (fmax 5000 kHz) Di=32 inverse convention, guard time 2, CRC, BWI=4 CWI=13, IFSC=254, NAD=0x00",
		},
		{
			name:    "Short T=1 block",
			app:     0x01,
			payload: tlv.Hex("11 10 00 4D 00"),
			wantErr: ErrTruncated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Header{Type: RDRtoPCParameters, Length: uint32(len(tt.payload)), Params: [3]byte{0, 0, tt.app}}
			got, err := ParseParameters(h, tt.payload)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseParameters() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseParameters() mismatch (-want +got):\n%s", diff)
			}
			if s := got.String(); s != tt.wantStr {
				t.Errorf("String() =\n%q\nwant\n%q", s, tt.wantStr)
			}
			if diff := cmp.Diff(tt.payload, got.Marshal()); diff != "" {
				t.Errorf("Marshal() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

package ber

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/ccid-emv/pkg/tlv"
)

// A PSE directory record: 70 { 61 { 4F, 50, 87 } }, then a sibling 9F13.
var directoryRecord = tlv.Hex(
	"70 14",
	"61 12",
	"4F 07 A0000000031010",
	"50 04 56495341",
	"87 01 01",
	"9F13 01 07",
)

func TestWalk(t *testing.T) {
	var got []string
	err := Walk(directoryRecord, func(h Header, depth int, content []byte) error {
		got = append(got, fmt.Sprintf("%d:%s:%d", depth, h.Tag, len(content)))
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	want := []string{"0:70:20", "1:61:18", "2:4F:7", "2:50:4", "2:87:1", "0:9F13:1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Walk() order mismatch (-want +got):\n%s", diff)
	}
}

func TestWalk_SkipChildren(t *testing.T) {
	var got []Tag
	err := Walk(directoryRecord, func(h Header, depth int, content []byte) error {
		got = append(got, h.Tag)
		if h.Tag == 0x61 {
			return SkipChildren
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if diff := cmp.Diff([]Tag{0x70, 0x61, 0x9F13}, got); diff != "" {
		t.Errorf("Walk() mismatch (-want +got):\n%s", diff)
	}
}

func TestWalk_Errors(t *testing.T) {
	stop := errors.New("stop")
	if err := Walk(directoryRecord, func(Header, int, []byte) error { return stop }); err != stop {
		t.Errorf("Walk() error = %v, want visitor error", err)
	}

	// Inner length runs past the template.
	bad := tlv.Hex("70 04 5A 05 0102")
	if err := Walk(bad, func(Header, int, []byte) error { return nil }); !errors.Is(err, ErrBadLength) {
		t.Errorf("Walk(bad) error = %v, want ErrBadLength", err)
	}
}

func TestDump(t *testing.T) {
	var sb strings.Builder
	if err := Dump(&sb, directoryRecord); err != nil {
		t.Fatalf("Dump() error = %v", err)
	}

	want := strings.Join([]string{
		"70 application constructed len=20",
		"  61 application constructed len=18",
		"    4F application primitive len=7",
		"      0000 : .......          a0 00 00 00 03 10 10",
		"    50 application primitive len=4",
		"      0000 : VISA             56 49 53 41",
		"    87 context-specific primitive len=1",
		"      0000 : .                01",
		"9F13 context-specific primitive len=1",
		"  0000 : .                07",
		"",
	}, "\n")
	if diff := cmp.Diff(want, sb.String()); diff != "" {
		t.Errorf("Dump() mismatch (-want +got):\n%s", diff)
	}
}

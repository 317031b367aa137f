package emv

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/ccid-emv/pkg/tlv"
)

func TestPublicKey_Recover(t *testing.T) {
	// n = 3233 (61 * 53), e = 17, d = 2753.
	key, err := NewPublicKey(tlv.Hex("0CA1"), tlv.Hex("11"))
	if err != nil {
		t.Fatalf("NewPublicKey() error = %v", err)
	}
	if key.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", key.Size())
	}

	// 65^17 mod 3233 = 2790 (0x0AE6).
	got, err := key.Recover(tlv.Hex("0041"))
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if diff := cmp.Diff(tlv.Hex("0AE6"), got); diff != "" {
		t.Errorf("Recover() mismatch (-want +got):\n%s", diff)
	}

	if _, err := key.Recover(tlv.Hex("0AE6 00")); !errors.Is(err, ErrKeySizeMismatch) {
		t.Errorf("Recover(3 bytes) error = %v, want ErrKeySizeMismatch", err)
	}
	if _, err := key.Recover(tlv.Hex("FFFF")); !errors.Is(err, ErrRSARecovery) {
		t.Errorf("Recover(above modulus) error = %v, want ErrRSARecovery", err)
	}
}

func TestNewPublicKey_Zero(t *testing.T) {
	if _, err := NewPublicKey(tlv.Hex("00"), tlv.Hex("03")); !errors.Is(err, ErrRSARecovery) {
		t.Errorf("NewPublicKey(zero modulus) error = %v, want ErrRSARecovery", err)
	}
}

func TestMapKeyStore(t *testing.T) {
	key, _ := NewPublicKey(tlv.Hex("0CA1"), tlv.Hex("11"))
	rid := tlv.Hex("A000000003")

	ks := MapKeyStore{}
	ks.Add(rid, 0x92, key)

	got, err := ks.CAKey(rid, 0x92)
	if err != nil || got != key {
		t.Errorf("CAKey() = %v, %v, want the registered key", got, err)
	}
	if _, err := ks.CAKey(rid, 0x94); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("CAKey(unknown index) error = %v, want ErrKeyNotFound", err)
	}
	if _, err := ks.CAKey(tlv.Hex("A000000004"), 0x92); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("CAKey(unknown RID) error = %v, want ErrKeyNotFound", err)
	}
}

func TestChallengeGenerators(t *testing.T) {
	b := tlv.Hex("11223344")
	if err := (ZeroChallenge{}).Challenge(b); err != nil {
		t.Fatalf("ZeroChallenge error = %v", err)
	}
	if diff := cmp.Diff(make([]byte, 4), b); diff != "" {
		t.Errorf("ZeroChallenge mismatch (-want +got):\n%s", diff)
	}

	r := RandomChallenge{Reader: bytes.NewReader(tlv.Hex("CAFEBABE"))}
	if err := r.Challenge(b); err != nil {
		t.Fatalf("RandomChallenge error = %v", err)
	}
	if diff := cmp.Diff(tlv.Hex("CAFEBABE"), b); diff != "" {
		t.Errorf("RandomChallenge mismatch (-want +got):\n%s", diff)
	}
	if err := r.Challenge(b); err == nil {
		t.Error("RandomChallenge on an exhausted reader succeeded")
	}
}

package emv

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"

	"github.com/pkg/errors"
)

// PublicKey is an RSA public key used to recover signed EMV data. Only
// the raw public operation is exposed.
type PublicKey struct {
	n    *big.Int
	e    *big.Int
	size int
}

// NewPublicKey builds a key from big-endian modulus and exponent bytes.
func NewPublicKey(modulus, exponent []byte) (*PublicKey, error) {
	n := new(big.Int).SetBytes(modulus)
	e := new(big.Int).SetBytes(exponent)
	if n.Sign() == 0 || e.Sign() == 0 {
		return nil, emvErrorf(CodeRSARecovery, "zero modulus or exponent")
	}
	return &PublicKey{n: n, e: e, size: (n.BitLen() + 7) / 8}, nil
}

// Size returns the modulus length in bytes.
func (k *PublicKey) Size() int { return k.size }

// Recover applies the public exponent to b, which must be exactly as long
// as the modulus. The result has the same length.
func (k *PublicKey) Recover(b []byte) ([]byte, error) {
	if len(b) != k.size {
		return nil, emvErrorf(CodeKeySizeMismatch, "%d bytes for a %d byte modulus", len(b), k.size)
	}
	m := new(big.Int).SetBytes(b)
	if m.Cmp(k.n) >= 0 {
		return nil, emvErrorf(CodeRSARecovery, "input not below modulus")
	}
	return m.Exp(m, k.e, k.n).FillBytes(make([]byte, k.size)), nil
}

// KeyStore resolves certification authority public keys.
type KeyStore interface {
	CAKey(rid []byte, index byte) (*PublicKey, error)
}

// MapKeyStore is a KeyStore keyed by RID and key index.
type MapKeyStore map[string]*PublicKey

func caKeyID(rid []byte, index byte) string {
	return fmt.Sprintf("%X/%02X", rid, index)
}

// Add registers key under rid and index.
func (m MapKeyStore) Add(rid []byte, index byte, key *PublicKey) {
	m[caKeyID(rid, index)] = key
}

func (m MapKeyStore) CAKey(rid []byte, index byte) (*PublicKey, error) {
	k, ok := m[caKeyID(rid, index)]
	if !ok {
		return nil, emvErrorf(CodeKeyNotFound, "RID %s index %02X", hex.EncodeToString(rid), index)
	}
	return k, nil
}

// ChallengeGenerator fills the unpredictable number sent to the card.
type ChallengeGenerator interface {
	Challenge(b []byte) error
}

// ZeroChallenge leaves the unpredictable number zero filled.
type ZeroChallenge struct{}

func (ZeroChallenge) Challenge(b []byte) error {
	clear(b)
	return nil
}

// RandomChallenge draws the unpredictable number from Reader, or from
// crypto/rand when Reader is nil.
type RandomChallenge struct {
	Reader io.Reader
}

func (r RandomChallenge) Challenge(b []byte) error {
	src := r.Reader
	if src == nil {
		src = rand.Reader
	}
	if _, err := io.ReadFull(src, b); err != nil {
		return errors.Wrap(err, "reading challenge")
	}
	return nil
}

package emv

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/gregLibert/ccid-emv/pkg/ber"
	"github.com/gregLibert/ccid-emv/pkg/tlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pki is a certification authority, issuer and card key chain.
type pki struct {
	ca, issuer, icc *rsa.PrivateKey
}

var testPKI = sync.OnceValue(func() pki {
	gen := func(bits int) *rsa.PrivateKey {
		k, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			panic(err)
		}
		return k
	}
	return pki{ca: gen(1152), issuer: gen(1024), icc: gen(1024)}
})

func modulus(k *rsa.PrivateKey) []byte {
	return k.N.FillBytes(make([]byte, k.Size()))
}

func publicKey(t *testing.T, k *rsa.PrivateKey) *PublicKey {
	t.Helper()
	pub, err := NewPublicKey(modulus(k), big.NewInt(int64(k.E)).Bytes())
	require.NoError(t, err)
	return pub
}

// frame lays out body between the 6A header and the hash and BC trailer,
// padding it with BB to fill size bytes. The hash covers body and extra.
func frame(size int, body []byte, extra ...[]byte) []byte {
	body = append([]byte(nil), body...)
	for len(body) < size-2-sha1.Size {
		body = append(body, 0xBB)
	}
	h := sha1.New()
	h.Write(body)
	for _, b := range extra {
		h.Write(b)
	}
	out := append([]byte{certHeader}, body...)
	out = append(out, h.Sum(nil)...)
	return append(out, certTrailer)
}

// sign applies the private exponent to msg.
func sign(k *rsa.PrivateKey, msg []byte) []byte {
	m := new(big.Int).SetBytes(msg)
	return m.Exp(m, k.D, k.N).FillBytes(make([]byte, k.Size()))
}

func cat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

const (
	testPAN      = "4761739001010010"
	caIndex      = 0x05
	testAIP      = "6000"
	testDDOL     = "9F3704"
	testExponent = "010001"
	issuerKeyN   = 128
	iccKeyN      = 128
)

// authCard is a card whose records carry a complete, valid SDA and DDA
// data set.
type authCard struct {
	*fakeCard
	sdaData []byte
}

type authOption func(*authFixture)

type authFixture struct {
	aip      string
	ssaExtra []byte
	ddaExtra []byte
}

func withAIP(aip string) authOption { return func(f *authFixture) { f.aip = aip } }

// withBadSSA signs the static data with an extra byte appended.
func withBadSSA() authOption { return func(f *authFixture) { f.ssaExtra = []byte{0x00} } }

// withBadDDA signs a different challenge than the one sent.
func withBadDDA() authOption { return func(f *authFixture) { f.ddaExtra = tlv.Hex("FFFFFFFF") } }

func newAuthCard(t *testing.T, opts ...authOption) *authCard {
	t.Helper()
	f := authFixture{aip: testAIP, ddaExtra: tlv.Hex("00000000")}
	for _, opt := range opts {
		opt(&f)
	}
	keys := testPKI()
	aip := tlv.Hex(f.aip)
	exp := tlv.Hex(testExponent)
	pan := tlv.Hex(testPAN)

	issuerMod := modulus(keys.issuer)
	iccMod := modulus(keys.icc)
	caSize := keys.ca.Size()
	issuerKeyBytes := caSize - 36
	iccKeyBytes := issuerKeyN - 42

	issuerRem := issuerMod[issuerKeyBytes:]
	issuerCert := sign(keys.ca, frame(caSize, cat(
		[]byte{formatIssuerCert},
		tlv.Hex("476173FF", "1230", "000001"),
		[]byte{hashSHA1, 0x01, byte(len(issuerMod)), byte(len(exp))},
		issuerMod[:issuerKeyBytes],
	), issuerRem, exp))

	sdaData := cat(
		ber.Encode(TagPAN, pan),
		ber.Encode(TagExpiryDate, tlv.Hex("301231")),
		ber.Encode(TagCAKeyIndex, []byte{caIndex}),
		ber.Encode(TagIssuerExponent, exp),
		ber.Encode(TagIssuerRemainder, issuerRem),
	)

	iccRem := iccMod[iccKeyBytes:]
	iccCert := sign(keys.issuer, frame(issuerKeyN, cat(
		[]byte{formatICCCert},
		pan, tlv.Hex("FFFF"),
		tlv.Hex("1230", "000001"),
		[]byte{hashSHA1, 0x01, byte(len(iccMod)), byte(len(exp))},
		iccMod[:iccKeyBytes],
	), iccRem, exp, sdaData, aip))

	ssa := sign(keys.issuer, frame(issuerKeyN, cat(
		[]byte{formatSSA, hashSHA1},
		tlv.Hex("DAC1"),
	), sdaData, aip, f.ssaExtra))

	dynamic := sign(keys.icc, frame(iccKeyN, cat(
		[]byte{formatDynamic, hashSHA1, 0x09, 0x08},
		tlv.Hex("0102030405060708"),
	), f.ddaExtra))

	record := func(objs ...[]byte) []byte {
		return append(ber.Encode(TagRecordTemplate, cat(objs...)), 0x90, 0x00)
	}

	card := newFakeCard()
	card.on("00A4040007"+visaAID, visaFCI, "9000")
	card.on("80A80000028300", "80 06", f.aip, "08010401", "9000")
	card.onBytes("00B2010C00", record(sdaData))
	card.onBytes("00B2020C00", record(ber.Encode(TagIssuerCert, issuerCert)))
	card.onBytes("00B2030C00", record(
		ber.Encode(TagICCCert, iccCert),
		ber.Encode(TagICCExponent, exp),
		ber.Encode(TagICCRemainder, iccRem),
		ber.Encode(TagDDOL, tlv.Hex(testDDOL)),
	))
	card.onBytes("00B2040C00", record(ber.Encode(TagSignedStaticData, ssa)))
	card.onBytes("008800000400000000", ok(ber.Encode(TagResponseFormat1, dynamic)))

	return &authCard{fakeCard: card, sdaData: sdaData}
}

func caKeys(t *testing.T) MapKeyStore {
	ks := MapKeyStore{}
	ks.Add(tlv.Hex("A000000003"), caIndex, publicKey(t, testPKI().ca))
	return ks
}

// initSession selects the application and reads its data.
func initSession(t *testing.T, card *authCard, opts ...Option) *Session {
	t.Helper()
	s := NewSession(card, opts...)
	require.NoError(t, s.SelectByName(tlv.Hex(visaAID)))
	require.NoError(t, s.InitApp())
	require.NoError(t, s.ReadAppData())
	return s
}

func TestSession_OfflineDataAuthentication(t *testing.T) {
	card := newAuthCard(t)
	s := initSession(t, card, WithKeyStore(caKeys(t)))
	static, err := s.Store().SDAData()
	require.NoError(t, err)
	assert.Equal(t, card.sdaData, static)

	require.NoError(t, s.AuthenticateStatic())
	assert.True(t, s.SDAOK())
	assert.False(t, s.DDAOK())

	require.NoError(t, s.AuthenticateDynamic())
	assert.True(t, s.DDAOK())
	assert.Equal(t, "008800000400000000", card.sent[len(card.sent)-1])

	sent := len(card.sent)
	require.NoError(t, s.AuthenticateStatic())
	require.NoError(t, s.AuthenticateDynamic())
	assert.Len(t, card.sent, sent, "authentication is not repeated")

	require.NoError(t, s.SelectByName(tlv.Hex(visaAID)))
	assert.False(t, s.SDAOK(), "selection resets authentication")
}

func TestSession_DynamicAuthenticationImpliesStatic(t *testing.T) {
	card := newAuthCard(t)
	s := initSession(t, card, WithKeyStore(caKeys(t)))

	require.NoError(t, s.AuthenticateDynamic())
	assert.True(t, s.SDAOK())
	assert.True(t, s.DDAOK())
}

func TestSession_OfflineDataAuthentication_Failures(t *testing.T) {
	t.Run("Static data altered", func(t *testing.T) {
		s := initSession(t, newAuthCard(t, withBadSSA()), WithKeyStore(caKeys(t)))
		err := s.AuthenticateStatic()
		assert.True(t, errors.Is(err, ErrSSASignature), "got %v", err)
		assert.False(t, s.SDAOK())
		assert.Equal(t, err, s.LastError())
	})

	t.Run("Dynamic signature over another challenge", func(t *testing.T) {
		s := initSession(t, newAuthCard(t, withBadDDA()), WithKeyStore(caKeys(t)))
		err := s.AuthenticateDynamic()
		assert.True(t, errors.Is(err, ErrCertificate), "got %v", err)
		assert.False(t, s.DDAOK())
	})

	t.Run("Unknown CA key", func(t *testing.T) {
		s := initSession(t, newAuthCard(t))
		assert.True(t, errors.Is(s.AuthenticateStatic(), ErrKeyNotFound))
		assert.True(t, errors.Is(s.AuthenticateDynamic(), ErrKeyNotFound))
	})

	t.Run("Not supported by the card", func(t *testing.T) {
		s := initSession(t, newAuthCard(t, withAIP("0000")), WithKeyStore(caKeys(t)))
		assert.True(t, errors.Is(s.AuthenticateStatic(), ErrFuncNotSupported))
		assert.True(t, errors.Is(s.AuthenticateDynamic(), ErrFuncNotSupported))
	})

	t.Run("No application", func(t *testing.T) {
		s := NewSession(newFakeCard())
		assert.True(t, errors.Is(s.AuthenticateStatic(), ErrAppNotSelected))
	})
}

func TestCheckRecovered(t *testing.T) {
	body := cat([]byte{formatSSA, hashSHA1}, tlv.Hex("DAC1"))
	good := frame(64, body, tlv.Hex("AABB"))
	require.NoError(t, checkRecovered(good, formatSSA, 2, 26, CodeSSASignature, tlv.Hex("AABB")))

	corrupt := func(i int, b byte) []byte {
		out := append([]byte(nil), good...)
		out[i] = b
		return out
	}
	tests := []struct {
		name string
		rec  []byte
	}{
		{"Header", corrupt(0, 0x6B)},
		{"Format", corrupt(1, formatDynamic)},
		{"Hash algorithm", corrupt(2, 0x02)},
		{"Trailer", corrupt(len(good)-1, 0xBD)},
		{"Hash", corrupt(10, 0x00)},
		{"Too short", good[:20]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkRecovered(tt.rec, formatSSA, 2, 26, CodeCertificate, tlv.Hex("AABB"))
			assert.True(t, errors.Is(err, ErrCertificate), "got %v", err)
		})
	}
}

func TestRecoverIssuerKey(t *testing.T) {
	keys := testPKI()
	ca := publicKey(t, keys.ca)

	_, err := RecoverIssuerKey(ca, make([]byte, keys.ca.Size()-1), nil, tlv.Hex(testExponent), nil)
	assert.True(t, errors.Is(err, ErrKeySizeMismatch), "got %v", err)

	card := newAuthCard(t)
	s := initSession(t, card, WithKeyStore(caKeys(t)))
	cert, err := s.Store().Value(TagIssuerCert)
	require.NoError(t, err)
	rem, err := s.Store().Value(TagIssuerRemainder)
	require.NoError(t, err)

	issuer, err := RecoverIssuerKey(ca, cert, rem, tlv.Hex(testExponent), tlv.Hex(testPAN))
	require.NoError(t, err)
	assert.Equal(t, modulus(keys.issuer), issuer.n.FillBytes(make([]byte, issuer.Size())))

	// Issued for another PAN.
	_, err = RecoverIssuerKey(ca, cert, rem, tlv.Hex(testExponent), tlv.Hex("5413330089010012"))
	assert.True(t, errors.Is(err, ErrCertificate), "got %v", err)

	_, err = RecoverIssuerKey(ca, cert, rem[1:], tlv.Hex(testExponent), nil)
	assert.True(t, errors.Is(err, ErrCertificate), "short remainder: %v", err)
}

func TestIssuerMatchesPAN(t *testing.T) {
	tests := []struct {
		id, pan string
		want    bool
	}{
		{"476173FF", testPAN, true},
		{"47617390", testPAN, true},
		{"476FFFFF", testPAN, true},
		{"47FFFFFF", testPAN, false},
		{"476174FF", testPAN, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.id, tt.pan), func(t *testing.T) {
			assert.Equal(t, tt.want, issuerMatchesPAN(tlv.Hex(tt.id), tlv.Hex(tt.pan)))
		})
	}
}

package emv

import (
	"bytes"
	"crypto/sha1"

	"github.com/gregLibert/ccid-emv/pkg/ber"
	"github.com/gregLibert/ccid-emv/pkg/iso7816"
	"github.com/pkg/errors"
)

// OFFLINE DATA AUTHENTICATION:
// Signed EMV data is recovered with the raw RSA public operation and has
// the layout
//
//	6A | format | body ... | SHA-1 (20 bytes) | BC
//
// The hash covers everything between the header and the hash, followed by
// data the terminal holds separately (key remainder and exponent, the
// static data of the SDA records, the DDOL data). Keys chain from the
// certification authority to the issuer, then to the card.

const (
	certHeader  = 0x6A
	certTrailer = 0xBC
	hashSHA1    = 0x01

	formatIssuerCert = 0x02
	formatSSA        = 0x03
	formatICCCert    = 0x04
	formatDynamic    = 0x05
)

// defaultDDOL requests only the unpredictable number.
var defaultDDOL = []byte{0x9F, 0x37, 0x04}

// checkRecovered verifies the framing and hash of recovered data. The
// framing is checked before any hashing.
func checkRecovered(rec []byte, format byte, hashAt, minLen int, code Code, extra ...[]byte) error {
	n := len(rec)
	if n < minLen {
		return emvErrorf(code, "%d bytes recovered", n)
	}
	switch {
	case rec[0] != certHeader:
		return emvErrorf(code, "bad header %02X", rec[0])
	case rec[1] != format:
		return emvErrorf(code, "format %02X, want %02X", rec[1], format)
	case rec[n-1] != certTrailer:
		return emvErrorf(code, "bad trailer %02X", rec[n-1])
	case rec[hashAt] != hashSHA1:
		return emvErrorf(code, "hash algorithm %02X", rec[hashAt])
	}

	h := sha1.New()
	h.Write(rec[1 : n-sha1.Size-1])
	for _, b := range extra {
		h.Write(b)
	}
	if !bytes.Equal(h.Sum(nil), rec[n-sha1.Size-1:n-1]) {
		return emvErrorf(code, "hash mismatch")
	}
	return nil
}

// embeddedKey rebuilds a modulus from the key bytes of a certificate and
// the remainder. Key bytes that do not fill the certificate are padded
// with BB, which is dropped.
func embeddedKey(keyBytes []byte, keyLen int, rem, exp []byte) (*PublicKey, error) {
	var mod []byte
	if keyLen <= len(keyBytes) {
		mod = keyBytes[:keyLen]
	} else {
		mod = append(append(mod, keyBytes...), rem...)
	}
	if len(mod) != keyLen {
		return nil, emvErrorf(CodeCertificate, "key of %d bytes, certificate says %d", len(mod), keyLen)
	}
	return NewPublicKey(mod, exp)
}

// issuerMatchesPAN compares the issuer identifier of a certificate, digits
// padded with F, with the leading digits of the PAN.
func issuerMatchesPAN(id, pan []byte) bool {
	for i := 0; i < len(id)*2; i++ {
		d := id[i/2] >> 4
		if i%2 == 1 {
			d = id[i/2] & 0x0F
		}
		if d == 0x0F {
			return i >= 3
		}
		if i/2 >= len(pan) {
			return false
		}
		p := pan[i/2] >> 4
		if i%2 == 1 {
			p = pan[i/2] & 0x0F
		}
		if d != p {
			return false
		}
	}
	return true
}

// RecoverIssuerKey recovers the issuer public key certificate under the
// certification authority key and returns the issuer key.
func RecoverIssuerKey(ca *PublicKey, cert, rem, exp, pan []byte) (*PublicKey, error) {
	if len(cert) != ca.Size() {
		return nil, emvErrorf(CodeKeySizeMismatch, "issuer certificate of %d bytes, CA key of %d", len(cert), ca.Size())
	}
	rec, err := ca.Recover(cert)
	if err != nil {
		return nil, err
	}
	if err := checkRecovered(rec, formatIssuerCert, 11, 36, CodeCertificate, rem, exp); err != nil {
		return nil, err
	}
	if pan != nil && !issuerMatchesPAN(rec[2:6], pan) {
		return nil, emvErrorf(CodeCertificate, "issuer identifier %X does not match PAN", rec[2:6])
	}
	n := len(rec)
	return embeddedKey(rec[15:n-sha1.Size-1], int(rec[13]), rem, exp)
}

// RecoverICCKey recovers the ICC public key certificate under the issuer
// key and returns the card key. sda is the static data of the SDA records
// and aip the application interchange profile, both signed by the
// certificate.
func RecoverICCKey(issuer *PublicKey, cert, rem, exp, pan, sda, aip []byte) (*PublicKey, error) {
	if len(cert) != issuer.Size() {
		return nil, emvErrorf(CodeKeySizeMismatch, "ICC certificate of %d bytes, issuer key of %d", len(cert), issuer.Size())
	}
	rec, err := issuer.Recover(cert)
	if err != nil {
		return nil, err
	}
	if err := checkRecovered(rec, formatICCCert, 17, 42, CodeCertificate, rem, exp, sda, aip); err != nil {
		return nil, err
	}
	padded := bytes.Repeat([]byte{0xFF}, 10)
	copy(padded, pan)
	if len(pan) > 10 || !bytes.Equal(rec[2:12], padded) {
		return nil, emvErrorf(CodeCertificate, "ICC certificate PAN mismatch")
	}
	n := len(rec)
	return embeddedKey(rec[21:n-sha1.Size-1], int(rec[19]), rem, exp)
}

// VerifySSA checks signed static application data under the issuer key.
func VerifySSA(issuer *PublicKey, ssa, sda, aip []byte) error {
	if len(ssa) != issuer.Size() {
		return emvErrorf(CodeKeySizeMismatch, "SSA of %d bytes, issuer key of %d", len(ssa), issuer.Size())
	}
	rec, err := issuer.Recover(ssa)
	if err != nil {
		return err
	}
	return checkRecovered(rec, formatSSA, 2, 26, CodeSSASignature, sda, aip)
}

// VerifyDynamicSignature checks signed dynamic application data under the
// ICC key. ddolData is the data sent with INTERNAL AUTHENTICATE.
func VerifyDynamicSignature(icc *PublicKey, sig, ddolData []byte) error {
	if len(sig) != icc.Size() {
		return emvErrorf(CodeKeySizeMismatch, "signature of %d bytes, ICC key of %d", len(sig), icc.Size())
	}
	rec, err := icc.Recover(sig)
	if err != nil {
		return err
	}
	return checkRecovered(rec, formatDynamic, 2, 25, CodeCertificate, ddolData)
}

// SDAOK reports whether static data authentication succeeded.
func (s *Session) SDAOK() bool { return s.sdaOK }

// DDAOK reports whether dynamic data authentication succeeded.
func (s *Session) DDAOK() bool { return s.ddaOK }

// AuthenticateStatic performs static data authentication. It succeeds at
// once if it already did for this application.
func (s *Session) AuthenticateStatic() error {
	if s.sdaOK {
		return s.done(nil)
	}
	err := s.authenticateStatic()
	if err == nil {
		s.sdaOK = true
		s.log.Info("static data authentication succeeded")
	}
	return s.done(err)
}

func (s *Session) authenticateStatic() error {
	if s.app == nil {
		return ErrAppNotSelected
	}
	if !s.aip.Has(AIPSDA) {
		return emvErrorf(CodeFuncNotSupported, "card does not support SDA")
	}
	issuer, err := s.issuerKey()
	if err != nil {
		return err
	}
	ssa, err := s.store.Value(TagSignedStaticData)
	if err != nil {
		return err
	}
	static, err := s.store.SDAData()
	if err != nil {
		return err
	}
	return VerifySSA(issuer, ssa, static, s.aip.Bytes())
}

// AuthenticateDynamic performs dynamic data authentication: it recovers
// the card key and has the card sign the DDOL data with INTERNAL
// AUTHENTICATE. A valid ICC certificate also establishes static data
// authentication.
func (s *Session) AuthenticateDynamic() error {
	if s.ddaOK {
		return s.done(nil)
	}
	err := s.authenticateDynamic()
	if err == nil {
		s.ddaOK = true
		s.log.Info("dynamic data authentication succeeded")
	}
	return s.done(err)
}

func (s *Session) authenticateDynamic() error {
	if s.app == nil {
		return ErrAppNotSelected
	}
	if !s.aip.Has(AIPDDA) {
		return emvErrorf(CodeFuncNotSupported, "card does not support DDA")
	}
	issuer, err := s.issuerKey()
	if err != nil {
		return err
	}

	cert, err := s.store.Value(TagICCCert)
	if err != nil {
		return err
	}
	exp, err := s.store.Value(TagICCExponent)
	if err != nil {
		return err
	}
	pan, err := s.store.Value(TagPAN)
	if err != nil {
		return err
	}
	rem := s.optional(TagICCRemainder)
	static, err := s.store.SDAData()
	if err != nil {
		return err
	}

	icc, err := RecoverICCKey(issuer, cert, rem, exp, pan, static, s.aip.Bytes())
	if err != nil {
		return err
	}
	s.sdaOK = true

	ddol := s.optional(TagDDOL)
	if ddol == nil {
		ddol = defaultDDOL
	}
	data, err := ConstructDOL(ddol, s)
	if err != nil {
		return err
	}
	sig, err := s.internalAuthenticate(data)
	if err != nil {
		return err
	}
	return VerifyDynamicSignature(icc, sig, data)
}

func setSignature(b []byte, sig *[]byte) error {
	*sig = b
	return nil
}

var dynamicDataTable = ber.MustTable(
	ber.Entry[*[]byte]{Tag: TagDynamicData, Handle: setSignature},
)

var internalAuthTable = ber.MustTable(
	ber.Entry[*[]byte]{Tag: TagResponseFormat1, Handle: setSignature},
	ber.Entry[*[]byte]{Tag: TagResponseFormat2, Handle: func(b []byte, sig *[]byte) error {
		_, err := dynamicDataTable.Dispatch(b, sig)
		return err
	}},
)

func (s *Session) internalAuthenticate(data []byte) ([]byte, error) {
	resp, err := s.command(iso7816.InternalAuthenticate(s.isoCLA, data))
	if err != nil {
		return nil, err
	}
	var sig []byte
	if _, err := internalAuthTable.Dispatch(resp, &sig); err != nil {
		return nil, berError(TagDynamicData, err)
	}
	if sig == nil {
		return nil, missing(TagDynamicData)
	}
	return sig, nil
}

// issuerKey resolves the CA key named by the card and recovers the issuer
// key from its certificate.
func (s *Session) issuerKey() (*PublicKey, error) {
	idx, err := s.store.Value(TagCAKeyIndex)
	if err != nil {
		return nil, err
	}
	if len(idx) != 1 {
		return nil, berError(TagCAKeyIndex, errors.Errorf("index of %d bytes", len(idx)))
	}
	ca, err := s.keys.CAKey(s.app.RID(), idx[0])
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return nil, e
		}
		return nil, emvError(CodeKeyNotFound, err)
	}

	cert, err := s.store.Value(TagIssuerCert)
	if err != nil {
		return nil, err
	}
	exp, err := s.store.Value(TagIssuerExponent)
	if err != nil {
		return nil, err
	}
	return RecoverIssuerKey(ca, cert, s.optional(TagIssuerRemainder), exp, s.optional(TagPAN))
}

func (s *Session) optional(tag ber.Tag) []byte {
	v, _ := s.store.Value(tag)
	return v
}

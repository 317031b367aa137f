package emv

import (
	"fmt"

	"github.com/gregLibert/ccid-emv/pkg/iso7816"
	"github.com/pkg/errors"
)

// CVMMethod is the verification method of a CVM rule, without the
// continuation bit.
type CVMMethod byte

const (
	CVMFail                      CVMMethod = 0x00
	CVMPlaintextPIN              CVMMethod = 0x01
	CVMEncipheredOnlinePIN       CVMMethod = 0x02
	CVMPlaintextPINAndSignature  CVMMethod = 0x03
	CVMEncipheredPIN             CVMMethod = 0x04
	CVMEncipheredPINAndSignature CVMMethod = 0x05
	CVMSignature                 CVMMethod = 0x1E
	CVMNone                      CVMMethod = 0x1F
)

func (m CVMMethod) String() string {
	switch m {
	case CVMFail:
		return "Fail CVM processing"
	case CVMPlaintextPIN:
		return "Plaintext offline PIN"
	case CVMEncipheredOnlinePIN:
		return "Enciphered online PIN"
	case CVMPlaintextPINAndSignature:
		return "Plaintext offline PIN + paper signature"
	case CVMEncipheredPIN:
		return "Enciphered offline PIN"
	case CVMEncipheredPINAndSignature:
		return "Enciphered offline PIN + paper signature"
	case CVMSignature:
		return "Paper signature"
	case CVMNone:
		return "No CVM required"
	default:
		return "Proprietary/RFU"
	}
}

// CVMCondition says when a CVM rule applies.
type CVMCondition byte

var conditionText = [...]string{
	"always",
	"if unattended cash",
	"if not cash or cashback",
	"if terminal supports the CVM",
	"if manual cash",
	"if purchase with cashback",
	"if cash amount < X",
	"if cash amount > X",
	"if cash amount < Y",
	"if cash amount > Y",
}

func (c CVMCondition) String() string {
	if int(c) < len(conditionText) {
		return conditionText[c]
	}
	return fmt.Sprintf("condition %02X", byte(c))
}

// CVMRule is one rule of the cardholder verification method list.
type CVMRule struct {
	Method            CVMMethod
	Condition         CVMCondition
	ContinueOnFailure bool
}

func (r CVMRule) String() string {
	s := fmt.Sprintf("%s, %s", r.Method, r.Condition)
	if r.ContinueOnFailure {
		s += ", next rule on failure"
	}
	return s
}

// CVMList is the decoded value of tag 8E.
type CVMList struct {
	// X and Y are the amounts the conditions refer to, in the application
	// currency.
	X, Y  uint32
	Rules []CVMRule
}

// ParseCVMList decodes the value of tag 8E.
func ParseCVMList(b []byte) (*CVMList, error) {
	if len(b) < 8 || len(b)%2 != 0 {
		return nil, berError(TagCVMList, errors.Errorf("CVM list of %d bytes", len(b)))
	}
	l := &CVMList{
		X: uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]),
		Y: uint32(b[4])<<24 | uint32(b[5])<<16 | uint32(b[6])<<8 | uint32(b[7]),
	}
	for i := 8; i < len(b); i += 2 {
		l.Rules = append(l.Rules, CVMRule{
			Method:            CVMMethod(b[i] & 0x3F),
			ContinueOnFailure: b[i]&0x40 != 0,
			Condition:         CVMCondition(b[i+1]),
		})
	}
	return l, nil
}

// CVMList returns the cardholder verification method list read from the
// card.
func (s *Session) CVMList() (*CVMList, error) {
	v, err := s.store.Value(TagCVMList)
	if err != nil {
		return nil, s.done(err)
	}
	l, err := ParseCVMList(v)
	return l, s.done(err)
}

// PINBlock builds a plaintext offline PIN block (format 2). The PIN must
// hold 4 to 12 decimal digits.
func PINBlock(pin string) ([]byte, error) {
	if len(pin) < 4 || len(pin) > 12 {
		return nil, emvErrorf(CodeBadPinFormat, "PIN of %d digits", len(pin))
	}
	block := []byte{0x20 | byte(len(pin)), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	for i, c := range []byte(pin) {
		if c < '0' || c > '9' {
			return nil, emvErrorf(CodeBadPinFormat, "PIN has a non digit at %d", i)
		}
		d := c - '0'
		p := 1 + i/2
		if i%2 == 0 {
			block[p] = d<<4 | block[p]&0x0F
		} else {
			block[p] = block[p]&0xF0 | d
		}
	}
	return block, nil
}

// VerifyPIN presents a plaintext offline PIN. A wrong PIN fails with
// ErrBadPin carrying the number of tries left.
func (s *Session) VerifyPIN(pin string) error {
	return s.done(s.verifyPIN(pin))
}

func (s *Session) verifyPIN(pin string) error {
	if s.app == nil {
		return ErrAppNotSelected
	}
	block, err := PINBlock(pin)
	if err != nil {
		return err
	}
	resp, err := s.transmit(iso7816.Verify(s.isoCLA, iso7816.VerifyPlaintextPIN, block))
	if err != nil {
		return err
	}
	if resp.Status.IsSuccess() {
		s.log.Info("PIN verified")
		return nil
	}
	if tries, ok := resp.Status.Counter(); ok && resp.Status.SW1() == 0x63 {
		return &Error{Type: EMVError, Code: CodeBadPin, Tries: tries}
	}
	return iccError(resp.Status)
}

// PINTryCounter reads the number of PIN tries left.
func (s *Session) PINTryCounter() (int, error) {
	n, err := s.getUint(TagPINTryCounter)
	return int(n), s.done(err)
}


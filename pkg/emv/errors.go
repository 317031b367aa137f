package emv

import (
	"fmt"

	"github.com/gregLibert/ccid-emv/pkg/ber"
	"github.com/gregLibert/ccid-emv/pkg/ccid"
	"github.com/gregLibert/ccid-emv/pkg/iso7816"
	"github.com/pkg/errors"
)

// ErrorType tells which layer a session error came from.
type ErrorType int

const (
	// SystemError wraps an operating system or I/O failure.
	SystemError ErrorType = iota
	// CCIDError wraps a reader protocol failure.
	CCIDError
	// ICCError carries a status word the card answered with.
	ICCError
	// EMVError is an application level failure identified by a Code.
	EMVError
)

func (t ErrorType) String() string {
	switch t {
	case SystemError:
		return "system"
	case CCIDError:
		return "ccid"
	case ICCError:
		return "icc"
	case EMVError:
		return "emv"
	default:
		return fmt.Sprintf("ErrorType(%d)", int(t))
	}
}

// Code identifies an EMVError.
type Code int

const (
	CodeSuccess Code = iota
	CodeDataElementNotFound
	CodeBadPinFormat
	CodeFuncNotSupported
	CodeKeyNotFound
	CodeKeySizeMismatch
	CodeRSARecovery
	CodeCertificate
	CodeSSASignature
	CodeBadPin
	CodeBerDecode
	CodeAppNotSelected
)

var codeText = map[Code]string{
	CodeSuccess:             "success",
	CodeDataElementNotFound: "data element not found",
	CodeBadPinFormat:        "bad PIN format",
	CodeFuncNotSupported:    "function not supported by application",
	CodeKeyNotFound:         "CA public key not found",
	CodeKeySizeMismatch:     "key size mismatch",
	CodeRSARecovery:         "RSA recovery failed",
	CodeCertificate:         "certificate invalid",
	CodeSSASignature:        "signed static application data invalid",
	CodeBadPin:              "incorrect PIN",
	CodeBerDecode:           "BER decode error",
	CodeAppNotSelected:      "no application selected",
}

func (c Code) String() string {
	if s, ok := codeText[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// iccText holds the wording for status words commonly met during EMV
// processing. Anything else falls back to the ISO 7816 description.
var iccText = map[iso7816.StatusWord]string{
	0x6283: "Selected file invalidated",
	0x6983: "Authentication method blocked",
	0x6984: "Referenced data invalidated",
	0x6985: "Conditions of use not satisfied",
	0x6A81: "Selected function not supported",
	0x6A82: "File or application not found",
	0x6A83: "Record not found",
	0x6A84: "Not enough memory space in file",
	0x6A85: "Lc inconsistent with TLV structure",
	0x6A88: "Referenced data not found",
}

// Error is the error type of every Session operation. Compare with the
// sentinels below using errors.Is, or inspect the fields with errors.As.
type Error struct {
	Type ErrorType
	Code Code

	// SW is the card status word of an ICCError.
	SW iso7816.StatusWord
	// Tag names the missing or malformed data object, if any.
	Tag ber.Tag
	// Tries is the number of PIN tries left reported with CodeBadPin.
	Tries int

	Err error
}

func (e *Error) Error() string {
	var msg string
	switch e.Type {
	case SystemError:
		msg = "emv: system error"
	case CCIDError:
		msg = "emv: communication with ICC interrupted"
	case ICCError:
		text, ok := iccText[e.SW]
		if !ok {
			text = e.SW.Verbose()
		}
		msg = fmt.Sprintf("emv: card returned %04X: %s", uint16(e.SW), text)
	default:
		msg = "emv: " + e.Code.String()
		if e.Tag != 0 {
			msg += fmt.Sprintf(" (tag %s)", e.Tag)
		}
		if e.Code == CodeBadPin {
			msg += fmt.Sprintf(", %d tries left", e.Tries)
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors of the same type and code. An ICC sentinel with a zero
// status word matches any ICCError.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Type != e.Type {
		return false
	}
	switch e.Type {
	case EMVError:
		return t.Code == e.Code
	case ICCError:
		return t.SW == 0 || t.SW == e.SW
	default:
		return true
	}
}

// Sentinels for errors.Is.
var (
	ErrSystem              = &Error{Type: SystemError}
	ErrCCID                = &Error{Type: CCIDError}
	ErrICC                 = &Error{Type: ICCError}
	ErrDataElementNotFound = &Error{Type: EMVError, Code: CodeDataElementNotFound}
	ErrBadPinFormat        = &Error{Type: EMVError, Code: CodeBadPinFormat}
	ErrFuncNotSupported    = &Error{Type: EMVError, Code: CodeFuncNotSupported}
	ErrKeyNotFound         = &Error{Type: EMVError, Code: CodeKeyNotFound}
	ErrKeySizeMismatch     = &Error{Type: EMVError, Code: CodeKeySizeMismatch}
	ErrRSARecovery         = &Error{Type: EMVError, Code: CodeRSARecovery}
	ErrCertificate         = &Error{Type: EMVError, Code: CodeCertificate}
	ErrSSASignature        = &Error{Type: EMVError, Code: CodeSSASignature}
	ErrBadPin              = &Error{Type: EMVError, Code: CodeBadPin}
	ErrBerDecode           = &Error{Type: EMVError, Code: CodeBerDecode}
	ErrAppNotSelected      = &Error{Type: EMVError, Code: CodeAppNotSelected}
)

func emvError(code Code, err error) *Error {
	return &Error{Type: EMVError, Code: code, Err: err}
}

func emvErrorf(code Code, format string, args ...interface{}) *Error {
	return emvError(code, errors.Errorf(format, args...))
}

func missing(tag ber.Tag) *Error {
	return &Error{Type: EMVError, Code: CodeDataElementNotFound, Tag: tag}
}

func iccError(sw iso7816.StatusWord) *Error {
	return &Error{Type: ICCError, SW: sw}
}

func berError(tag ber.Tag, err error) *Error {
	return &Error{Type: EMVError, Code: CodeBerDecode, Tag: tag, Err: err}
}

var protocolErrors = []error{
	ccid.ErrTruncated,
	ccid.ErrLengthMismatch,
	ccid.ErrSlotMismatch,
	ccid.ErrSequenceMismatch,
	ccid.ErrTimeExtension,
	ccid.ErrCommandFailed,
	ccid.ErrUnexpectedType,
	ccid.ErrUnsupported,
}

// transportError classifies a failure of the card connection. Reader
// protocol violations are CCIDErrors; anything else, including USB and
// PC/SC failures, is a SystemError.
func transportError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	for _, target := range protocolErrors {
		if errors.Is(err, target) {
			return &Error{Type: CCIDError, Err: err}
		}
	}
	return &Error{Type: SystemError, Err: err}
}

func errUnexpectedTag(tag ber.Tag) error {
	return errors.Errorf("unexpected tag %s", tag)
}

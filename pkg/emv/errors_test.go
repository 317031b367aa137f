package emv

import (
	"io"
	"testing"

	"github.com/gregLibert/ccid-emv/pkg/ccid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestError_Is(t *testing.T) {
	wrapped := errors.Wrap(missing(TagPAN), "reading PAN")

	assert.True(t, errors.Is(wrapped, ErrDataElementNotFound))
	assert.False(t, errors.Is(wrapped, ErrBerDecode))
	assert.False(t, errors.Is(wrapped, ErrICC))

	icc := iccError(0x6A82)
	assert.True(t, errors.Is(icc, ErrICC))
	assert.True(t, errors.Is(icc, &Error{Type: ICCError, SW: 0x6A82}))
	assert.False(t, errors.Is(icc, &Error{Type: ICCError, SW: 0x6A83}))

	var e *Error
	assert.True(t, errors.As(wrapped, &e))
	assert.Equal(t, TagPAN, e.Tag)
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{missing(TagPAN), "emv: data element not found (tag 5A)"},
		{iccError(0x6A82), "emv: card returned 6A82: File or application not found"},
		{&Error{Type: EMVError, Code: CodeBadPin, Tries: 1}, "emv: incorrect PIN, 1 tries left"},
		{&Error{Type: SystemError, Err: io.EOF}, "emv: system error: EOF"},
		{&Error{Type: CCIDError}, "emv: communication with ICC interrupted"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *Error
	}{
		{"Reader protocol", errors.Wrap(ccid.ErrSlotMismatch, "transmission error"), ErrCCID},
		{"Time extension", ccid.ErrTimeExtension, ErrCCID},
		{"I/O", errors.Wrap(io.ErrUnexpectedEOF, "usb"), ErrSystem},
		{"Already classified", iccError(0x6985), ErrICC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := transportError(tt.err)
			assert.True(t, errors.Is(got, tt.want), "got %v", got)
			assert.True(t, errors.Is(got, tt.err) || got == tt.err)
		})
	}
}

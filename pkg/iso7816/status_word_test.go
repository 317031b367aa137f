package iso7816

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusWord_Classes(t *testing.T) {
	tests := []struct {
		sw                        StatusWord
		success, warning, failure bool
		trigger, counter          bool
	}{
		{sw: SW_NO_ERROR, success: true},
		{sw: NewStatusWord(0x61, 0x10), success: true},
		{sw: SW_WARN_EOF_REACHED, warning: true},
		{sw: NewStatusWord(0x62, 0x02), warning: true, trigger: true},
		{sw: NewStatusWord(0x62, 0x80), warning: true, trigger: true},
		{sw: NewStatusWord(0x62, 0x81), warning: true},
		{sw: NewStatusWord(0x63, 0xC0), warning: true, counter: true},
		{sw: NewStatusWord(0x63, 0xCF), warning: true, counter: true},
		{sw: NewStatusWord(0x63, 0x81), warning: true},
		{sw: NewStatusWord(0x64, 0x10), failure: true, trigger: true},
		{sw: SW_ERR_WRONG_LENGTH, failure: true},
		{sw: SW_ERR_FILE_NOT_FOUND, failure: true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.success, tt.sw.IsSuccess(), "%04X success", uint16(tt.sw))
		assert.Equal(t, tt.warning, tt.sw.IsWarning(), "%04X warning", uint16(tt.sw))
		assert.Equal(t, tt.failure, tt.sw.IsError(), "%04X error", uint16(tt.sw))
		assert.Equal(t, tt.trigger, tt.sw.IsTriggeringByCard(), "%04X triggering", uint16(tt.sw))
		assert.Equal(t, tt.counter, tt.sw.IsCounter(), "%04X counter", uint16(tt.sw))
	}
}

func TestStatusWord_Counter(t *testing.T) {
	n, ok := NewStatusWord(0x63, 0xC2).Counter()
	assert.True(t, ok)
	assert.Equal(t, 2, int(n))

	_, ok = SW_ERR_AUTH_METHOD_BLOCKED.Counter()
	assert.False(t, ok)
}

func TestStatusWord_Text(t *testing.T) {
	assert.Equal(t, "SW_NO_ERROR", SW_NO_ERROR.String())
	assert.Equal(t, "SW_ERR_SECURITY_STATUS_NOT_SAT", SW_ERR_SECURITY_STATUS_NOT_SAT.String())
	assert.Equal(t, "StatusWord(0x9100)", NewStatusWord(0x91, 0x00).String())

	for sw, part := range map[StatusWord]string{
		NewStatusWord(0x63, 0xC3): "counter = 3",
		NewStatusWord(0x61, 0x20): "32 bytes available",
		NewStatusWord(0x6C, 0x05): "correct Le is 5",
		SW_ERR_FILE_NOT_FOUND:     "SW_ERR_FILE_NOT_FOUND",
		NewStatusWord(0x6A, 0x90): "[6A90] Checking Error: Wrong parameters",
	} {
		assert.Contains(t, sw.Verbose(), part)
	}
}

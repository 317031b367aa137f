package tlv

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// Hex joins the hex fragments, ignoring white space, and decodes them.
// It panics on malformed input and is meant for fixtures and constants.
func Hex(parts ...string) []byte {
	s := strings.Join(strings.Fields(strings.Join(parts, " ")), "")
	b, err := hex.DecodeString(s)
	if err != nil {
		panic("tlv: bad hex " + strconv.Quote(s) + ": " + err.Error())
	}
	return b
}

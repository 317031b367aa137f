// Package bits holds the small bit helpers shared by the CCID, ISO 7816
// and EMV decoders.
//
// Bits are numbered from 1 (least significant) to 8 (most significant),
// matching the b8..b1 notation used throughout ISO 7816, the CCID class
// specification and the EMV books, so that a table such as "AIP byte 1,
// b6 = DDA supported" translates to IsSet(aip[0], 6) without mental
// arithmetic.
package bits

// Bit returns a byte with bit n set, or 0 when n is outside 1..8.
func Bit(n uint) byte {
	if n < 1 || n > 8 {
		return 0
	}
	return 1 << (n - 1)
}

func IsSet(b byte, n uint) bool {
	return b&Bit(n) != 0
}

// GetRange returns bits high..low of b shifted down, so that
// GetRange(0x0C, 4, 3) is 3. Invalid ranges give 0.
func GetRange(b byte, high, low uint) byte {
	if high < low || high > 8 || low < 1 {
		return 0
	}
	mask := byte(1<<(high-low+1) - 1)
	return b >> (low - 1) & mask
}

// Set returns b with bit n raised.
func Set(b byte, n uint) byte {
	return b | Bit(n)
}

// Clear returns b with bit n lowered.
func Clear(b byte, n uint) byte {
	return b &^ Bit(n)
}

package ber

// AppendTLV appends the minimal definite-length encoding of tag and
// content to dst.
func AppendTLV(dst []byte, tag Tag, content []byte) []byte {
	if tag > 0xFF {
		dst = append(dst, byte(tag>>8))
	}
	dst = append(dst, byte(tag))
	dst = AppendLength(dst, len(content))
	return append(dst, content...)
}

// Encode returns the encoding of a single data object.
func Encode(tag Tag, content []byte) []byte {
	return AppendTLV(make([]byte, 0, tag.Len()+5+len(content)), tag, content)
}

// AppendLength appends a definite length: one octet below 128, otherwise
// 0x8N followed by N big-endian octets.
func AppendLength(dst []byte, n int) []byte {
	if n < 0x80 {
		return append(dst, byte(n))
	}
	var octets [maxLengthOctets]byte
	i := len(octets)
	for v := uint32(n); v > 0; v >>= 8 {
		i--
		octets[i] = byte(v)
	}
	dst = append(dst, 0x80|byte(len(octets)-i))
	return append(dst, octets[i:]...)
}

package iso7816

// GET DATA (INS 'CA') retrieves a primitive data object addressed by its
// tag in P1-P2. VERIFY (INS '20') presents reference data (a PIN) with the
// qualifier in P2. INTERNAL AUTHENTICATE (INS '88') asks the card to sign a
// challenge.

// VerifyPlaintextPIN is the P2 qualifier for a plaintext PIN block (EMV).
const VerifyPlaintextPIN byte = 0x80

// GetData reads the data object identified by a one or two byte tag.
func GetData(cla Class, tag uint16) *CommandAPDU {
	ins, _ := NewInstruction(INS_GET_DATA)
	return NewCommandAPDU(cla, ins, byte(tag>>8), byte(tag), nil, MaxShortLe)
}

// Verify presents reference data for the qualifier p2.
func Verify(cla Class, p2 byte, data []byte) *CommandAPDU {
	ins, _ := NewInstruction(INS_VERIFY)
	return NewCommandAPDU(cla, ins, 0x00, p2, data, 0)
}

// InternalAuthenticate sends authentication data to be signed by the card.
func InternalAuthenticate(cla Class, data []byte) *CommandAPDU {
	ins, _ := NewInstruction(INS_INTERNAL_AUTHENTICATE)
	return NewCommandAPDU(cla, ins, 0x00, 0x00, data, 0)
}

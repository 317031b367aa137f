package iso7816

import "fmt"

// READ RECORD (B2):
// P1 is a record number or identifier. P2 carries the SFI in bits 8-4
// (0 for the current EF) and the mode in bits 3-1; bit 3 set means P1 is a
// record number.

// RecordMode is the low three bits of the READ RECORD P2.
type RecordMode byte

const (
	RecordIDFirst    RecordMode = 0b000
	RecordIDLast     RecordMode = 0b001
	RecordIDNext     RecordMode = 0b010
	RecordIDPrevious RecordMode = 0b011

	RecordNumber      RecordMode = 0b100
	RecordsFromNumber RecordMode = 0b101
	RecordsToNumber   RecordMode = 0b110
)

var recordModeNames = map[RecordMode]string{
	RecordIDFirst:     "first occurrence of ID",
	RecordIDLast:      "last occurrence of ID",
	RecordIDNext:      "next occurrence of ID",
	RecordIDPrevious:  "previous occurrence of ID",
	RecordNumber:      "record P1",
	RecordsFromNumber: "records from P1 to last",
	RecordsToNumber:   "records from last to P1",
}

func (m RecordMode) String() string {
	if s, ok := recordModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("RecordMode(%03b)", byte(m))
}

// NewReadRecordCommand builds READ RECORD with Le 00, so the card answers
// with the whole record.
func NewReadRecordCommand(cla Class, sfi, p1 byte, mode RecordMode) *CommandAPDU {
	ins, _ := NewInstruction(INS_READ_RECORD)
	return NewCommandAPDU(cla, ins, p1, sfi<<3|byte(mode&0x07), nil, MaxShortLe)
}

// ReadRecord reads record number rec of sfi.
func ReadRecord(cla Class, sfi, rec byte) *CommandAPDU {
	return NewReadRecordCommand(cla, sfi, rec, RecordNumber)
}

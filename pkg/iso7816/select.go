package iso7816

import "fmt"

// SELECT (A4):
// P1 says how the target is named. P2 bits 4-3 choose the answer (FCI,
// FCP, FMD or nothing) and bits 2-1 the occurrence when several files
// share a partial name.

// SelectionMethod is the SELECT P1.
type SelectionMethod byte

const (
	SelectByFileID   SelectionMethod = 0x00
	SelectByDFName   SelectionMethod = 0x04
	SelectPathFromMF SelectionMethod = 0x08
)

// FileOccurrence is SELECT P2 bits 2-1.
type FileOccurrence byte

const (
	FirstOrOnlyOccurrence FileOccurrence = 0b00
	LastOccurrence        FileOccurrence = 0b01
	NextOccurrence        FileOccurrence = 0b10
	PreviousOccurrence    FileOccurrence = 0b11
)

var occurrenceNames = [...]string{"first", "last", "next", "previous"}

func (f FileOccurrence) String() string {
	if int(f) < len(occurrenceNames) {
		return occurrenceNames[f]
	}
	return fmt.Sprintf("FileOccurrence(%d)", byte(f))
}

// SelectionControl is SELECT P2 bits 4-3.
type SelectionControl byte

const (
	ReturnFCI    SelectionControl = 0b0000
	ReturnFCP    SelectionControl = 0b0100
	ReturnFMD    SelectionControl = 0b1000
	ReturnNoData SelectionControl = 0b1100
)

// NewSelectCommand builds SELECT. A command carrying a name has no Le:
// T=0 cannot send Lc and Le together, and the card's 61xx answer is
// handled by the Client.
func NewSelectCommand(cla Class, method SelectionMethod, occ FileOccurrence, ctrl SelectionControl, name []byte) *CommandAPDU {
	ne := 0
	if len(name) == 0 && ctrl != ReturnNoData {
		ne = MaxShortLe
	}
	ins, _ := NewInstruction(INS_SELECT)
	return NewCommandAPDU(cla, ins, byte(method), byte(ctrl)|byte(occ&0b11), name, ne)
}

// SelectByAID selects the first application or DF named aid.
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectByDFName, FirstOrOnlyOccurrence, ReturnFCI, aid)
}

// SelectNextByAID selects the next application whose name starts with aid.
// Repeating it walks every application matching a partial AID.
func SelectNextByAID(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectByDFName, NextOccurrence, ReturnFCI, aid)
}

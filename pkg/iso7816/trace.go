package iso7816

import (
	"fmt"
	"strings"
)

// Transaction is one command APDU and the card's answer.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess reports whether the answer is present and successful.
func (t *Transaction) IsSuccess() bool {
	return t.Response != nil && t.Response.Status.IsSuccess()
}

func (t Transaction) String() string {
	ins := "??"
	if t.Command != nil {
		ins = fmt.Sprintf("%02X", byte(t.Command.Instruction.Raw))
	}
	if t.Response == nil {
		return ins + " -> (none)"
	}
	return fmt.Sprintf("%s -> %04X", ins, uint16(t.Response.Status))
}

// Trace is every transaction of one logical exchange: the command, then
// any GET RESPONSE (61xx) or Le correction (6Cxx) the client issued.
type Trace []Transaction

// Last returns the final transaction, or nil for an empty trace.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess reports the outcome of the final transaction.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	return last != nil && last.IsSuccess()
}

// String lists the instruction and status of each step, as in
// "A4 -> 6120, C0 -> 9000".
func (t Trace) String() string {
	steps := make([]string, len(t))
	for i, tx := range t {
		steps[i] = tx.String()
	}
	return strings.Join(steps, ", ")
}

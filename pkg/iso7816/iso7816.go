/*
Package iso7816 builds and exchanges ISO/IEC 7816-4 APDUs.

A command APDU is a CLA/INS/P1/P2 header with optional data and an
expected response length (Ne). The card answers with optional data and a
two byte status word. Constructors cover the commands an EMV terminal
sends: SELECT, READ RECORD, GET DATA, VERIFY, INTERNAL AUTHENTICATE, GET
PROCESSING OPTIONS and GENERATE AC.

Client sits on any Transmitter (a PC/SC card or a CCID slot) and hides
the T=0 transport rules from callers:

  - 61xx: XX more bytes are waiting; the client sends GET RESPONSE.
  - 6Cxx: Le was wrong; the client repeats the command with Le = XX.

Send returns the whole Trace of one logical exchange; Exchange returns
only the final response:

	client := iso7816.NewClient(card, iso7816.WithLogger(log))
	cla, _ := iso7816.NewClass(0x00)
	resp, err := client.Exchange(iso7816.SelectByAID(cla, aid))
	if err != nil {
		return err
	}
	if !resp.Status.IsSuccess() {
		return fmt.Errorf("select: %s", resp.Status.Verbose())
	}
*/
package iso7816

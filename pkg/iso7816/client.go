package iso7816

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CLIENT & PROTOCOL LOGIC:
// The Client acts as a high-level driver over the physical connection.
// It implements the automatic handling of ISO 7816-3 transport behaviors that are
// often exposed to the application layer in T=0 protocols:
//
// 1. "61 XX" (Response Available):
//    The card indicates that XX bytes are waiting. The client automatically generates
//    and sends a GET RESPONSE command to retrieve them.
//
// 2. "6C XX" (Wrong Length):
//    The card indicates that the expected length (Le) was incorrect and suggests XX.
//    The client automatically re-sends the original command with Le = XX.
//
// The Send() method returns a Trace, which is a log of all atomic transactions
// occurred to fulfill the logical request.

// MaxExchanges bounds the number of transactions one Send may chain through
// 61xx/6Cxx handling.
const MaxExchanges = 32

// ErrTooManyExchanges is returned when a card keeps answering 61xx or 6Cxx.
var ErrTooManyExchanges = errors.New("iso7816: too many chained exchanges")

// Transmitter abstracts the physical card connection.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Client manages the high-level communication with the card.
type Client struct {
	Card Transmitter
	Log  logrus.FieldLogger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger used to trace every exchange at debug level.
func WithLogger(l logrus.FieldLogger) ClientOption {
	return func(c *Client) { c.Log = l }
}

// NewClient creates a new Client instance.
func NewClient(card Transmitter, opts ...ClientOption) *Client {
	c := &Client{Card: card}
	for _, opt := range opts {
		opt(c)
	}
	if c.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.Log = l
	}
	return c
}

// Send transmits a command and handles protocol logic (61xx, 6Cxx).
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	var trace Trace
	for {
		if len(trace) == MaxExchanges {
			return trace, ErrTooManyExchanges
		}

		resp, err := c.exchange(cmd)
		if err != nil {
			return trace, err
		}
		trace = append(trace, Transaction{Command: cmd, Response: resp})

		sw1, sw2 := resp.Status.SW1(), resp.Status.SW2()
		switch sw1 {
		case 0x61:
			// GET RESPONSE stays on the logical channel of the original command.
			cls := cmd.Class
			cls.IsChained = false
			ins, _ := NewInstruction(INS_GET_RESPONSE)
			ne := int(sw2)
			if ne == 0 {
				ne = MaxShortLe
			}
			cmd = NewCommandAPDU(cls, ins, 0x00, 0x00, nil, ne)
		case 0x6C:
			retry := *cmd
			retry.Ne = int(sw2)
			if retry.Ne == 0 {
				retry.Ne = MaxShortLe
			}
			cmd = &retry
		default:
			return trace, nil
		}
	}
}

// Exchange sends cmd and returns the final response of the trace.
func (c *Client) Exchange(cmd *CommandAPDU) (*ResponseAPDU, error) {
	trace, err := c.Send(cmd)
	if err != nil {
		return nil, err
	}
	if len(trace) > 1 {
		c.Log.WithField("steps", len(trace)).Debugf("chained exchange %s", trace)
	}
	return trace.Last().Response, nil
}

func (c *Client) exchange(cmd *CommandAPDU) (*ResponseAPDU, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		return nil, errors.Wrap(err, "encoding error")
	}

	c.Log.WithFields(logrus.Fields{
		"ins": cmd.Instruction.Raw,
		"len": len(raw),
	}).Debugf("xmit %X", raw)

	rawResp, err := c.Card.Transmit(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "transmission error (%s)", cmd.Instruction.Raw)
	}

	resp, err := ParseResponseAPDU(rawResp)
	if err != nil {
		return nil, err
	}

	c.Log.WithFields(logrus.Fields{
		"sw":  resp.Status,
		"len": len(resp.Data),
	}).Debugf("recv %X", rawResp)

	return resp, nil
}

// Package emv runs the card side of an EMV contact transaction: application
// selection, reading application data, offline data authentication and
// cardholder verification.
package emv

import (
	"io"

	"github.com/google/uuid"
	"github.com/gregLibert/ccid-emv/pkg/ber"
	"github.com/gregLibert/ccid-emv/pkg/iso7816"
	"github.com/sirupsen/logrus"
)

// Session is one EMV dialogue with a card. It is not safe for concurrent
// use.
type Session struct {
	id     uuid.UUID
	log    logrus.FieldLogger
	client *iso7816.Client

	// isoCLA carries interindustry commands, emvCLA the proprietary ones.
	isoCLA iso7816.Class
	emvCLA iso7816.Class

	keys      KeyStore
	challenge ChallengeGenerator
	terminal  TerminalData

	app   *App
	fci   *FCI
	aip   AIP
	afl   []AFLEntry
	store *DataStore

	sdaOK, ddaOK bool
	lastErr      error
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. Every entry carries the session id.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Session) { s.log = l }
}

// WithKeyStore sets the certification authority keys used by offline data
// authentication.
func WithKeyStore(k KeyStore) Option {
	return func(s *Session) { s.keys = k }
}

// WithChallenge sets the source of unpredictable numbers. The default
// leaves them zero filled.
func WithChallenge(c ChallengeGenerator) Option {
	return func(s *Session) { s.challenge = c }
}

// WithTerminalData sets terminal resident data offered to data object
// lists.
func WithTerminalData(d TerminalData) Option {
	return func(s *Session) { s.terminal = d }
}

// NewSession starts a session over card.
func NewSession(card iso7816.Transmitter, opts ...Option) *Session {
	s := &Session{
		id:        uuid.New(),
		keys:      MapKeyStore{},
		challenge: ZeroChallenge{},
		terminal:  TerminalData{},
		store:     NewDataStore(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		s.log = l
	}
	s.log = s.log.WithField("session", s.id.String())
	s.client = iso7816.NewClient(card, iso7816.WithLogger(s.log))
	s.isoCLA, _ = iso7816.NewClass(0x00)
	s.emvCLA, _ = iso7816.NewClass(0x80)
	return s
}

// ID returns the session identifier used in log entries.
func (s *Session) ID() uuid.UUID { return s.id }

// LastError returns the error of the last failed operation, or nil if the
// last operation succeeded.
func (s *Session) LastError() error { return s.lastErr }

// Store returns the application data read so far.
func (s *Session) Store() *DataStore { return s.store }

// CurrentApp returns the selected application, or nil.
func (s *Session) CurrentApp() *App { return s.app }

// FCI returns the FCI of the selected application, or nil.
func (s *Session) FCI() *FCI { return s.fci }

// AIP returns the application interchange profile from InitApp.
func (s *Session) AIP() AIP { return s.aip }

// AFL returns the application file locator from InitApp.
func (s *Session) AFL() []AFLEntry { return s.afl }

func (s *Session) done(err error) error {
	s.lastErr = err
	if err != nil {
		s.log.WithError(err).Debug("operation failed")
	}
	return err
}

// transmit sends cmd and returns the final response whatever its status.
func (s *Session) transmit(cmd *iso7816.CommandAPDU) (*iso7816.ResponseAPDU, error) {
	resp, err := s.client.Exchange(cmd)
	if err != nil {
		return nil, transportError(err)
	}
	return resp, nil
}

// command sends cmd and returns the response data of a 9000 answer.
func (s *Session) command(cmd *iso7816.CommandAPDU) ([]byte, error) {
	resp, err := s.transmit(cmd)
	if err != nil {
		return nil, err
	}
	if !resp.Status.IsSuccess() {
		return nil, iccError(resp.Status)
	}
	return resp.Data, nil
}

// ReadRecord reads one record of the current application.
func (s *Session) ReadRecord(sfi, rec byte) ([]byte, error) {
	return s.command(iso7816.ReadRecord(s.isoCLA, sfi, rec))
}

// getData reads a primitive object with GET DATA and returns its value.
func (s *Session) getData(tag ber.Tag) ([]byte, error) {
	data, err := s.command(iso7816.GetData(s.emvCLA, uint16(tag)))
	if err != nil {
		return nil, err
	}
	b, _, err := ber.DecodeBlock(data)
	if err != nil {
		return nil, berError(tag, err)
	}
	if b.Tag != tag {
		return nil, berError(tag, errUnexpectedTag(b.Tag))
	}
	return b.Content, nil
}

// DOLValue resolves data object list entries from the terminal data, then
// from the card data read so far. The unpredictable number is drawn from
// the challenge generator.
func (s *Session) DOLValue(tag ber.Tag) ([]byte, bool) {
	if tag == TagUnpredictableNumber {
		if v, ok := s.terminal[tag]; ok {
			return v, true
		}
		un := make([]byte, 4)
		if err := s.challenge.Challenge(un); err != nil {
			s.log.WithError(err).Warn("challenge generator failed, using zeros")
			clear(un)
		}
		return un, true
	}
	if v, ok := s.terminal.DOLValue(tag); ok {
		return v, true
	}
	if el, ok := s.store.Retrieve(tag); ok && !el.Composite() {
		return el.Value(), true
	}
	if tag == TagAIP && s.app != nil && s.aip != 0 {
		return s.aip.Bytes(), true
	}
	return nil, false
}

func (s *Session) getUint(tag ber.Tag) (uint64, error) {
	v, err := s.getData(tag)
	if err != nil {
		return 0, err
	}
	n, err := ber.Uint(v)
	if err != nil {
		return 0, berError(tag, err)
	}
	return n, nil
}

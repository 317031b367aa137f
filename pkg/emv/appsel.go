package emv

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"

	"github.com/gregLibert/ccid-emv/pkg/iso7816"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PSEName is the DF name of the payment system environment.
const PSEName = "1PAY.SYS.DDF01"

// RIDLen is the length of a registered application provider identifier.
const RIDLen = 5

// App is an application found on the card.
type App struct {
	aid       []byte
	label     string
	preferred string
	priority  byte
}

// NewApp describes an application known only by its AID.
func NewApp(aid []byte) *App {
	return &App{aid: append([]byte(nil), aid...)}
}

// AID returns the application identifier.
func (a *App) AID() []byte { return a.aid }

// RID returns the registered provider part of the AID.
func (a *App) RID() []byte {
	if len(a.aid) < RIDLen {
		return a.aid
	}
	return a.aid[:RIDLen]
}

// Label returns the application label.
func (a *App) Label() string { return a.label }

// PreferredName returns the application preferred name, which may be empty.
func (a *App) PreferredName() string { return a.preferred }

// Name returns the preferred name if the card sets one, else the label.
func (a *App) Name() string {
	if a.preferred != "" {
		return a.preferred
	}
	return a.label
}

// Priority returns the priority rank. 1 is the highest, 0 means no
// priority.
func (a *App) Priority() int { return int(a.priority & 0x7F) }

// ConfirmationRequired reports whether the cardholder must confirm the
// selection.
func (a *App) ConfirmationRequired() bool { return a.priority&0x80 != 0 }

func (a *App) String() string {
	return fmt.Sprintf("%X %q (priority %d)", a.aid, a.Name(), a.Priority())
}

// AppList holds the applications of the payment system directory in the
// order the card lists them.
type AppList struct {
	apps []*App
}

// Len returns the number of applications.
func (l *AppList) Len() int { return len(l.apps) }

// Apps returns the applications in order.
func (l *AppList) Apps() []*App { return l.apps }

// First returns the first application, or nil.
func (l *AppList) First() *App {
	if len(l.apps) == 0 {
		return nil
	}
	return l.apps[0]
}

// Next returns the application after app, or nil.
func (l *AppList) Next(app *App) *App {
	i := slices.Index(l.apps, app)
	if i < 0 || i+1 >= len(l.apps) {
		return nil
	}
	return l.apps[i+1]
}

// Remove drops app from the list.
func (l *AppList) Remove(app *App) {
	l.apps = slices.DeleteFunc(l.apps, func(a *App) bool { return a == app })
}

// Filter keeps the applications for which keep returns true.
func (l *AppList) Filter(keep func(*App) bool) {
	l.apps = slices.DeleteFunc(l.apps, func(a *App) bool { return !keep(a) })
}

// TerminalApp is an application the terminal supports.
type TerminalApp struct {
	AID []byte
	// Partial accepts any card application of the same RID.
	Partial bool
}

// Matches reports whether the card application is acceptable.
func (t TerminalApp) Matches(aid []byte) bool {
	if t.Partial {
		n := min(len(t.AID), RIDLen)
		return len(aid) >= n && bytes.Equal(aid[:n], t.AID[:n])
	}
	return bytes.Equal(aid, t.AID)
}

// Policy is the terminal application selection policy.
type Policy struct {
	Apps []TerminalApp
}

// Supports reports whether any terminal application matches aid.
func (p Policy) Supports(aid []byte) bool {
	return slices.ContainsFunc(p.Apps, func(t TerminalApp) bool { return t.Matches(aid) })
}

// SelectByName selects the application or directory named name.
func (s *Session) SelectByName(name []byte) error {
	return s.done(s.selectCmd(iso7816.SelectByAID(s.isoCLA, name)))
}

// SelectNext selects the next application whose name starts with name.
func (s *Session) SelectNext(name []byte) error {
	return s.done(s.selectCmd(iso7816.SelectNextByAID(s.isoCLA, name)))
}

// SelectApp selects an application listed by the directory.
func (s *Session) SelectApp(app *App) error {
	return s.SelectByName(app.AID())
}

func (s *Session) selectCmd(cmd *iso7816.CommandAPDU) error {
	data, err := s.command(cmd)
	if err != nil {
		return err
	}
	fci, err := ParseFCI(data)
	if err != nil {
		return err
	}
	s.resetApp()
	s.fci = fci
	s.app = fci.App()
	s.log.WithFields(logrus.Fields{
		"aid":   fmt.Sprintf("%X", s.app.AID()),
		"label": s.app.Name(),
	}).Info("application selected")
	return nil
}

// resetApp forgets everything tied to the previously selected application.
func (s *Session) resetApp() {
	s.app, s.fci = nil, nil
	s.aip, s.afl = 0, nil
	s.store = NewDataStore()
	s.sdaOK, s.ddaOK = false, false
}

// EnumeratePSE selects the payment system directory and lists the
// applications of its records. Reading stops at the first record the card
// refuses; records that do not decode are skipped.
func (s *Session) EnumeratePSE() (*AppList, error) {
	if err := s.SelectByName([]byte(PSEName)); err != nil {
		return nil, err
	}
	sfi := s.fci.DirectorySFI()
	// The directory is not an application.
	s.app = nil

	list := &AppList{}
	for rec := 1; rec <= 0xFF; rec++ {
		data, err := s.ReadRecord(sfi, byte(rec))
		if err != nil {
			var e *Error
			if errors.As(err, &e) && e.Type != ICCError {
				return nil, s.done(err)
			}
			break
		}
		dir, err := ParseDirectoryRecord(data)
		if err != nil {
			s.log.WithError(err).WithField("record", rec).Warn("skipping directory record")
			continue
		}
		list.apps = append(list.apps, dir.Apps()...)
	}
	s.log.WithField("apps", list.Len()).Debug("payment system directory read")
	return list, s.done(nil)
}

// SelectByPriority selects an application the terminal supports. The
// directory list is tried first, best priority first, keeping the card
// order among equals; applications without a priority come last. When
// the list is empty or none of its entries can be selected, every
// terminal application is selected by AID, walking the next occurrences
// of a partial AID until one matches.
func (s *Session) SelectByPriority(list *AppList, policy Policy) (*App, error) {
	if list != nil {
		list.Filter(func(a *App) bool { return policy.Supports(a.AID()) })

		candidates := slices.Clone(list.Apps())
		slices.SortStableFunc(candidates, func(a, b *App) int {
			return cmp.Compare(rank(a), rank(b))
		})
		for _, app := range candidates {
			if err := s.SelectApp(app); err == nil {
				return s.app, nil
			}
		}
	}

	for _, t := range policy.Apps {
		if err := s.SelectByName(t.AID); err != nil {
			continue
		}
		seen := map[string]bool{}
		for n := 0; n < MaxOccurrences; n++ {
			aid := s.app.AID()
			if t.Matches(aid) {
				return s.app, s.done(nil)
			}
			// A card answering with an AID it already gave has wrapped around.
			if seen[string(aid)] {
				break
			}
			seen[string(aid)] = true
			if err := s.SelectNext(t.AID); err != nil {
				break
			}
		}
	}
	s.resetApp()
	return nil, s.done(emvErrorf(CodeAppNotSelected, "no supported application"))
}

// MaxOccurrences bounds the SELECT next walk over one partial AID.
const MaxOccurrences = 32

func rank(a *App) int {
	if p := a.Priority(); p != 0 {
		return p
	}
	return 0x80
}

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gregLibert/ccid-emv/pkg/config"
	"github.com/gregLibert/ccid-emv/pkg/emv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func printConfig(w io.Writer, cfg *config.Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// run connects to the card and walks it through the transaction steps.
// Selection and initiation failures end the run; later steps only log.
func run(ctx context.Context, cfg *config.Config, wait time.Duration) error {
	log := cfg.Logger()

	keys, err := cfg.KeyStore()
	if err != nil {
		return err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	terminal, err := cfg.TerminalData()
	if err != nil {
		return err
	}

	r, err := connect(ctx, cfg, log, wait)
	if err != nil {
		return err
	}
	defer r.close()
	if r.atr != nil {
		log.Infof("ATR %X", r.atr)
	}

	s := emv.NewSession(r.card,
		emv.WithLogger(log),
		emv.WithKeyStore(keys),
		emv.WithChallenge(cfg.Challenge()),
		emv.WithTerminalData(terminal),
	)
	slog := log.WithField("session", s.ID().String())

	list, err := s.EnumeratePSE()
	if err != nil {
		slog.WithError(err).Warn("no payment system directory, trying the terminal list")
		list = nil
	} else {
		for _, app := range list.Apps() {
			slog.Infof("candidate %s", app)
		}
	}

	app, err := s.SelectByPriority(list, policy)
	if err != nil {
		return errors.Wrap(err, "selecting application")
	}
	slog.WithField("aid", fmt.Sprintf("%X", app.AID())).Infof("selected %s", app.Name())

	if err := s.InitApp(); err != nil {
		return errors.Wrap(err, "initiating application")
	}
	slog.Infof("AIP %s", s.AIP())
	for _, e := range s.AFL() {
		slog.Debug(e)
	}

	if err := s.ReadAppData(); err != nil {
		return errors.Wrap(err, "reading application data")
	}
	for _, rec := range s.Store().Records() {
		slog.Debug(rec)
	}
	if pan, err := s.Store().Value(emv.TagPAN); err == nil {
		slog.Infof("PAN %X", pan)
	}

	authenticate(slog, s)
	verify(slog, s, cfg.Terminal.PIN)
	counters(slog, s)
	return nil
}

// authenticator is the part of emv.Session offline authentication uses.
type authenticator interface {
	AIP() emv.AIP
	AuthenticateStatic() error
	AuthenticateDynamic() error
}

// authenticate runs each offline method the card declares. A DDA card
// establishes SDA through its ICC certificate.
func authenticate(log logrus.FieldLogger, s authenticator) {
	aip := s.AIP()
	if aip.Has(emv.AIPSDA) {
		if err := s.AuthenticateStatic(); err != nil {
			log.WithError(err).Warn("static data authentication failed")
		} else {
			log.Info("static data authentication succeeded")
		}
	}
	if aip.Has(emv.AIPDDA) {
		if err := s.AuthenticateDynamic(); err != nil {
			log.WithError(err).Warn("dynamic data authentication failed")
		} else {
			log.Info("dynamic data authentication succeeded")
		}
	}
}

func verify(log logrus.FieldLogger, s *emv.Session, pin string) {
	if l, err := s.CVMList(); err == nil {
		for _, rule := range l.Rules {
			log.Debugf("CVM %s", rule)
		}
	}
	if pin == "" {
		return
	}
	if n, err := s.PINTryCounter(); err == nil {
		log.Infof("%d PIN tries left", n)
	}
	err := s.VerifyPIN(pin)
	var e *emv.Error
	switch {
	case err == nil:
		log.Info("PIN verified")
	case errors.As(err, &e) && errors.Is(err, emv.ErrBadPin):
		log.Warnf("wrong PIN, %d tries left", e.Tries)
	default:
		log.WithError(err).Warn("PIN verification failed")
	}
}

func counters(log logrus.FieldLogger, s *emv.Session) {
	if atc, err := s.ATC(); err != nil {
		log.WithError(err).Warn("reading ATC")
	} else {
		log.Infof("ATC %d", atc)
	}
	if atc, err := s.LastOnlineATC(); err != nil {
		log.WithError(err).Warn("reading last online ATC")
	} else {
		log.Infof("last online ATC %d", atc)
	}
}

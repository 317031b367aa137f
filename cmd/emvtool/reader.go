package main

import (
	"context"
	"time"

	"github.com/ebfe/scard"
	"github.com/google/gousb"
	"github.com/gregLibert/ccid-emv/pkg/ccid"
	"github.com/gregLibert/ccid-emv/pkg/config"
	"github.com/gregLibert/ccid-emv/pkg/iso7816"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// reader is a connected card together with the function that releases it.
type reader struct {
	card  iso7816.Transmitter
	atr   []byte
	close func()
}

func connect(ctx context.Context, cfg *config.Config, log *logrus.Logger, wait time.Duration) (*reader, error) {
	if cfg.Reader.Backend == config.BackendUSB {
		return connectUSB(ctx, cfg, log, wait)
	}
	return connectPCSC(cfg, log, wait)
}

func listReaders() ([]string, error) {
	sc, err := scard.EstablishContext()
	if err != nil {
		return nil, errors.Wrap(err, "establishing PC/SC context")
	}
	defer sc.Release()

	names, err := sc.ListReaders()
	if err != nil {
		return nil, errors.Wrap(err, "listing readers")
	}
	return names, nil
}

func connectPCSC(cfg *config.Config, log *logrus.Logger, wait time.Duration) (*reader, error) {
	sc, err := scard.EstablishContext()
	if err != nil {
		return nil, errors.Wrap(err, "establishing PC/SC context")
	}

	name, err := pickReader(sc, cfg.Reader)
	if err != nil {
		releaseContext(sc, log)
		return nil, err
	}
	log.WithField("reader", name).Info("using PC/SC reader")

	if err := waitPCSC(sc, name, wait); err != nil {
		releaseContext(sc, log)
		return nil, err
	}

	// T=0 or T=1 avoids "Parameter Incorrect" on some readers.
	card, err := sc.Connect(name, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		releaseContext(sc, log)
		return nil, errors.Wrapf(err, "connecting to %s", name)
	}

	r := &reader{card: card}
	if st, err := card.Status(); err == nil {
		r.atr = st.Atr
	}
	r.close = func() {
		if err := card.Disconnect(scard.LeaveCard); err != nil {
			log.WithError(err).Warn("disconnecting card")
		}
		releaseContext(sc, log)
	}
	return r, nil
}

func releaseContext(sc *scard.Context, log *logrus.Logger) {
	if err := sc.Release(); err != nil {
		log.WithError(err).Warn("releasing PC/SC context")
	}
}

// waitPCSC blocks until a card is present in the reader. A zero wait
// blocks forever.
func waitPCSC(sc *scard.Context, name string, wait time.Duration) error {
	timeout := wait
	if timeout <= 0 {
		timeout = -1
	}
	states := []scard.ReaderState{{Reader: name, CurrentState: scard.StateUnaware}}
	for {
		if err := sc.GetStatusChange(states, timeout); err != nil {
			return errors.Wrap(err, "waiting for card")
		}
		if states[0].EventState&scard.StatePresent != 0 {
			return nil
		}
		states[0].CurrentState = states[0].EventState
	}
}

func pickReader(sc *scard.Context, rc config.Reader) (string, error) {
	names, err := sc.ListReaders()
	if err != nil {
		return "", errors.Wrap(err, "listing readers")
	}
	if len(names) == 0 {
		return "", errors.New("no smart card reader found")
	}
	if rc.Name != "" {
		for _, n := range names {
			if n == rc.Name {
				return n, nil
			}
		}
		return "", errors.Errorf("reader %q not found", rc.Name)
	}
	if rc.Index >= len(names) {
		return "", errors.Errorf("reader index %d of %d", rc.Index, len(names))
	}
	return names[rc.Index], nil
}

func connectUSB(ctx context.Context, cfg *config.Config, log *logrus.Logger, wait time.Duration) (*reader, error) {
	rc := cfg.Reader
	voltage, err := cfg.Voltage()
	if err != nil {
		return nil, err
	}

	usb := gousb.NewContext()
	ep, desc, err := ccid.OpenUSB(usb, gousb.ID(rc.VendorID), gousb.ID(rc.ProductID), ccid.USBOptions{
		BulkTimeout:      rc.BulkTimeout.Duration,
		InterruptTimeout: rc.InterruptTimeout.Duration,
	})
	if err != nil {
		usb.Close()
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"vid":   gousb.ID(rc.VendorID),
		"pid":   gousb.ID(rc.ProductID),
		"slots": desc.MaxSlotIndex + 1,
	}).Info("using CCID reader")

	dev, err := ccid.NewDevice(ep, desc, ccid.WithLogger(log))
	if err != nil {
		ep.Close()
		usb.Close()
		return nil, err
	}
	closeDev := func() {
		if err := dev.Close(); err != nil {
			log.WithError(err).Warn("closing reader")
		}
		usb.Close()
	}

	slot, err := dev.Slot(rc.Slot)
	if err != nil {
		closeDev()
		return nil, err
	}

	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	log.WithField("slot", rc.Slot).Info("waiting for card")
	if err := slot.WaitForCard(ctx); err != nil {
		closeDev()
		return nil, errors.Wrap(err, "waiting for card")
	}

	atr, err := slot.PowerOn(voltage)
	if err != nil {
		closeDev()
		return nil, errors.Wrap(err, "powering card")
	}

	return &reader{
		card: slot.Card(),
		atr:  atr,
		close: func() {
			if _, err := slot.PowerOff(); err != nil {
				log.WithError(err).Warn("powering card off")
			}
			closeDev()
		},
	}, nil
}

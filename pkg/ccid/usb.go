package ccid

import (
	"context"
	"time"

	"github.com/google/gousb"
	"github.com/pkg/errors"
)

// USB BACKEND:
// USBEndpoints opens a reader by vendor and product id on a caller owned
// gousb.Context, claims its smart card interface (class 0x0B) and maps
// the bulk-OUT, bulk-IN and interrupt-IN endpoints found in the
// interface setting. The CCID functional descriptor is not exposed by
// gousb, so it is read back from the raw configuration descriptor.

const (
	// DefaultBulkTimeout bounds one bulk transfer.
	DefaultBulkTimeout = 5 * time.Second
	// DefaultInterruptTimeout bounds one interrupt poll.
	DefaultInterruptTimeout = 250 * time.Millisecond
)

const (
	reqGetDescriptor    = 0x06
	descTypeConfig      = 0x02
	reqTypeDeviceToHost = 0x80
)

// USBOptions tunes the USB backend.
type USBOptions struct {
	BulkTimeout      time.Duration
	InterruptTimeout time.Duration
}

// USBEndpoints is the gousb implementation of Endpoints.
type USBEndpoints struct {
	dev    *gousb.Device
	cfg    *gousb.Config
	intf   *gousb.Interface
	out    *gousb.OutEndpoint
	in     *gousb.InEndpoint
	intr   *gousb.InEndpoint
	bulkTO time.Duration
	intrTO time.Duration
}

// OpenUSB opens the first reader matching vid:pid and returns its
// endpoints together with the parsed class descriptor.
func OpenUSB(ctx *gousb.Context, vid, pid gousb.ID, opts USBOptions) (*USBEndpoints, ClassDescriptor, error) {
	if opts.BulkTimeout <= 0 {
		opts.BulkTimeout = DefaultBulkTimeout
	}
	if opts.InterruptTimeout <= 0 {
		opts.InterruptTimeout = DefaultInterruptTimeout
	}

	dev, err := ctx.OpenDeviceWithVIDPID(vid, pid)
	if err != nil {
		return nil, ClassDescriptor{}, &IOError{Op: "open " + vid.String() + ":" + pid.String(), Err: err}
	}
	if dev == nil {
		return nil, ClassDescriptor{}, errors.Errorf("ccid: no device %s:%s", vid, pid)
	}

	u := &USBEndpoints{dev: dev, bulkTO: opts.BulkTimeout, intrTO: opts.InterruptTimeout}
	desc, err := u.claim()
	if err != nil {
		u.Close()
		return nil, ClassDescriptor{}, err
	}
	return u, desc, nil
}

func (u *USBEndpoints) claim() (ClassDescriptor, error) {
	if err := u.dev.SetAutoDetach(true); err != nil {
		return ClassDescriptor{}, &IOError{Op: "auto detach", Err: err}
	}

	cfgNum, setting, ok := findSmartCardInterface(u.dev.Desc)
	if !ok {
		return ClassDescriptor{}, errors.Wrap(ErrBadDescriptor, "no smart card interface")
	}

	desc, err := u.readClassDescriptor()
	if err != nil {
		return ClassDescriptor{}, err
	}

	if u.cfg, err = u.dev.Config(cfgNum); err != nil {
		return ClassDescriptor{}, &IOError{Op: "set configuration", Err: err}
	}
	if u.intf, err = u.cfg.Interface(setting.Number, setting.Alternate); err != nil {
		return ClassDescriptor{}, &IOError{Op: "claim interface", Err: err}
	}

	for _, ep := range setting.Endpoints {
		switch {
		case ep.TransferType == gousb.TransferTypeBulk && ep.Direction == gousb.EndpointDirectionOut:
			u.out, err = u.intf.OutEndpoint(ep.Number)
		case ep.TransferType == gousb.TransferTypeBulk && ep.Direction == gousb.EndpointDirectionIn:
			u.in, err = u.intf.InEndpoint(ep.Number)
		case ep.TransferType == gousb.TransferTypeInterrupt && ep.Direction == gousb.EndpointDirectionIn:
			u.intr, err = u.intf.InEndpoint(ep.Number)
		}
		if err != nil {
			return ClassDescriptor{}, &IOError{Op: "endpoint " + ep.String(), Err: err}
		}
	}
	if u.out == nil || u.in == nil {
		return ClassDescriptor{}, errors.Wrap(ErrBadDescriptor, "missing bulk endpoint")
	}
	return desc, nil
}

func findSmartCardInterface(d *gousb.DeviceDesc) (int, gousb.InterfaceSetting, bool) {
	for num, cfg := range d.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if alt.Class == gousb.ClassSmartCard {
					return num, alt, true
				}
			}
		}
	}
	return 0, gousb.InterfaceSetting{}, false
}

func (u *USBEndpoints) readClassDescriptor() (ClassDescriptor, error) {
	buf := make([]byte, 512)
	n, err := u.dev.Control(reqTypeDeviceToHost, reqGetDescriptor, descTypeConfig<<8, 0, buf)
	if err != nil {
		return ClassDescriptor{}, &IOError{Op: "get configuration descriptor", Err: err}
	}
	return FindClassDescriptor(buf[:n])
}

// BulkWrite implements Endpoints.
func (u *USBEndpoints) BulkWrite(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), u.bulkTO)
	defer cancel()
	return u.out.WriteContext(ctx, p)
}

// BulkRead implements Endpoints.
func (u *USBEndpoints) BulkRead(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), u.bulkTO)
	defer cancel()
	return u.in.ReadContext(ctx, p)
}

// InterruptRead implements Endpoints. A poll timeout is not an error.
func (u *USBEndpoints) InterruptRead(p []byte) (int, error) {
	if u.intr == nil {
		time.Sleep(u.intrTO)
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), u.intrTO)
	defer cancel()
	n, err := u.intr.ReadContext(ctx, p)
	if err != nil && isTimeout(err) {
		return 0, nil
	}
	return n, err
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gousb.TransferTimedOut) ||
		errors.Is(err, gousb.TransferCancelled)
}

// Close releases the interface, configuration and device.
func (u *USBEndpoints) Close() error {
	if u.intf != nil {
		u.intf.Close()
	}
	if u.cfg != nil {
		if err := u.cfg.Close(); err != nil {
			u.dev.Close()
			return err
		}
	}
	return u.dev.Close()
}

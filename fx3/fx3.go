// Package fx3 adapts a bladeRF's Cypress FX3 USB controller to the
// bladerf.Transport interface using the pure-Go go-usb library. Only the
// NIOS control endpoint pair is handled here; sample stream endpoints are a
// different concern entirely.
package fx3

import (
	"context"
	"errors"
	"time"

	usb "github.com/kevmo314/go-usb"

	"github.com/softradio/bladerf"
)

// Nuand vendor and bladeRF product IDs.
const (
	VendorID  = 0x2cf0
	ProductID = 0x5246
)

// NIOS control endpoints and the interface carrying them.
const (
	ifaceNum     = 0
	endpointOut  = 0x02
	endpointIn   = 0x82
	fallbackWait = 500 * time.Millisecond
)

// Pipe is the claimed-once handle on the control endpoint pair.
type Pipe struct {
	h       *usb.DeviceHandle
	claimed bool
}

// Open locates the first attached bladeRF and opens its USB handle. The
// interface is not claimed until the device session claims the transport.
func Open() (*Pipe, error) {
	h, err := usb.OpenDevice(VendorID, ProductID)
	if err != nil {
		return nil, err
	}
	return &Pipe{h: h}, nil
}

// Claim implements bladerf.Transport.
func (p *Pipe) Claim() error {
	if p.claimed {
		return errors.New("fx3: interface already claimed")
	}
	if err := p.h.ClaimInterface(ifaceNum); err != nil {
		return err
	}
	p.claimed = true
	return nil
}

// WritePacket implements bladerf.Transport.
func (p *Pipe) WritePacket(ctx context.Context, b []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.h.BulkTransfer(endpointOut, b, timeoutFrom(ctx))
	return n, mapErr(err)
}

// ReadPacket implements bladerf.Transport.
func (p *Pipe) ReadPacket(ctx context.Context, b []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.h.BulkTransfer(endpointIn, b, timeoutFrom(ctx))
	return n, mapErr(err)
}

// Close releases the interface and the device handle.
func (p *Pipe) Close() error {
	if p.claimed {
		p.claimed = false
		if err := p.h.ReleaseInterface(ifaceNum); err != nil {
			p.h.Close()
			return err
		}
	}
	return p.h.Close()
}

// timeoutFrom converts a context deadline into the millisecond timeout the
// kernel bulk API wants. A context without a deadline gets a short fallback
// so a wedged endpoint cannot block forever; packet exchanges are
// sub-millisecond affairs on a healthy bus. Cancellation without a deadline
// cannot interrupt an in-flight bulk transfer, so it is checked before
// submission and the wait is otherwise bounded by the fallback.
func timeoutFrom(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return fallbackWait
	}
	d := time.Until(deadline)
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, usb.ErrTimeout) {
		return bladerf.ErrTimeout
	}
	return err
}

var _ bladerf.Transport = (*Pipe)(nil)

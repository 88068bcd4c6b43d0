// Package bladerf drives the control plane of a bladeRF software-defined
// radio: NIOS packet exchanges with the FPGA soft core over USB bulk
// transfers, and the register access helpers built on top of them. The I/Q
// sample stream and frequency planning are out of scope; this package is the
// narrow request/response layer everything else consumes.
package bladerf

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"github.com/softradio/bladerf/nios"
)

var (
	ErrNoTransport = errors.New("no transport configured")
	// ErrBadEcho means the response decoded fine but does not correlate
	// with the request that was just sent: the firmware echoed a different
	// target or address than it was asked about.
	ErrBadEcho = errors.New("response does not echo request")
)

// ExchangeError reports which stage of an exchange failed. Op is one of
// "build", "transfer", "decode", "validate" or "correlate".
type ExchangeError struct {
	Op  string
	Err error
}

func (e *ExchangeError) Error() string { return "nios exchange " + e.Op + ": " + e.Err.Error() }
func (e *ExchangeError) Unwrap() error { return e.Err }

// Config parameterizes Open.
type Config struct {
	// Transport is the claimed-once USB endpoint pair. Required.
	Transport Transport
	// Timeout bounds each exchange's round trip. Defaults to one second.
	Timeout time.Duration
	// Logger receives structured driver logs. nil disables logging.
	Logger *slog.Logger
}

// Device is a handle on one bladeRF control session. All methods are safe
// for concurrent use; exchanges from concurrent callers are serialized
// through the single endpoint session in the order its gate admits them.
type Device struct {
	sess   *session
	logger *slog.Logger

	// mu guards the scratch buffers. Request and response packets are
	// rebuilt into these on every exchange so the steady state allocates
	// one response clone and nothing else per call.
	mu   sync.Mutex
	req  [nios.WireLen]byte
	resp [nios.WireLen]byte
}

// Open binds a device session to the configured transport. The endpoint is
// claimed here, once; it is released by Close.
func Open(cfg Config) (*Device, error) {
	if cfg.Transport == nil {
		return nil, ErrNoTransport
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = time.Second
	}
	sess, err := newSession(cfg.Transport, timeout)
	if err != nil {
		return nil, err
	}
	d := &Device{sess: sess, logger: cfg.Logger}
	d.info("session open", slog.Duration("timeout", timeout))
	return d, nil
}

// Close releases the endpoint and the underlying transport.
func (d *Device) Close() error {
	d.debug("session close")
	return d.sess.close()
}

// Do performs one generic NIOS exchange: it builds a request packet of the
// given variant, transmits it, receives the fixed-length response, validates
// it and checks that it echoes the request's routing fields. The returned
// packet owns its storage and stays valid across further exchanges.
//
// A response reporting failure (IsSuccess false) is returned as data, not as
// an error; whether that is fatal depends on the operation, which only the
// caller knows. Do never retries: blindly resending a register write is not
// safe without caller knowledge of idempotence.
func (d *Device) Do(ctx context.Context, v nios.Variant, target, flags uint8, addr, data uint64) (nios.Packet, error) {
	// A nested exchange would deadlock on the scratch-buffer mutex before
	// the session could refuse it, so refuse it here first.
	if d.sess.held(ctx) {
		return nios.Packet{}, &ExchangeError{Op: "transfer", Err: ErrReentrantLock}
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	req, err := nios.Reuse(d.req[:], v, target, flags, addr, data)
	if err != nil {
		return nios.Packet{}, &ExchangeError{Op: "build", Err: err}
	}
	d.trace("nios tx",
		slog.String("variant", v.String()),
		slog.Uint64("target", uint64(target)),
		slog.Uint64("addr", addr),
		slog.Uint64("data", data),
		slog.Bool("write", flags&nios.FlagWrite != 0),
	)
	if err := d.sess.exchange(ctx, req.Bytes(), d.resp[:]); err != nil {
		d.logerr("nios transfer failed", slog.String("variant", v.String()), slog.Any("err", err))
		return nios.Packet{}, &ExchangeError{Op: "transfer", Err: err}
	}
	resp, err := nios.Decode(v, d.resp[:])
	if err != nil {
		return nios.Packet{}, &ExchangeError{Op: "decode", Err: err}
	}
	if err := resp.Validate(); err != nil {
		return nios.Packet{}, &ExchangeError{Op: "validate", Err: err}
	}
	if resp.Target() != target || resp.Addr() != addr {
		return nios.Packet{}, &ExchangeError{Op: "correlate", Err: ErrBadEcho}
	}
	resp = resp.Clone()
	d.trace("nios rx",
		slog.Uint64("data", resp.Data()),
		slog.Bool("success", resp.IsSuccess()),
	)
	return resp, nil
}

// DoRaw exchanges a caller-built request for its raw response, for packet
// families layered over the generic wire format such as scheduled retunes.
// Both buffers must be nios.WireLen bytes; resp is overwritten in place.
// Framing, validation and correlation of the response are the caller's
// responsibility.
func (d *Device) DoRaw(ctx context.Context, req, resp []byte) error {
	return d.sess.exchange(ctx, req, resp)
}

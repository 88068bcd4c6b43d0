package bladerf

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/softradio/bladerf/nios"
)

var (
	ErrEndpointBusy  = errors.New("nios endpoint busy")
	ErrTimeout       = errors.New("nios exchange timed out")
	ErrReentrantLock = errors.New("reentrant nios endpoint acquisition")
	ErrShortWrite    = errors.New("short bulk write")
	ErrShortRead     = errors.New("short bulk read")
	// ErrDegraded means a transport fault may have left residue on the
	// endpoint (a half-finished transfer or an orphaned response). The
	// session fails every subsequent exchange with this error rather than
	// risk pairing a request with a stale response; the device must be
	// reopened to recover.
	ErrDegraded = errors.New("nios session degraded, reopen device")
)

// holderKey marks contexts whose call stack already holds the endpoint gate.
// Deriving an exchange from such a context would deadlock on the gate, so
// the session refuses it outright.
type holderKey struct{}

// session owns the long-lived binding to the single endpoint pair used for
// NIOS exchanges. It is established once per device session; exchanges never
// re-claim the underlying transport.
type session struct {
	tr       Transport
	gate     *semaphore.Weighted
	timeout  time.Duration
	degraded atomic.Bool
}

// newSession claims the transport exactly once and wraps it in the
// exclusive-access gate. A transport that refuses the claim (typically
// because another process or session holds it) surfaces as ErrEndpointBusy.
func newSession(tr Transport, timeout time.Duration) (*session, error) {
	if err := tr.Claim(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEndpointBusy, err)
	}
	return &session{
		tr:      tr,
		gate:    semaphore.NewWeighted(1),
		timeout: timeout,
	}, nil
}

// held reports whether ctx was handed out by an exchange in progress, which
// means the call stack already owns the endpoint gate.
func (s *session) held(ctx context.Context) bool {
	return ctx.Value(holderKey{}) != nil
}

// exchange transmits the request and receives exactly one response, holding
// the endpoint gate for the whole round trip. Exchanges complete in the
// order the gate admits them; there is no batching or reordering. Both
// buffers must be nios.WireLen bytes.
func (s *session) exchange(ctx context.Context, req, resp []byte) error {
	if len(req) != nios.WireLen || len(resp) != nios.WireLen {
		return nios.ErrLengthMismatch
	}
	if s.held(ctx) {
		return ErrReentrantLock
	}
	if s.degraded.Load() {
		return ErrDegraded
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.gate.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return err
	}
	defer s.gate.Release(1)
	if s.degraded.Load() {
		return ErrDegraded
	}
	ctx = context.WithValue(ctx, holderKey{}, s)

	n, err := s.tr.WritePacket(ctx, req)
	if err != nil {
		if n > 0 {
			// Part of a request reached the device. The firmware's framing
			// is now unknowable from here.
			s.degraded.Store(true)
		}
		return mapCtxErr(err)
	}
	if n != nios.WireLen {
		s.degraded.Store(true)
		return ErrShortWrite
	}

	n, err = s.tr.ReadPacket(ctx, resp)
	if err != nil {
		// The request was accepted, so a response may still arrive and
		// would otherwise be paired with the next caller's request.
		s.degraded.Store(true)
		return mapCtxErr(err)
	}
	if n != nios.WireLen {
		s.degraded.Store(true)
		return ErrShortRead
	}
	return nil
}

func (s *session) close() error { return s.tr.Close() }

func mapCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

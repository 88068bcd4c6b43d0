package bladerf

import "context"

// Transport is the opaque handle onto the USB bulk endpoint pair used for
// NIOS exchanges. Implementations wrap an already-enumerated device; device
// discovery and descriptor parsing happen outside this package. The fx3
// sub-package provides the real implementation, internal/fpgamock an
// emulated one.
//
// WritePacket and ReadPacket block until the full nios.WireLen-byte transfer
// completes, the context expires, or the bus faults. Both must honor the
// context's deadline and return ErrTimeout (or an error wrapping it) when it
// passes. Neither is required to be safe for concurrent use: the session
// layer guarantees a single exchange is in flight at a time.
type Transport interface {
	// Claim acquires exclusive use of the endpoint pair. It is called
	// exactly once per device session, never per exchange.
	Claim() error
	WritePacket(ctx context.Context, p []byte) (int, error)
	ReadPacket(ctx context.Context, p []byte) (int, error)
	Close() error
}

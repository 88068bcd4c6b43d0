// Package fpgamock emulates the NIOS II soft core's control endpoint: a
// register-file-backed responder implementing bladerf.Transport. It exists
// so the exchange and register layers can be exercised without hardware, and
// so tooling has an offline device to point at. Fault injection knobs cover
// the transport failure modes the session layer must survive.
package fpgamock

import (
	"context"
	"errors"
	"sync"

	"github.com/softradio/bladerf/nios"
)

var (
	errAlreadyClaimed = errors.New("fpgamock: endpoint already claimed")
	errNotClaimed     = errors.New("fpgamock: endpoint not claimed")
	errNoResponse     = errors.New("fpgamock: read with no request pending")
)

type regKey struct {
	magic  byte
	target uint8
	addr   uint64
}

// Firmware is an in-memory stand-in for the FPGA soft core. The zero value
// is not usable; call New.
type Firmware struct {
	mu      sync.Mutex
	claimed bool
	closed  bool
	regs    map[regKey]uint64
	pending []byte

	// Fault injection. Each knob applies to the next exchange.

	// ClearSuccess responds well-formed but with the success flag cleared.
	ClearSuccess bool
	// ShortRespLen truncates the next response to this many bytes when >0.
	ShortRespLen int
	// Mute swallows the next request so the read blocks until the caller's
	// deadline passes.
	Mute bool
	// CorruptEcho responds with a mangled target ID.
	CorruptEcho bool
	// RetuneQueueFull makes scheduled retunes report failure.
	RetuneQueueFull bool
	// RetuneVCOCap is echoed in retune responses as the settled VCOCAP.
	RetuneVCOCap uint8
	// RetuneDuration is reported as the tuning duration for immediate
	// retunes.
	RetuneDuration uint64
}

func New() *Firmware {
	return &Firmware{regs: make(map[regKey]uint64)}
}

// Seed preloads a register so reads see it without a prior write.
func (f *Firmware) Seed(v nios.Variant, target uint8, addr, value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[regKey{v.Magic(), target, addr}] = value
}

// Peek returns the current value of a register, for asserting on writes.
func (f *Firmware) Peek(v nios.Variant, target uint8, addr uint64) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.regs[regKey{v.Magic(), target, addr}]
	return val, ok
}

// Claim implements bladerf.Transport. A second claim fails, mirroring a
// kernel driver or another process holding the interface.
func (f *Firmware) Claim() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed {
		return errAlreadyClaimed
	}
	f.claimed = true
	return nil
}

func (f *Firmware) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimed = false
	f.closed = true
	return nil
}

// WritePacket accepts one request and queues its response.
func (f *Firmware) WritePacket(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.claimed {
		return 0, errNotClaimed
	}
	if f.Mute {
		f.Mute = false
		return len(p), nil
	}
	if len(p) != nios.WireLen {
		return len(p), errors.New("fpgamock: request is not one wire packet")
	}
	resp := f.respond(p)
	if f.CorruptEcho {
		f.CorruptEcho = false
		resp[2] ^= 0xa5
	}
	if f.ShortRespLen > 0 {
		resp = resp[:f.ShortRespLen]
		f.ShortRespLen = 0
	}
	f.pending = resp
	return len(p), nil
}

// ReadPacket delivers the queued response, or blocks until the context
// expires when none is pending.
func (f *Firmware) ReadPacket(ctx context.Context, p []byte) (int, error) {
	f.mu.Lock()
	if !f.claimed {
		f.mu.Unlock()
		return 0, errNotClaimed
	}
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()
	if pending == nil {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return copy(p, pending), nil
}

func (f *Firmware) respond(req []byte) []byte {
	if req[0] == nios.MagicRetune {
		return f.respondRetune(req)
	}
	v, err := nios.VariantForMagic(req[0])
	if err != nil {
		// Unknown family: firmware echoes the request untouched.
		return append([]byte(nil), req...)
	}
	pkt, err := nios.Decode(v, append([]byte(nil), req...))
	if err != nil {
		return append([]byte(nil), req...)
	}
	key := regKey{v.Magic(), pkt.Target(), pkt.Addr()}
	flags := pkt.Flags() | nios.FlagSuccess
	if f.ClearSuccess {
		f.ClearSuccess = false
		flags &^= nios.FlagSuccess
	}
	data := pkt.Data()
	if pkt.IsWrite() {
		f.regs[key] = data
	} else {
		data = f.regs[key]
	}
	resp, err := nios.New(v, pkt.Target(), flags, pkt.Addr(), data)
	if err != nil {
		return append([]byte(nil), req...)
	}
	return resp.Bytes()
}

func (f *Firmware) respondRetune(req []byte) []byte {
	resp := make([]byte, nios.WireLen)
	resp[0] = nios.MagicRetune
	ts := uint64(0)
	for i := 0; i < 8; i++ {
		ts |= uint64(req[1+i]) << uint(8*i)
	}
	const (
		flagValid   = 1 << 0
		flagSuccess = 1 << 1
	)
	var flags byte = flagSuccess
	switch ts {
	case nios.RetuneNow:
		flags |= flagValid
		for i := 0; i < 8; i++ {
			resp[1+i] = byte(f.RetuneDuration >> uint(8*i))
		}
		resp[9] = f.RetuneVCOCap & 0x3f
	case nios.RetuneClearQueue:
		// Queue drop always succeeds; no duration to report.
	default:
		if f.RetuneQueueFull {
			f.RetuneQueueFull = false
			flags &^= flagSuccess
		}
	}
	if f.ClearSuccess {
		f.ClearSuccess = false
		flags &^= flagSuccess
	}
	resp[10] = flags
	return resp
}

package bladerf

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"log/slog"

	"golang.org/x/exp/constraints"

	"github.com/softradio/bladerf/nios"
)

var (
	// ErrOpFailed means the firmware returned a well-formed response with
	// the success flag cleared: the exchange itself worked, the operation
	// behind it did not.
	ErrOpFailed = errors.New("firmware rejected nios operation")
	// ErrRetuneQueueFull means a scheduled retune was refused because the
	// firmware's retune queue is at capacity. Try again after a previous
	// request has completed.
	ErrRetuneQueueFull = errors.New("fpga retune queue full")
)

// ReadRegister reads one register behind the given target. The packet
// variant is picked from the widths of A and D, so the call site's types
// decide the wire shape: ReadRegister[uint8, uint32] is an 8x32 exchange.
// For masked targets (expansion GPIO) the address doubles as the read mask.
func ReadRegister[A, D constraints.Unsigned](ctx context.Context, d *Device, target uint8, addr A) (D, error) {
	v, err := nios.VariantOf[A, D]()
	if err != nil {
		return 0, err
	}
	pkt, err := d.Do(ctx, v, target, 0, uint64(addr), 0)
	if err != nil {
		return 0, err
	}
	if !pkt.IsSuccess() {
		return 0, ErrOpFailed
	}
	return D(pkt.Data()), nil
}

// WriteRegister writes one register behind the given target, with the
// variant picked from the widths of A and D as in ReadRegister.
func WriteRegister[A, D constraints.Unsigned](ctx context.Context, d *Device, target uint8, addr A, data D) error {
	v, err := nios.VariantOf[A, D]()
	if err != nil {
		return err
	}
	pkt, err := d.Do(ctx, v, target, nios.FlagWrite, uint64(addr), uint64(data))
	if err != nil {
		return err
	}
	if !pkt.IsSuccess() {
		return ErrOpFailed
	}
	return nil
}

// LMS6Read reads an LMS6002D transceiver register.
func (d *Device) LMS6Read(ctx context.Context, addr uint8) (uint8, error) {
	return ReadRegister[uint8, uint8](ctx, d, nios.TargetLMS6, addr)
}

// LMS6Write writes an LMS6002D transceiver register.
func (d *Device) LMS6Write(ctx context.Context, addr, value uint8) error {
	return WriteRegister[uint8, uint8](ctx, d, nios.TargetLMS6, addr, value)
}

// SI5338Read reads a Si5338 clock generator register.
func (d *Device) SI5338Read(ctx context.Context, addr uint8) (uint8, error) {
	return ReadRegister[uint8, uint8](ctx, d, nios.TargetSI5338, addr)
}

// SI5338Write writes a Si5338 clock generator register.
func (d *Device) SI5338Write(ctx context.Context, addr, value uint8) error {
	return WriteRegister[uint8, uint8](ctx, d, nios.TargetSI5338, addr, value)
}

// ConfigRead reads the FPGA control/configuration register.
func (d *Device) ConfigRead(ctx context.Context) (uint32, error) {
	return ReadRegister[uint8, uint32](ctx, d, nios.TargetControl, 0)
}

// ConfigWrite writes the FPGA control/configuration register.
func (d *Device) ConfigWrite(ctx context.Context, value uint32) error {
	return WriteRegister[uint8, uint32](ctx, d, nios.TargetControl, 0, value)
}

// XB200SynthWrite writes an ADF4351 synthesizer register on the XB-200
// expansion board. The register is write only.
func (d *Device) XB200SynthWrite(ctx context.Context, value uint32) error {
	return WriteRegister[uint8, uint32](ctx, d, nios.TargetADF4351, 0, value)
}

// VCTCXOTrimWrite writes the VCTCXO trim DAC.
func (d *Device) VCTCXOTrimWrite(ctx context.Context, trim uint16) error {
	return WriteRegister[uint8, uint16](ctx, d, nios.TargetVCTCXODAC, 0, trim)
}

// Timestamp reads the free-running timestamp counter of a channel.
func (d *Device) Timestamp(ctx context.Context, ch nios.Channel) (uint64, error) {
	addr := nios.AddrTimestampRX
	if ch == nios.ChannelTX {
		addr = nios.AddrTimestampTX
	}
	return ReadRegister[uint8, uint64](ctx, d, nios.TargetTimestamp, addr)
}

// ExpansionGPIORead reads all expansion I/O pins.
func (d *Device) ExpansionGPIORead(ctx context.Context) (uint32, error) {
	return ReadRegister[uint32, uint32](ctx, d, nios.TargetExpansion, ^uint32(0))
}

// ExpansionGPIOWrite writes the expansion I/O pins selected by mask.
func (d *Device) ExpansionGPIOWrite(ctx context.Context, mask, value uint32) error {
	return WriteRegister[uint32, uint32](ctx, d, nios.TargetExpansion, mask, value)
}

// ExpansionGPIODirRead reads the expansion I/O direction register.
func (d *Device) ExpansionGPIODirRead(ctx context.Context) (uint32, error) {
	return ReadRegister[uint32, uint32](ctx, d, nios.TargetExpansionDir, ^uint32(0))
}

// ExpansionGPIODirWrite writes the direction bits selected by mask.
func (d *Device) ExpansionGPIODirWrite(ctx context.Context, mask, value uint32) error {
	return WriteRegister[uint32, uint32](ctx, d, nios.TargetExpansionDir, mask, value)
}

func iqCorrAddr(ch nios.Channel, phase bool) uint8 {
	switch {
	case ch == nios.ChannelRX && !phase:
		return nios.AddrIQCorrRXGain
	case ch == nios.ChannelRX && phase:
		return nios.AddrIQCorrRXPhase
	case phase:
		return nios.AddrIQCorrTXPhase
	default:
		return nios.AddrIQCorrTXGain
	}
}

// IQGainCorrection reads the IQ gain correction value of a channel.
func (d *Device) IQGainCorrection(ctx context.Context, ch nios.Channel) (int16, error) {
	v, err := ReadRegister[uint8, uint16](ctx, d, nios.TargetIQCorr, iqCorrAddr(ch, false))
	return int16(v), err
}

// SetIQGainCorrection writes the IQ gain correction value of a channel.
func (d *Device) SetIQGainCorrection(ctx context.Context, ch nios.Channel, value int16) error {
	return WriteRegister[uint8, uint16](ctx, d, nios.TargetIQCorr, iqCorrAddr(ch, false), uint16(value))
}

// IQPhaseCorrection reads the IQ phase correction value of a channel.
func (d *Device) IQPhaseCorrection(ctx context.Context, ch nios.Channel) (int16, error) {
	v, err := ReadRegister[uint8, uint16](ctx, d, nios.TargetIQCorr, iqCorrAddr(ch, true))
	return int16(v), err
}

// SetIQPhaseCorrection writes the IQ phase correction value of a channel.
func (d *Device) SetIQPhaseCorrection(ctx context.Context, ch nios.Channel, value int16) error {
	return WriteRegister[uint8, uint16](ctx, d, nios.TargetIQCorr, iqCorrAddr(ch, true), uint16(value))
}

// SemanticVersion is the FPGA image version reported by the version word.
type SemanticVersion struct {
	Major uint16
	Minor uint16
	Patch uint16
}

func (v SemanticVersion) String() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// FPGAVersion reads and unpacks the FPGA version word. The patch field is
// stored byte-swapped in the word, a quirk inherited from the firmware.
func (d *Device) FPGAVersion(ctx context.Context) (SemanticVersion, error) {
	word, err := ReadRegister[uint8, uint32](ctx, d, nios.TargetVersion, 0)
	if err != nil {
		return SemanticVersion{}, err
	}
	v := SemanticVersion{
		Major: uint16(word >> 24 & 0xff),
		Minor: uint16(word >> 16 & 0xff),
		Patch: bits.ReverseBytes16(uint16(word & 0xffff)),
	}
	d.debug("fpga version", slog.String("version", v.String()))
	return v, nil
}

// RetuneResult is the firmware's report on a completed retune. Duration and
// VCOCap are only meaningful when Valid is set, which the firmware does for
// immediate retunes only.
type RetuneResult struct {
	Duration uint64
	VCOCap   uint8
	Valid    bool
}

// Retune schedules an LMS6002D retune at the given timestamp, or performs it
// immediately for nios.RetuneNow. Passing nios.RetuneClearQueue discards all
// scheduled retunes; the remaining parameters are then ignored.
func (d *Device) Retune(ctx context.Context, ch nios.Channel, timestamp uint64, nint uint16, nfrac uint32, freqsel, vcocap uint8, band nios.Band, mode nios.TuneMode, xbGPIO uint8) (RetuneResult, error) {
	if d.sess.held(ctx) {
		return RetuneResult{}, &ExchangeError{Op: "transfer", Err: ErrReentrantLock}
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	req, err := nios.ReuseRetune(d.req[:], ch, timestamp, nint, nfrac, freqsel, vcocap, band, mode, xbGPIO)
	if err != nil {
		return RetuneResult{}, &ExchangeError{Op: "build", Err: err}
	}
	if timestamp == nios.RetuneClearQueue {
		d.trace("clearing retune queue", slog.String("channel", ch.String()))
	} else {
		d.trace("retune request",
			slog.String("channel", ch.String()),
			slog.Uint64("timestamp", timestamp),
			slog.Uint64("nint", uint64(nint)),
			slog.Uint64("nfrac", uint64(nfrac)),
		)
	}
	if err := d.sess.exchange(ctx, req.Bytes(), d.resp[:]); err != nil {
		return RetuneResult{}, &ExchangeError{Op: "transfer", Err: err}
	}
	resp, err := nios.DecodeRetune(d.resp[:])
	if err != nil {
		return RetuneResult{}, &ExchangeError{Op: "decode", Err: err}
	}
	res := RetuneResult{
		Duration: resp.Duration(),
		VCOCap:   resp.VCOCap(),
		Valid:    resp.Valid(),
	}
	if !resp.IsSuccess() {
		if timestamp != nios.RetuneNow && timestamp != nios.RetuneClearQueue {
			d.warn("retune queue full", slog.String("channel", ch.String()))
			return res, ErrRetuneQueueFull
		}
		d.logerr("fpga tuning reported failure", slog.String("channel", ch.String()))
		return res, ErrOpFailed
	}
	return res, nil
}

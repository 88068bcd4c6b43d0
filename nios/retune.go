package nios

import "fmt"

// Scheduled retune packets (magic 'T') carry LMS6002D tuning words packed
// into sub-fields layered over the region the generic packets use for
// address and data. Request layout:
//
//	[0]     magic
//	[1:9]   64-bit timestamp of when to retune, little-endian
//	[9:13]  NINT[8:0] and NFRAC[22:0] packed big-end-first (see below)
//	[13]    bit7 TX, bit6 RX, bits[5:0] FREQSEL
//	[14]    bit7 low-band select, bit6 quick tune, bits[5:0] VCOCAP hint
//	[15]    XB-200 GPIO state
//
// The NINT/NFRAC pack: byte 9 holds NINT[8:1], byte 10 holds NINT[0] in its
// top bit and NFRAC[22:16] below it, bytes 11 and 12 hold NFRAC[15:8] and
// NFRAC[7:0].
const (
	idxRetuneTime    = 1
	idxRetuneIntFrac = 9
	idxRetuneFreqSel = 13
	idxRetuneBandSel = 14
	idxRetuneXBGPIO  = 15

	retuneFlagRX       = 1 << 6
	retuneFlagTX       = 1 << 7
	retuneFlagQuick    = 1 << 6
	retuneFlagLowBand  = 1 << 7
	retuneFreqSelMask  = 0x3f
	retuneVCOCapMask   = 0x3f
)

// Timestamp values with special meaning to the firmware's retune queue.
const (
	// RetuneNow requests an immediate retune instead of a scheduled one.
	RetuneNow uint64 = 0
	// RetuneClearQueue discards all scheduled retunes. Every other field of
	// the request is ignored by the firmware.
	RetuneClearQueue uint64 = 1<<64 - 1
)

// Band selects the LMS6002D RF band path.
type Band uint8

const (
	BandHigh Band = iota
	BandLow
)

// TuneMode selects between the full tuning algorithm and the quick path
// that trusts the VCOCAP hint.
type TuneMode uint8

const (
	TuneNormal TuneMode = iota
	TuneQuick
)

// RetuneRequest is a typed view over a WireLen buffer holding a scheduled
// retune request.
type RetuneRequest struct {
	buf []byte
}

// NewRetune constructs a retune request. Sub-field widths are enforced the
// same way generic packet fields are: a value beyond its declared width is a
// *FieldOverflowError, never clamped.
func NewRetune(ch Channel, timestamp uint64, nint uint16, nfrac uint32, freqsel, vcocap uint8, band Band, mode TuneMode, xbGPIO uint8) (RetuneRequest, error) {
	return ReuseRetune(make([]byte, WireLen), ch, timestamp, nint, nfrac, freqsel, vcocap, band, mode, xbGPIO)
}

// ReuseRetune constructs a retune request into buf, recycling its storage.
func ReuseRetune(buf []byte, ch Channel, timestamp uint64, nint uint16, nfrac uint32, freqsel, vcocap uint8, band Band, mode TuneMode, xbGPIO uint8) (RetuneRequest, error) {
	if len(buf) != WireLen {
		return RetuneRequest{}, ErrLengthMismatch
	}
	if err := checkWidth("nint", uint64(nint), 9); err != nil {
		return RetuneRequest{}, err
	}
	if err := checkWidth("nfrac", uint64(nfrac), 23); err != nil {
		return RetuneRequest{}, err
	}
	if err := checkWidth("freqsel", uint64(freqsel), 6); err != nil {
		return RetuneRequest{}, err
	}
	if err := checkWidth("vcocap", uint64(vcocap), 6); err != nil {
		return RetuneRequest{}, err
	}
	_ = buf[WireLen-1]
	buf[idxMagic] = MagicRetune
	putLE(buf[idxRetuneTime:], 8, timestamp)
	buf[idxRetuneIntFrac] = byte(nint >> 1)
	buf[idxRetuneIntFrac+1] = byte(nint&1)<<7 | byte(nfrac>>16)&0x7f
	buf[idxRetuneIntFrac+2] = byte(nfrac >> 8)
	buf[idxRetuneIntFrac+3] = byte(nfrac)
	fs := freqsel & retuneFreqSelMask
	if ch == ChannelTX {
		fs |= retuneFlagTX
	} else {
		fs |= retuneFlagRX
	}
	buf[idxRetuneFreqSel] = fs
	bs := vcocap & retuneVCOCapMask
	if band == BandLow {
		bs |= retuneFlagLowBand
	}
	if mode == TuneQuick {
		bs |= retuneFlagQuick
	}
	buf[idxRetuneBandSel] = bs
	buf[idxRetuneXBGPIO] = xbGPIO
	return RetuneRequest{buf: buf}, nil
}

// Bytes returns the request's wire image.
func (r RetuneRequest) Bytes() []byte { return r.buf }

func (r RetuneRequest) Timestamp() uint64 { return getLE(r.buf[idxRetuneTime:], 8) }

func (r RetuneRequest) NInt() uint16 {
	return uint16(r.buf[idxRetuneIntFrac])<<1 | uint16(r.buf[idxRetuneIntFrac+1])>>7
}

func (r RetuneRequest) NFrac() uint32 {
	return uint32(r.buf[idxRetuneIntFrac+1]&0x7f)<<16 |
		uint32(r.buf[idxRetuneIntFrac+2])<<8 |
		uint32(r.buf[idxRetuneIntFrac+3])
}

func (r RetuneRequest) FreqSel() uint8 { return r.buf[idxRetuneFreqSel] & retuneFreqSelMask }

func (r RetuneRequest) VCOCap() uint8 { return r.buf[idxRetuneBandSel] & retuneVCOCapMask }

func (r RetuneRequest) Channel() Channel {
	if r.buf[idxRetuneFreqSel]&retuneFlagTX != 0 {
		return ChannelTX
	}
	return ChannelRX
}

func (r RetuneRequest) Band() Band {
	if r.buf[idxRetuneBandSel]&retuneFlagLowBand != 0 {
		return BandLow
	}
	return BandHigh
}

func (r RetuneRequest) Mode() TuneMode {
	if r.buf[idxRetuneBandSel]&retuneFlagQuick != 0 {
		return TuneQuick
	}
	return TuneNormal
}

func (r RetuneRequest) XBGPIO() uint8 { return r.buf[idxRetuneXBGPIO] }

// Retune response layout:
//
//	[0]     magic
//	[1:9]   64-bit duration of the retune in timestamp ticks, little-endian
//	[9]     bits[5:0] VCOCAP value actually used
//	[10]    bit0 duration/VCOCAP valid, bit1 success
//	[11:16] reserved, zero
//
// Duration and VCOCAP are only valid for immediate retunes; scheduled ones
// respond before the event occurs.
const (
	idxRetuneDuration = 1
	idxRetuneRespVCO  = 9
	idxRetuneRespFlag = 10

	retuneRespFlagValid   = 1 << 0
	retuneRespFlagSuccess = 1 << 1
)

// RetuneResponse is a typed view over a WireLen buffer holding the
// firmware's answer to a retune request.
type RetuneResponse struct {
	buf []byte
}

// DecodeRetune reinterprets buf as a retune response.
func DecodeRetune(buf []byte) (RetuneResponse, error) {
	if len(buf) != WireLen {
		return RetuneResponse{}, ErrLengthMismatch
	}
	if buf[idxMagic] != MagicRetune {
		if _, err := VariantForMagic(buf[idxMagic]); err != nil {
			return RetuneResponse{}, ErrUnknownVariant
		}
		return RetuneResponse{}, ErrMagicMismatch
	}
	return RetuneResponse{buf: buf}, nil
}

// Duration returns how long the retune took in timestamp ticks. Zero when
// timestamps are not running for the tuned module.
func (r RetuneResponse) Duration() uint64 { return getLE(r.buf[idxRetuneDuration:], 8) }

// VCOCap returns the VCOCAP value the tuning algorithm settled on.
func (r RetuneResponse) VCOCap() uint8 { return r.buf[idxRetuneRespVCO] & retuneVCOCapMask }

// Valid reports whether Duration and VCOCap carry real values, which is only
// the case for immediate retunes.
func (r RetuneResponse) Valid() bool { return r.buf[idxRetuneRespFlag]&retuneRespFlagValid != 0 }

// IsSuccess reports whether the retune completed. A scheduled retune fails
// when the firmware's queue is full.
func (r RetuneResponse) IsSuccess() bool { return r.buf[idxRetuneRespFlag]&retuneRespFlagSuccess != 0 }

func (r RetuneResponse) String() string {
	return fmt.Sprintf("nios retune response duration=%d vcocap=%#x valid=%v success=%v",
		r.Duration(), r.VCOCap(), r.Valid(), r.IsSuccess())
}

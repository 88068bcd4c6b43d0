package nios

import (
	"errors"
	"testing"
)

func TestRetuneRoundTrip(t *testing.T) {
	req, err := NewRetune(ChannelTX, 0x0123456789abcdef, 0x1ff, 0x7fffff, 0x3f, 0x2a, BandLow, TuneQuick, 0x5a)
	if err != nil {
		t.Fatal(err)
	}
	if len(req.Bytes()) != WireLen {
		t.Fatalf("wire length %d", len(req.Bytes()))
	}
	if req.Bytes()[0] != MagicRetune {
		t.Fatalf("magic %#x", req.Bytes()[0])
	}
	if req.Timestamp() != 0x0123456789abcdef {
		t.Errorf("timestamp %#x", req.Timestamp())
	}
	if req.NInt() != 0x1ff {
		t.Errorf("nint %#x", req.NInt())
	}
	if req.NFrac() != 0x7fffff {
		t.Errorf("nfrac %#x", req.NFrac())
	}
	if req.FreqSel() != 0x3f {
		t.Errorf("freqsel %#x", req.FreqSel())
	}
	if req.VCOCap() != 0x2a {
		t.Errorf("vcocap %#x", req.VCOCap())
	}
	if req.Channel() != ChannelTX {
		t.Errorf("channel %v", req.Channel())
	}
	if req.Band() != BandLow {
		t.Errorf("band %v", req.Band())
	}
	if req.Mode() != TuneQuick {
		t.Errorf("mode %v", req.Mode())
	}
	if req.XBGPIO() != 0x5a {
		t.Errorf("xb gpio %#x", req.XBGPIO())
	}
}

func TestRetuneNIntFracPacking(t *testing.T) {
	// NINT straddles bytes 9 and 10; NFRAC the rest. Check the exact bit
	// placement the firmware expects.
	req, err := NewRetune(ChannelRX, RetuneNow, 0x155, 0x2aaaaa, 1, 2, BandHigh, TuneNormal, 0)
	if err != nil {
		t.Fatal(err)
	}
	b := req.Bytes()
	if b[9] != 0xaa { // NINT[8:1] of 0b101010101
		t.Errorf("byte 9 = %#x", b[9])
	}
	if b[10] != 0x80|0x2a { // NINT[0]=1, NFRAC[22:16] of 0x2aaaaa
		t.Errorf("byte 10 = %#x", b[10])
	}
	if b[11] != 0xaa || b[12] != 0xaa {
		t.Errorf("bytes 11,12 = %#x,%#x", b[11], b[12])
	}
	if req.NInt() != 0x155 || req.NFrac() != 0x2aaaaa {
		t.Errorf("unpack mismatch: nint=%#x nfrac=%#x", req.NInt(), req.NFrac())
	}
}

func TestRetuneOverflow(t *testing.T) {
	var fo *FieldOverflowError
	if _, err := NewRetune(ChannelRX, 0, 0x200, 0, 0, 0, BandHigh, TuneNormal, 0); !errors.As(err, &fo) {
		t.Errorf("nint overflow: %v", err)
	}
	if _, err := NewRetune(ChannelRX, 0, 0, 0x800000, 0, 0, BandHigh, TuneNormal, 0); !errors.As(err, &fo) {
		t.Errorf("nfrac overflow: %v", err)
	}
	if _, err := NewRetune(ChannelRX, 0, 0, 0, 0x40, 0, BandHigh, TuneNormal, 0); !errors.As(err, &fo) {
		t.Errorf("freqsel overflow: %v", err)
	}
	if _, err := NewRetune(ChannelRX, 0, 0, 0, 0, 0x40, BandHigh, TuneNormal, 0); !errors.As(err, &fo) {
		t.Errorf("vcocap overflow: %v", err)
	}
}

func TestRetuneResponse(t *testing.T) {
	buf := make([]byte, WireLen)
	buf[0] = MagicRetune
	buf[1] = 0x40 // duration 64
	buf[9] = 0x33
	buf[10] = 0x03 // valid | success
	resp, err := DecodeRetune(buf)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Duration() != 64 || resp.VCOCap() != 0x33 || !resp.Valid() || !resp.IsSuccess() {
		t.Errorf("response fields: %v", resp)
	}

	if _, err := DecodeRetune(buf[:WireLen-1]); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("short buffer: %v", err)
	}
	buf[0] = 0x99
	if _, err := DecodeRetune(buf); !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("unassigned magic: %v", err)
	}
	buf[0] = Magic8x8
	if _, err := DecodeRetune(buf); !errors.Is(err, ErrMagicMismatch) {
		t.Errorf("generic magic: %v", err)
	}
}

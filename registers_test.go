package bladerf_test

import (
	"context"
	"errors"
	"testing"

	"github.com/softradio/bladerf"
	"github.com/softradio/bladerf/nios"
)

func TestFPGAVersion(t *testing.T) {
	dev, fw := openMock(t)
	// v0.6.2: major and minor in the top bytes, patch byte-swapped in the
	// low half of the word.
	fw.Seed(nios.Variant8x32, nios.TargetVersion, 0, 0x00060200)

	v, err := dev.FPGAVersion(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != (bladerf.SemanticVersion{Major: 0, Minor: 6, Patch: 2}) {
		t.Errorf("version %+v", v)
	}
	if v.String() != "v0.6.2" {
		t.Errorf("version string %q", v.String())
	}
}

func TestConfigRegister(t *testing.T) {
	dev, fw := openMock(t)
	ctx := context.Background()

	if err := dev.ConfigWrite(ctx, 0x57); err != nil {
		t.Fatal(err)
	}
	if got, _ := fw.Peek(nios.Variant8x32, nios.TargetControl, 0); got != 0x57 {
		t.Errorf("control register %#x", got)
	}
	got, err := dev.ConfigRead(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x57 {
		t.Errorf("read back %#x", got)
	}
}

func TestLMS6AndSI5338(t *testing.T) {
	dev, fw := openMock(t)
	ctx := context.Background()

	if err := dev.LMS6Write(ctx, 0x25, 0x3f); err != nil {
		t.Fatal(err)
	}
	if v, err := dev.LMS6Read(ctx, 0x25); err != nil || v != 0x3f {
		t.Errorf("lms6 read back: %#x, %v", v, err)
	}

	fw.Seed(nios.Variant8x8, nios.TargetSI5338, 0x1c, 0xb0)
	if v, err := dev.SI5338Read(ctx, 0x1c); err != nil || v != 0xb0 {
		t.Errorf("si5338 read: %#x, %v", v, err)
	}
	// The two 8x8 targets must not alias.
	if v, err := dev.LMS6Read(ctx, 0x1c); err != nil || v != 0 {
		t.Errorf("lms6 sees si5338 register: %#x, %v", v, err)
	}
}

func TestExpansionGPIO(t *testing.T) {
	dev, fw := openMock(t)
	ctx := context.Background()

	if err := dev.ExpansionGPIOWrite(ctx, 0x0000ff00, 0x00001200); err != nil {
		t.Fatal(err)
	}
	if got, _ := fw.Peek(nios.Variant32x32, nios.TargetExpansion, 0x0000ff00); got != 0x00001200 {
		t.Errorf("masked write stored %#x", got)
	}

	fw.Seed(nios.Variant32x32, nios.TargetExpansion, 0xffffffff, 0xdeadbeef)
	if got, err := dev.ExpansionGPIORead(ctx); err != nil || got != 0xdeadbeef {
		t.Errorf("gpio read: %#x, %v", got, err)
	}

	if err := dev.ExpansionGPIODirWrite(ctx, 0xffffffff, 0x0f0f0f0f); err != nil {
		t.Fatal(err)
	}
	if got, err := dev.ExpansionGPIODirRead(ctx); err != nil || got != 0x0f0f0f0f {
		t.Errorf("direction read: %#x, %v", got, err)
	}
}

func TestIQCorrection(t *testing.T) {
	dev, _ := openMock(t)
	ctx := context.Background()

	for _, ch := range []nios.Channel{nios.ChannelRX, nios.ChannelTX} {
		if err := dev.SetIQGainCorrection(ctx, ch, -170); err != nil {
			t.Fatal(err)
		}
		if err := dev.SetIQPhaseCorrection(ctx, ch, 64); err != nil {
			t.Fatal(err)
		}
	}
	for _, ch := range []nios.Channel{nios.ChannelRX, nios.ChannelTX} {
		if g, err := dev.IQGainCorrection(ctx, ch); err != nil || g != -170 {
			t.Errorf("%v gain: %d, %v", ch, g, err)
		}
		if p, err := dev.IQPhaseCorrection(ctx, ch); err != nil || p != 64 {
			t.Errorf("%v phase: %d, %v", ch, p, err)
		}
	}
}

func TestVCTCXOAndSynth(t *testing.T) {
	dev, fw := openMock(t)
	ctx := context.Background()

	if err := dev.VCTCXOTrimWrite(ctx, 0x8fff); err != nil {
		t.Fatal(err)
	}
	if got, _ := fw.Peek(nios.Variant8x16, nios.TargetVCTCXODAC, 0); got != 0x8fff {
		t.Errorf("trim dac %#x", got)
	}

	if err := dev.XB200SynthWrite(ctx, 0x00580005); err != nil {
		t.Fatal(err)
	}
	if got, _ := fw.Peek(nios.Variant8x32, nios.TargetADF4351, 0); got != 0x00580005 {
		t.Errorf("synth register %#x", got)
	}
}

func TestTimestamp(t *testing.T) {
	dev, fw := openMock(t)
	ctx := context.Background()
	fw.Seed(nios.Variant8x64, nios.TargetTimestamp, uint64(nios.AddrTimestampRX), 0x0123456789abcdef)
	fw.Seed(nios.Variant8x64, nios.TargetTimestamp, uint64(nios.AddrTimestampTX), 42)

	if ts, err := dev.Timestamp(ctx, nios.ChannelRX); err != nil || ts != 0x0123456789abcdef {
		t.Errorf("rx timestamp: %#x, %v", ts, err)
	}
	if ts, err := dev.Timestamp(ctx, nios.ChannelTX); err != nil || ts != 42 {
		t.Errorf("tx timestamp: %#x, %v", ts, err)
	}
}

func TestReadRegisterOpFailed(t *testing.T) {
	dev, fw := openMock(t)
	fw.ClearSuccess = true

	if _, err := dev.ConfigRead(context.Background()); !errors.Is(err, bladerf.ErrOpFailed) {
		t.Errorf("cleared success flag: got %v, want ErrOpFailed", err)
	}
}

func TestRetuneImmediate(t *testing.T) {
	dev, fw := openMock(t)
	fw.RetuneDuration = 3170
	fw.RetuneVCOCap = 0x19

	res, err := dev.Retune(context.Background(), nios.ChannelRX, nios.RetuneNow,
		0x8f, 0x4e1c2, 0x27, 0x20, nios.BandHigh, nios.TuneNormal, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.Duration != 3170 || res.VCOCap != 0x19 {
		t.Errorf("retune result %+v", res)
	}
}

func TestRetuneQueueFull(t *testing.T) {
	dev, fw := openMock(t)
	fw.RetuneQueueFull = true

	_, err := dev.Retune(context.Background(), nios.ChannelTX, 1<<40,
		0x8f, 0x4e1c2, 0x27, 0x20, nios.BandHigh, nios.TuneNormal, 0)
	if !errors.Is(err, bladerf.ErrRetuneQueueFull) {
		t.Fatalf("full queue: got %v, want ErrRetuneQueueFull", err)
	}

	// After draining (knob is one-shot) the same request is accepted.
	if _, err := dev.Retune(context.Background(), nios.ChannelTX, 1<<40,
		0x8f, 0x4e1c2, 0x27, 0x20, nios.BandHigh, nios.TuneNormal, 0); err != nil {
		t.Errorf("scheduled retune: %v", err)
	}
}

func TestRetuneClearQueue(t *testing.T) {
	dev, _ := openMock(t)

	res, err := dev.Retune(context.Background(), nios.ChannelRX, nios.RetuneClearQueue,
		0, 0, 0, 0, nios.BandHigh, nios.TuneNormal, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Error("queue drop reported a tuning duration")
	}
}

func TestRetuneImmediateFailure(t *testing.T) {
	dev, fw := openMock(t)
	fw.ClearSuccess = true

	_, err := dev.Retune(context.Background(), nios.ChannelRX, nios.RetuneNow,
		0x8f, 0x4e1c2, 0x27, 0x20, nios.BandHigh, nios.TuneNormal, 0)
	if !errors.Is(err, bladerf.ErrOpFailed) {
		t.Fatalf("failed immediate retune: got %v, want ErrOpFailed", err)
	}
}

// Package nios implements the host side of the bladeRF NIOS II control
// protocol: fixed 16-byte binary packets exchanged with the FPGA soft core
// over a pair of USB bulk endpoints. The package covers packet construction,
// encoding, decoding and validation. Transfer of packets is the concern of
// the parent bladerf package.
package nios

import (
	"errors"
	"fmt"
)

// WireLen is the total length in bytes of every NIOS packet on the wire,
// fixed by the FX3 firmware's USB payload size. All six generic variants and
// the retune packets occupy a buffer of exactly this length regardless of how
// many bytes their fields use.
const WireLen = 16

// Magic bytes assigned by the firmware, one per packet family.
const (
	Magic8x8    byte = 0x41 // 'A'
	Magic8x16   byte = 0x42 // 'B'
	Magic8x32   byte = 0x43 // 'C'
	Magic8x64   byte = 0x44 // 'D'
	Magic16x64  byte = 0x45 // 'E'
	Magic32x32  byte = 0x4B // 'K'
	MagicRetune byte = 0x54 // 'T'
)

// Flag bits of the generic packet's flags byte. FlagSuccess is meaningful
// only on responses and is ignored by the firmware on requests. All remaining
// bits are reserved and must be zero.
const (
	FlagWrite   uint8 = 1 << 0
	FlagSuccess uint8 = 1 << 1

	flagReserved = ^(FlagWrite | FlagSuccess)
)

// Variant identifies one of the six generic (address width)x(data width)
// packet shapes. The variant is the single source of truth for field widths
// and the magic byte; no other component hardcodes them.
type Variant uint8

const (
	Variant8x8 Variant = iota
	Variant8x16
	Variant8x32
	Variant8x64
	Variant16x64
	Variant32x32
	numVariants
)

var variants = [numVariants]struct {
	name     string
	magic    byte
	addrBits uint8
	dataBits uint8
}{
	Variant8x8:   {"8x8", Magic8x8, 8, 8},
	Variant8x16:  {"8x16", Magic8x16, 8, 16},
	Variant8x32:  {"8x32", Magic8x32, 8, 32},
	Variant8x64:  {"8x64", Magic8x64, 8, 64},
	Variant16x64: {"16x64", Magic16x64, 16, 64},
	Variant32x32: {"32x32", Magic32x32, 32, 32},
}

var (
	ErrUnknownVariant = errors.New("unknown nios packet magic")
	ErrMagicMismatch  = errors.New("nios packet magic does not match variant")
	ErrLengthMismatch = errors.New("nios packet buffer length mismatch")
)

// VariantForMagic resolves the unique variant carrying the given magic byte.
func VariantForMagic(magic byte) (Variant, error) {
	for v := Variant(0); v < numVariants; v++ {
		if variants[v].magic == magic {
			return v, nil
		}
	}
	return 0, ErrUnknownVariant
}

func (v Variant) valid() bool { return v < numVariants }

// Magic returns the wire magic byte of the variant.
func (v Variant) Magic() byte { return variants[v].magic }

// AddrBits returns the address field width in bits (8, 16 or 32).
func (v Variant) AddrBits() int { return int(variants[v].addrBits) }

// DataBits returns the data field width in bits (8, 16, 32 or 64).
func (v Variant) DataBits() int { return int(variants[v].dataBits) }

func (v Variant) addrBytes() int { return int(variants[v].addrBits) / 8 }
func (v Variant) dataBytes() int { return int(variants[v].dataBits) / 8 }

func (v Variant) String() string {
	if !v.valid() {
		return "nios(invalid)"
	}
	return variants[v].name
}

// FieldOverflowError reports a field value that does not fit the width
// declared by the packet's variant. Values are never silently truncated.
type FieldOverflowError struct {
	Field string
	Value uint64
	Bits  int
}

func (e *FieldOverflowError) Error() string {
	return fmt.Sprintf("nios %s field value %#x exceeds %d bits", e.Field, e.Value, e.Bits)
}

// ValidationError reports the first invariant violated by a packet buffer.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid nios packet: " + e.Reason
}

func checkWidth(field string, value uint64, bits int) error {
	if bits < 64 && value>>uint(bits) != 0 {
		return &FieldOverflowError{Field: field, Value: value, Bits: bits}
	}
	return nil
}

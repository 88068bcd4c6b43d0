package nios

import (
	"fmt"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Generic packet wire layout. The address field starts at byte 3 and the
// data field immediately follows it; how many bytes each occupies depends on
// the variant. Everything after the data field up to WireLen is padding and
// must be zero.
const (
	idxMagic  = 0
	idxFlags  = 1
	idxTarget = 2
	idxAddr   = 3
)

// Packet is a typed view over an exclusively-held WireLen-sized buffer
// holding one generic NIOS packet. The zero value is not usable; obtain
// packets through New, Reuse or Decode.
type Packet struct {
	variant Variant
	buf     []byte
}

// New constructs a request packet in freshly allocated storage. It returns a
// *FieldOverflowError if addr or data exceed the widths declared by v.
func New(v Variant, target, flags uint8, addr, data uint64) (Packet, error) {
	return Reuse(make([]byte, WireLen), v, target, flags, addr, data)
}

// Reuse constructs a packet into buf without copying, recycling storage from
// a completed exchange. Ownership of buf transfers to the returned packet;
// its prior contents are fully overwritten, never read. buf must be exactly
// WireLen bytes long.
func Reuse(buf []byte, v Variant, target, flags uint8, addr, data uint64) (Packet, error) {
	if len(buf) != WireLen {
		return Packet{}, ErrLengthMismatch
	}
	if !v.valid() {
		return Packet{}, ErrUnknownVariant
	}
	if err := checkWidth("address", addr, v.AddrBits()); err != nil {
		return Packet{}, err
	}
	if err := checkWidth("data", data, v.DataBits()); err != nil {
		return Packet{}, err
	}
	_ = buf[WireLen-1]
	buf[idxMagic] = v.Magic()
	buf[idxFlags] = flags
	buf[idxTarget] = target
	na := v.addrBytes()
	nd := v.dataBytes()
	putLE(buf[idxAddr:], na, addr)
	putLE(buf[idxAddr+na:], nd, data)
	for i := idxAddr + na + nd; i < WireLen; i++ {
		buf[i] = 0
	}
	return Packet{variant: v, buf: buf}, nil
}

// Decode reinterprets buf as a packet of variant v. It returns
// ErrLengthMismatch if buf is not exactly WireLen bytes, ErrUnknownVariant if
// the embedded magic byte belongs to no variant, and ErrMagicMismatch if it
// belongs to a different variant than v.
func Decode(v Variant, buf []byte) (Packet, error) {
	if len(buf) != WireLen {
		return Packet{}, ErrLengthMismatch
	}
	if !v.valid() {
		return Packet{}, ErrUnknownVariant
	}
	if buf[idxMagic] != v.Magic() {
		if _, err := VariantForMagic(buf[idxMagic]); err != nil {
			return Packet{}, ErrUnknownVariant
		}
		return Packet{}, ErrMagicMismatch
	}
	return Packet{variant: v, buf: buf}, nil
}

// Variant returns the packet's variant descriptor.
func (p Packet) Variant() Variant { return p.variant }

// Bytes returns the packet's wire image. The slice aliases the packet's
// buffer; it remains valid until the buffer is recycled with Reuse.
func (p Packet) Bytes() []byte { return p.buf }

// Clone returns a copy of the packet backed by its own storage.
func (p Packet) Clone() Packet {
	buf := make([]byte, WireLen)
	copy(buf, p.buf)
	return Packet{variant: p.variant, buf: buf}
}

// Target returns the addressed sub-peripheral ID.
func (p Packet) Target() uint8 { return p.buf[idxTarget] }

// Flags returns the raw flags byte.
func (p Packet) Flags() uint8 { return p.buf[idxFlags] }

// Addr returns the address field, zero-extended to 64 bits.
func (p Packet) Addr() uint64 { return getLE(p.buf[idxAddr:], p.variant.addrBytes()) }

// Data returns the data field, zero-extended to 64 bits.
func (p Packet) Data() uint64 {
	return getLE(p.buf[idxAddr+p.variant.addrBytes():], p.variant.dataBytes())
}

// IsWrite reports whether the packet describes a write operation.
func (p Packet) IsWrite() bool { return p.buf[idxFlags]&FlagWrite != 0 }

// IsSuccess reports the success flag. Meaningful only on responses; a
// response with the flag cleared is still a valid, fully decodable packet.
func (p Packet) IsSuccess() bool { return p.buf[idxFlags]&FlagSuccess != 0 }

// SetTarget overwrites the target ID.
func (p Packet) SetTarget(target uint8) { p.buf[idxTarget] = target }

// SetFlags overwrites the flags byte.
func (p Packet) SetFlags(flags uint8) { p.buf[idxFlags] = flags }

// SetAddr overwrites the address field after re-checking its width.
func (p Packet) SetAddr(addr uint64) error {
	if err := checkWidth("address", addr, p.variant.AddrBits()); err != nil {
		return err
	}
	putLE(p.buf[idxAddr:], p.variant.addrBytes(), addr)
	return nil
}

// SetData overwrites the data field after re-checking its width.
func (p Packet) SetData(data uint64) error {
	if err := checkWidth("data", data, p.variant.DataBits()); err != nil {
		return err
	}
	putLE(p.buf[idxAddr+p.variant.addrBytes():], p.variant.dataBytes(), data)
	return nil
}

// Validate checks every invariant the wire format imposes on the buffer and
// returns the first violation as a *ValidationError. It never panics; a
// malformed buffer is a recoverable condition for the caller to handle.
func (p Packet) Validate() error {
	if len(p.buf) != WireLen {
		return &ValidationError{Reason: fmt.Sprintf("length %d, want %d", len(p.buf), WireLen)}
	}
	if !p.variant.valid() {
		return &ValidationError{Reason: "no variant bound"}
	}
	if p.buf[idxMagic] != p.variant.Magic() {
		return &ValidationError{Reason: fmt.Sprintf("magic %#x, want %#x", p.buf[idxMagic], p.variant.Magic())}
	}
	if p.buf[idxFlags]&flagReserved != 0 {
		return &ValidationError{Reason: fmt.Sprintf("reserved flag bits set in %#08b", p.buf[idxFlags])}
	}
	for i := idxAddr + p.variant.addrBytes() + p.variant.dataBytes(); i < WireLen; i++ {
		if p.buf[i] != 0 {
			return &ValidationError{Reason: fmt.Sprintf("nonzero padding byte at offset %d", i)}
		}
	}
	return nil
}

func (p Packet) String() string {
	op := "read"
	if p.IsWrite() {
		op = "write"
	}
	return fmt.Sprintf("nios %s %s target=%#x addr=%#x data=%#x flags=%#04b",
		p.variant.String(), op, p.Target(), p.Addr(), p.Data(), p.Flags())
}

// VariantOf resolves the variant matching the widths of the unsigned types A
// and D, mirroring how the firmware headers pair widths with magics. Types
// with no matching variant (including uint and uintptr, whose sizes are
// platform-dependent) yield ErrUnknownVariant.
func VariantOf[A constraints.Unsigned, D constraints.Unsigned]() (Variant, error) {
	var a A
	var d D
	switch [2]uintptr{unsafe.Sizeof(a), unsafe.Sizeof(d)} {
	case [2]uintptr{1, 1}:
		return Variant8x8, nil
	case [2]uintptr{1, 2}:
		return Variant8x16, nil
	case [2]uintptr{1, 4}:
		return Variant8x32, nil
	case [2]uintptr{1, 8}:
		return Variant8x64, nil
	case [2]uintptr{2, 8}:
		return Variant16x64, nil
	case [2]uintptr{4, 4}:
		return Variant32x32, nil
	}
	return 0, ErrUnknownVariant
}

// putLE stores the low n bytes of v little-endian at the start of b.
func putLE(b []byte, n int, v uint64) {
	for i := 0; i < n; i++ {
		b[i] = byte(v >> uint(8*i))
	}
}

// getLE reassembles an n-byte little-endian field from the start of b.
func getLE(b []byte, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(b[i]) << uint(8*i)
	}
	return v
}

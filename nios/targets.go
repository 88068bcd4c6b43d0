package nios

// Target IDs select the on-device peripheral or register bank a packet
// addresses. Each generic variant has its own target namespace. IDs 0x80
// through 0xff are reserved for user customizations and never assigned by
// the vendor.

// 8x8 targets.
const (
	TargetLMS6   uint8 = 0x00 // LMS6002D transceiver register access
	TargetSI5338 uint8 = 0x01 // Si5338 clock generator register access
)

// 8x16 targets.
const (
	TargetVCTCXODAC uint8 = 0x00 // VCTCXO trim DAC
	TargetIQCorr    uint8 = 0x01 // IQ correction block
)

// Sub-addresses of the IQ correction target.
const (
	AddrIQCorrRXGain  uint8 = 0x00
	AddrIQCorrRXPhase uint8 = 0x01
	AddrIQCorrTXGain  uint8 = 0x02
	AddrIQCorrTXPhase uint8 = 0x03
)

// 8x32 targets.
const (
	TargetVersion uint8 = 0x00 // FPGA version word, read only
	TargetControl uint8 = 0x01 // FPGA control/configuration register
	TargetADF4351 uint8 = 0x02 // XB-200 ADF4351 synthesizer, write only
)

// 8x64 targets.
const (
	TargetTimestamp uint8 = 0x00 // free-running timestamp readback, read only
)

// Sub-addresses of the timestamp target.
const (
	AddrTimestampRX uint8 = 0x00
	AddrTimestampTX uint8 = 0x01
)

// 32x32 targets. For the expansion targets the address field is a bitmask
// selecting which GPIO bits to read or write.
const (
	TargetExpansion    uint8 = 0x00 // expansion I/O
	TargetExpansionDir uint8 = 0x01 // expansion I/O direction register
)

// UserTargetMin is the first target ID available for user customizations.
const UserTargetMin uint8 = 0x80

// Channel selects the RX or TX half of the transceiver in packets and
// register helpers that are channel-scoped.
type Channel uint8

const (
	ChannelRX Channel = iota
	ChannelTX
)

func (c Channel) String() string {
	if c == ChannelRX {
		return "rx"
	}
	return "tx"
}

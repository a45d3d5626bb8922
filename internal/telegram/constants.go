// internal/telegram/constants.go
package telegram

// Wire layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- TELEGRAM ----

// Sync marks the first byte of every telegram.
const Sync byte = 0xCA

// HeaderSize is sync, sequence, length (2), count and header check.
const HeaderSize = 6

// TrailerSize is the CRC-32 closing every telegram.
const TrailerSize = 4

// ---- DATAGRAM ----

// DatagramHeaderSize is command, address (4) and data length (2).
const DatagramHeaderSize = 7

// DatagramTrailerSize is the datagram check and the working counter (2).
const DatagramTrailerSize = 3

// MinTelegramSize is the smallest well formed telegram: one empty datagram.
const MinTelegramSize = HeaderSize + DatagramHeaderSize + DatagramTrailerSize + TrailerSize

// ---- COMMAND BITS ----

const (
	dirMask      byte = 0x03
	modeShift         = 2
	modeMask     byte = 0x03 << modeShift
	flagConflict byte = 1 << 6
	flagError    byte = 1 << 7
	reservedBits byte = 1<<4 | 1<<5
)

// ---- LIMITS ----

// Limits bound what a codec accepts or produces.
type Limits struct {
	MaxTelegram  int
	MaxDatagrams int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxTelegram:  1024,
		MaxDatagrams: 32,
	}
}

func (l Limits) normalized() Limits {
	d := DefaultLimits()
	if l.MaxTelegram <= 0 {
		l.MaxTelegram = d.MaxTelegram
	}
	if l.MaxTelegram > 0xFFFF {
		l.MaxTelegram = 0xFFFF
	}
	if l.MaxDatagrams <= 0 {
		l.MaxDatagrams = d.MaxDatagrams
	}
	if l.MaxDatagrams > 255 {
		l.MaxDatagrams = 255
	}
	return l
}

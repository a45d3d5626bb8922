// internal/telegram/address.go
package telegram

import "fmt"

// Mode selects how slaves match a datagram.
type Mode uint8

const (
	// ModePositional matches the slave at a hop count from the master.
	ModePositional Mode = 1
	// ModeFixed matches the slave with a configured station address.
	ModeFixed Mode = 2
	// ModeLogical matches every slave with an overlapping window.
	ModeLogical Mode = 3
)

func (m Mode) Valid() bool { return m >= ModePositional && m <= ModeLogical }

func (m Mode) String() string {
	switch m {
	case ModePositional:
		return "positional"
	case ModeFixed:
		return "fixed"
	case ModeLogical:
		return "logical"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Direction is the data flow of a datagram as seen from the master.
type Direction uint8

const (
	Read      Direction = 1
	Write     Direction = 2
	ReadWrite Direction = 3
)

func (d Direction) Valid() bool  { return d >= Read && d <= ReadWrite }
func (d Direction) Reads() bool  { return d&Read != 0 }
func (d Direction) Writes() bool { return d&Write != 0 }

func (d Direction) String() string {
	switch d {
	case Read:
		return "read"
	case Write:
		return "write"
	case ReadWrite:
		return "read-write"
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// Address is the 4-byte address field tagged with its mode.
//
//	positional: int16 hop count, uint16 local offset
//	fixed:      uint16 station,  uint16 local offset
//	logical:    uint32 logical address
type Address struct {
	mode Mode
	raw  uint32
}

func Positional(hop int16, offset uint16) Address {
	return Address{mode: ModePositional, raw: uint32(uint16(hop))<<16 | uint32(offset)}
}

func Fixed(station, offset uint16) Address {
	return Address{mode: ModeFixed, raw: uint32(station)<<16 | uint32(offset)}
}

func Logical(addr uint32) Address {
	return Address{mode: ModeLogical, raw: addr}
}

func (a Address) Mode() Mode      { return a.mode }
func (a Address) Raw() uint32     { return a.raw }
func (a Address) Hop() int16      { return int16(uint16(a.raw >> 16)) }
func (a Address) Station() uint16 { return uint16(a.raw >> 16) }
func (a Address) Offset() uint16  { return uint16(a.raw) }
func (a Address) Logical() uint32 { return a.raw }
func (a Address) IsZero() bool    { return a.mode == 0 }

// WithHop returns a positional address carrying hop instead of the current count.
func (a Address) WithHop(hop int16) Address {
	return Positional(hop, a.Offset())
}

func (a Address) String() string {
	switch a.mode {
	case ModePositional:
		return fmt.Sprintf("pos(%d)+%#04x", a.Hop(), a.Offset())
	case ModeFixed:
		return fmt.Sprintf("fix(%d)+%#04x", a.Station(), a.Offset())
	case ModeLogical:
		return fmt.Sprintf("log(%#08x)", a.raw)
	}
	return fmt.Sprintf("addr(%d,%#08x)", a.mode, a.raw)
}

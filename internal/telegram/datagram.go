// internal/telegram/datagram.go
package telegram

import (
	"encoding/binary"
	"fmt"
)

// Datagram is one addressed operation inside a telegram.
//
// Data keeps its length for the whole trip. Slaves rewrite Data in place,
// set Mask bits for the bytes they supplied, raise the flags, advance the
// positional hop and increment WKC.
type Datagram struct {
	Dir  Direction
	Addr Address

	// Error is raised by a slave that matched but refused the exchange.
	Error bool
	// Conflict is raised by a slave that found a logical byte already
	// supplied by another slave with a different value.
	Conflict bool

	Data []byte
	// Mask has one bit per Data byte; present only when HasMask reports true.
	Mask []byte

	WKC uint16
}

// NewDatagram builds a datagram and allocates its claim mask when needed.
func NewDatagram(dir Direction, addr Address, data []byte) Datagram {
	d := Datagram{Dir: dir, Addr: addr, Data: data}
	if d.HasMask() {
		d.Mask = make([]byte, MaskSize(len(data)))
	}
	return d
}

// MaskSize is the claim mask length for n data bytes.
func MaskSize(n int) int { return (n + 7) / 8 }

// HasMask reports whether the datagram carries a claim mask on the wire.
func (d *Datagram) HasMask() bool {
	return hasMask(d.Addr.Mode(), d.Dir)
}

func hasMask(m Mode, dir Direction) bool {
	return m == ModeLogical && dir.Reads()
}

// Claimed reports whether data byte i was supplied by a slave.
func (d *Datagram) Claimed(i int) bool {
	return d.Mask != nil && d.Mask[i/8]&(1<<(uint(i)%8)) != 0
}

// Claim marks data byte i as supplied.
func (d *Datagram) Claim(i int) {
	d.Mask[i/8] |= 1 << (uint(i) % 8)
}

// Covered reports whether every data byte was claimed.
func (d *Datagram) Covered() bool {
	if d.Mask == nil {
		return false
	}
	for i := range d.Data {
		if !d.Claimed(i) {
			return false
		}
	}
	return true
}

// Size is the encoded size of the datagram.
func (d *Datagram) Size() int {
	return datagramSize(len(d.Data), d.HasMask())
}

func datagramSize(n int, mask bool) int {
	size := DatagramHeaderSize + n + DatagramTrailerSize
	if mask {
		size += MaskSize(n)
	}
	return size
}

func (d *Datagram) command() byte {
	c := byte(d.Dir)&dirMask | byte(d.Addr.Mode())<<modeShift&modeMask
	if d.Conflict {
		c |= flagConflict
	}
	if d.Error {
		c |= flagError
	}
	return c
}

func (d *Datagram) validate() error {
	if !d.Dir.Valid() {
		return fmt.Errorf("%w: %s", ErrFraming, d.Dir)
	}
	if !d.Addr.Mode().Valid() {
		return fmt.Errorf("%w: %s", ErrFraming, d.Addr.Mode())
	}
	if len(d.Data) > 0xFFFF {
		return fmt.Errorf("%w: datagram data %d bytes", ErrTooLarge, len(d.Data))
	}
	if d.HasMask() && len(d.Mask) != MaskSize(len(d.Data)) {
		return fmt.Errorf("%w: claim mask %d bytes for %d data bytes", ErrFraming, len(d.Mask), len(d.Data))
	}
	return nil
}

// AppendBinary appends the encoded datagram to dst, recomputing the check.
// dst may share memory with d.Data when the datagram is re-encoded in place.
func (d *Datagram) AppendBinary(dst []byte) []byte {
	start := len(dst)
	dst = append(dst, d.command())
	dst = binary.BigEndian.AppendUint32(dst, d.Addr.Raw())
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(d.Data)))
	dst = append(dst, d.Data...)
	if d.HasMask() {
		if d.Mask == nil {
			dst = append(dst, make([]byte, MaskSize(len(d.Data)))...)
		} else {
			dst = append(dst, d.Mask...)
		}
	}
	dst = append(dst, xorSum(dst[start:]))
	return binary.BigEndian.AppendUint16(dst, d.WKC)
}

// Clone returns a datagram that shares no memory with d.
func (d *Datagram) Clone() Datagram {
	c := *d
	c.Data = append([]byte(nil), d.Data...)
	if d.Mask != nil {
		c.Mask = append([]byte(nil), d.Mask...)
	}
	return c
}

func (d *Datagram) String() string {
	return fmt.Sprintf("%s %s len=%d wkc=%d", d.Dir, d.Addr, len(d.Data), d.WKC)
}

func xorSum(b []byte) byte {
	var x byte
	for _, v := range b {
		x ^= v
	}
	return x
}

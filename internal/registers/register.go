// internal/registers/register.go
package registers

import (
	"encoding/binary"
	"fmt"
)

// Access is what the bus (the master) may do with a register.
// The local application may always read and write.
type Access uint8

const (
	ReadOnly Access = iota + 1
	WriteOnly
	ReadWrite
)

func (a Access) Readable() bool { return a == ReadOnly || a == ReadWrite }
func (a Access) Writable() bool { return a == WriteOnly || a == ReadWrite }

func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "ro"
	case WriteOnly:
		return "wo"
	case ReadWrite:
		return "rw"
	}
	return fmt.Sprintf("access(%d)", uint8(a))
}

// ParseAccess accepts the config spellings ro, wo and rw.
func ParseAccess(s string) (Access, error) {
	switch s {
	case "ro", "read-only":
		return ReadOnly, nil
	case "wo", "write-only":
		return WriteOnly, nil
	case "rw", "read-write", "":
		return ReadWrite, nil
	}
	return 0, fmt.Errorf("registers: unknown access %q", s)
}

// Descriptor is the untyped view of a register in a slave buffer.
type Descriptor struct {
	Offset uint16
	Width  int
	Access Access
}

func (d Descriptor) End() int { return int(d.Offset) + d.Width }

// Register is a typed location in a slave buffer.
// Declare registers once as package variables shared by master and slave code.
type Register[T any] struct {
	Offset uint16
	Access Access
	width  int
}

// New declares a register. T must have a fixed binary size.
func New[T any](offset uint16, access Access) Register[T] {
	return Register[T]{Offset: offset, Access: access, width: sizeOf[T]()}
}

func (r Register[T]) Width() int { return r.width }

func (r Register[T]) Descriptor() Descriptor {
	return Descriptor{Offset: r.Offset, Width: r.width, Access: r.Access}
}

// Logical is a typed location in the logical address space.
type Logical[T any] struct {
	Address uint32
	Access  Access
	width   int
}

func NewLogical[T any](addr uint32, access Access) Logical[T] {
	return Logical[T]{Address: addr, Access: access, width: sizeOf[T]()}
}

func (r Logical[T]) Width() int { return r.width }

// ---- value encoding ----

func sizeOf[T any]() int {
	var v T
	n := binary.Size(v)
	if n <= 0 {
		panic(fmt.Sprintf("registers: %T has no fixed binary size", v))
	}
	return n
}

// Encode returns the big-endian wire bytes of v.
func Encode[T any](v T) []byte {
	b := make([]byte, sizeOf[T]())
	if _, err := binary.Encode(b, binary.BigEndian, v); err != nil {
		panic(fmt.Sprintf("registers: encode %T: %v", v, err))
	}
	return b
}

// Decode reads a T from the big-endian bytes in b.
func Decode[T any](b []byte) (T, error) {
	var v T
	if _, err := binary.Decode(b, binary.BigEndian, &v); err != nil {
		return v, fmt.Errorf("registers: decode %T: %w", v, err)
	}
	return v, nil
}

// internal/addressing/resolver.go
package addressing

import (
	"github.com/tamzrod/uartcat/internal/registers"
	"github.com/tamzrod/uartcat/internal/telegram"
)

// Window maps a range of the logical address space onto a slave buffer.
type Window struct {
	Logical uint32
	Offset  uint16
	Length  uint16
	Access  registers.Access
}

func (w Window) end() uint64 { return uint64(w.Logical) + uint64(w.Length) }

// Identity is what a slave matches on. It is fixed at construction.
type Identity struct {
	Station uint16
	Windows []Window
}

// Kind is the outcome of matching one datagram.
type Kind uint8

const (
	NoMatch Kind = iota
	Whole
	Partial
)

func (k Kind) String() string {
	switch k {
	case Whole:
		return "whole"
	case Partial:
		return "partial"
	}
	return "none"
}

// Span is one matched piece: Length bytes at Payload in the datagram data
// correspond to Length bytes at Local in the slave buffer.
type Span struct {
	Payload int
	Local   int
	Length  int
	Access  registers.Access
}

// Result is the decision for one datagram at one slave.
type Result struct {
	Kind  Kind
	Spans []Span
	// Forward is the address the slave must put back on the wire.
	Forward telegram.Address
}

// Resolve decides whether a datagram addressed at addr with length data
// bytes concerns the slave identified by id.
// Spans are appended to scratch[:0]. No IO. No side effects.
func Resolve(id Identity, addr telegram.Address, length int, scratch []Span) Result {
	res := Result{Forward: addr, Spans: scratch[:0]}

	switch addr.Mode() {
	case telegram.ModePositional:
		hop := addr.Hop()
		res.Forward = addr.WithHop(hop - 1)
		if hop == 0 {
			res.Kind = Whole
			res.Spans = append(res.Spans, Span{Local: int(addr.Offset()), Length: length, Access: registers.ReadWrite})
		}

	case telegram.ModeFixed:
		if addr.Station() == id.Station {
			res.Kind = Whole
			res.Spans = append(res.Spans, Span{Local: int(addr.Offset()), Length: length, Access: registers.ReadWrite})
		}

	case telegram.ModeLogical:
		start := uint64(addr.Logical())
		end := start + uint64(length)
		covered := 0
		for _, w := range id.Windows {
			lo := max(start, uint64(w.Logical))
			hi := min(end, w.end())
			if lo >= hi {
				continue
			}
			res.Spans = append(res.Spans, Span{
				Payload: int(lo - start),
				Local:   int(w.Offset) + int(lo-uint64(w.Logical)),
				Length:  int(hi - lo),
				Access:  w.Access,
			})
			covered += int(hi - lo)
		}
		switch {
		case covered == 0:
			res.Kind = NoMatch
		case covered >= length:
			res.Kind = Whole
		default:
			res.Kind = Partial
		}
	}

	return res
}

// Simulate walks a datagram through a known chain in order and returns the
// positions that match and the address the master will get back.
func Simulate(chain []Identity, addr telegram.Address, length int) ([]int, telegram.Address) {
	var matched []int
	var scratch []Span
	for i, id := range chain {
		res := Resolve(id, addr, length, scratch)
		if res.Kind != NoMatch {
			matched = append(matched, i)
		}
		addr = res.Forward
		scratch = res.Spans
	}
	return matched, addr
}

// internal/master/api.go
package master

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/uartcat/internal/addressing"
	"github.com/tamzrod/uartcat/internal/registers"
	"github.com/tamzrod/uartcat/internal/telegram"
)

// Slave selects exactly one slave, by chain position or station address.
type Slave struct {
	mode telegram.Mode
	n    uint16
}

// Position selects the slave hop steps away from the master (0 is the first).
func Position(hop int16) Slave { return Slave{mode: telegram.ModePositional, n: uint16(hop)} }

// Station selects the slave configured with a fixed station address.
func Station(station uint16) Slave { return Slave{mode: telegram.ModeFixed, n: station} }

func (s Slave) at(offset uint16) telegram.Address {
	if s.mode == telegram.ModePositional {
		return telegram.Positional(int16(s.n), offset)
	}
	return telegram.Fixed(s.n, offset)
}

func (s Slave) String() string {
	if s.mode == telegram.ModePositional {
		return fmt.Sprintf("position %d", int16(s.n))
	}
	return fmt.Sprintf("station %d", s.n)
}

// Result is a reconciled logical value.
type Result[T any] struct {
	Value T
	WKC   uint16
	// Complete is set when every byte of the value was supplied by a slave.
	Complete bool
}

// ---- one slave ----

// Read reads a register of one slave.
func Read[T any](ctx context.Context, m *Master, s Slave, r registers.Register[T]) (T, error) {
	var zero T
	if !r.Access.Readable() {
		return zero, fmt.Errorf("%w: read of %s register %#04x", ErrAccess, r.Access, r.Offset)
	}
	rep, err := m.Do(ctx, Request{Dir: telegram.Read, Addr: s.at(r.Offset), Data: make([]byte, r.Width())})
	if err != nil {
		return zero, fmt.Errorf("%s: %w", s, err)
	}
	return registers.Decode[T](rep.Data)
}

// Write writes a register of one slave.
func Write[T any](ctx context.Context, m *Master, s Slave, r registers.Register[T], v T) error {
	if !r.Access.Writable() {
		return fmt.Errorf("%w: write of %s register %#04x", ErrAccess, r.Access, r.Offset)
	}
	if _, err := m.Do(ctx, Request{Dir: telegram.Write, Addr: s.at(r.Offset), Data: registers.Encode(v)}); err != nil {
		return fmt.Errorf("%s: %w", s, err)
	}
	return nil
}

// Exchange writes v and returns the value the register held before.
func Exchange[T any](ctx context.Context, m *Master, s Slave, r registers.Register[T], v T) (T, error) {
	var zero T
	if r.Access != registers.ReadWrite {
		return zero, fmt.Errorf("%w: exchange of %s register %#04x", ErrAccess, r.Access, r.Offset)
	}
	rep, err := m.Do(ctx, Request{Dir: telegram.ReadWrite, Addr: s.at(r.Offset), Data: registers.Encode(v)})
	if err != nil {
		return zero, fmt.Errorf("%s: %w", s, err)
	}
	return registers.Decode[T](rep.Data)
}

// ---- logical ----

// ReadLogical gathers a logical value from every slave mapping part of it.
func ReadLogical[T any](ctx context.Context, m *Master, r registers.Logical[T], p Policy) (Result[T], error) {
	if !r.Access.Readable() {
		return Result[T]{}, fmt.Errorf("%w: read of %s logical %#08x", ErrAccess, r.Access, r.Address)
	}
	rep, err := m.Do(ctx, Request{
		Dir:    telegram.Read,
		Addr:   telegram.Logical(r.Address),
		Data:   make([]byte, r.Width()),
		Policy: p,
	})
	return logicalResult[T](rep, err)
}

// WriteLogical sends v to every slave mapping part of it.
func WriteLogical[T any](ctx context.Context, m *Master, r registers.Logical[T], v T, p Policy) (Result[struct{}], error) {
	if !r.Access.Writable() {
		return Result[struct{}]{}, fmt.Errorf("%w: write of %s logical %#08x", ErrAccess, r.Access, r.Address)
	}
	rep, err := m.Do(ctx, Request{
		Dir:    telegram.Write,
		Addr:   telegram.Logical(r.Address),
		Data:   registers.Encode(v),
		Policy: p,
	})
	if err != nil {
		return Result[struct{}]{WKC: rep.WKC}, err
	}
	return Result[struct{}]{WKC: rep.WKC, Complete: true}, nil
}

// ExchangeLogical writes v and gathers the previous logical value.
func ExchangeLogical[T any](ctx context.Context, m *Master, r registers.Logical[T], v T, p Policy) (Result[T], error) {
	if r.Access != registers.ReadWrite {
		return Result[T]{}, fmt.Errorf("%w: exchange of %s logical %#08x", ErrAccess, r.Access, r.Address)
	}
	rep, err := m.Do(ctx, Request{
		Dir:    telegram.ReadWrite,
		Addr:   telegram.Logical(r.Address),
		Data:   registers.Encode(v),
		Policy: p,
	})
	return logicalResult[T](rep, err)
}

func logicalResult[T any](rep Reply, err error) (Result[T], error) {
	res := Result[T]{WKC: rep.WKC, Complete: rep.Complete}
	if err != nil {
		return res, err
	}
	v, err := registers.Decode[T](rep.Data)
	if err != nil {
		return res, err
	}
	res.Value = v
	return res, nil
}

// Expected returns the policy matching a known chain: exactly the number
// of slaves whose windows overlap r.
func Expected[T any](chain []addressing.Identity, r registers.Logical[T]) Policy {
	matched, _ := addressing.Simulate(chain, telegram.Logical(r.Address), r.Width())
	return Exactly(len(matched))
}

// ---- topology ----

// Enumerate returns the station address of every slave in chain order.
func Enumerate(ctx context.Context, m *Master) ([]uint16, error) {
	nodes, err := walk(ctx, m, false)
	if err != nil {
		return nil, fmt.Errorf("master: enumerate: %w", err)
	}
	if nodes == nil {
		return nil, nil
	}
	stations := make([]uint16, len(nodes))
	for i, n := range nodes {
		stations[i] = n.Station
	}
	return stations, nil
}

// Node is one slave found on the chain.
type Node struct {
	Position int
	Station  uint16
	Device   registers.DeviceInfo
}

// Identify returns every slave in chain order with its Device register.
func Identify(ctx context.Context, m *Master) ([]Node, error) {
	nodes, err := walk(ctx, m, true)
	if err != nil {
		return nil, fmt.Errorf("master: identify: %w", err)
	}
	return nodes, nil
}

// walk finds the chain length from the hop count of one positional read:
// each slave decrements it once, so it returns as minus the number of
// slaves. Then it reads every position concurrently.
func walk(ctx context.Context, m *Master, device bool) ([]Node, error) {
	rep, err := m.Do(ctx, Request{
		Dir:  telegram.Read,
		Addr: telegram.Positional(0, registers.Version.Offset),
		Data: make([]byte, registers.Version.Width()),
	})
	if err != nil {
		if errors.Is(err, ErrNoResponse) && rep.Addr.Hop() == 0 {
			return nil, nil
		}
		return nil, err
	}

	n := -int(rep.Addr.Hop())
	if n <= 0 {
		return nil, fmt.Errorf("%w: positional hop returned as %d", ErrMismatch, rep.Addr.Hop())
	}

	nodes := make([]Node, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		nodes[i].Position = i
		g.Go(func() error {
			v, err := Read(gctx, m, Position(int16(i)), registers.Address)
			if err != nil {
				return err
			}
			nodes[i].Station = v
			if !device {
				return nil
			}
			d, err := Read(gctx, m, Position(int16(i)), registers.Device)
			if err != nil {
				return err
			}
			nodes[i].Device = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return nodes, nil
}

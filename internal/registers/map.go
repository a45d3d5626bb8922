// internal/registers/map.go
package registers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"
)

var (
	ErrOutOfRange = errors.New("registers: range outside buffer")
	ErrOverlap    = errors.New("registers: overlapping declarations")
	ErrReleased   = errors.New("registers: guard released")
)

// Map is a slave's register buffer.
//
// All access goes through one exclusive guard. The wire loop takes it with
// a deadline (TryAcquire); application code blocks (Acquire) or uses the
// lock-scoped helpers. No guard may be held across I/O.
type Map struct {
	sem  chan struct{}
	buf  []byte
	decl []Descriptor
}

// NewMap allocates a zeroed buffer of size bytes.
// Declared descriptors restrict bus access; undeclared bytes are read-write.
func NewMap(size int, decl ...Descriptor) (*Map, error) {
	if size <= 0 || size > 0x10000 {
		return nil, fmt.Errorf("registers: buffer size %d out of range", size)
	}

	sorted := append([]Descriptor(nil), decl...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	for i, d := range sorted {
		if d.Width <= 0 || d.End() > size {
			return nil, fmt.Errorf("%w: register at %#04x width %d, buffer %d", ErrOutOfRange, d.Offset, d.Width, size)
		}
		if i > 0 && int(d.Offset) < sorted[i-1].End() {
			return nil, fmt.Errorf("%w: %#04x and %#04x", ErrOverlap, sorted[i-1].Offset, d.Offset)
		}
	}

	return &Map{
		sem:  make(chan struct{}, 1),
		buf:  make([]byte, size),
		decl: sorted,
	}, nil
}

func (m *Map) Size() int { return len(m.buf) }

// Declared returns the access declarations sorted by offset.
func (m *Map) Declared() []Descriptor {
	return append([]Descriptor(nil), m.decl...)
}

// Check applies the bus access rules to a raw range.
func (m *Map) Check(off, n int, read, write bool) ErrorCode {
	if off < 0 || n < 0 || off+n > len(m.buf) {
		return ErrorSize
	}
	for _, d := range m.decl {
		if int(d.Offset) >= off+n {
			break
		}
		if d.End() <= off {
			continue
		}
		if read && !d.Access.Readable() || write && !d.Access.Writable() {
			return ErrorAccess
		}
	}
	return ErrorNone
}

// ---- guard ----

// Guard is exclusive access to the buffer until Release.
type Guard struct {
	m    *Map
	held bool
}

// Acquire blocks until the guard is free.
func (m *Map) Acquire() *Guard {
	m.sem <- struct{}{}
	return &Guard{m: m, held: true}
}

// AcquireContext blocks until the guard is free or ctx ends.
func (m *Map) AcquireContext(ctx context.Context) (*Guard, error) {
	select {
	case m.sem <- struct{}{}:
		return &Guard{m: m, held: true}, nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// TryAcquire waits at most budget for the guard.
func (m *Map) TryAcquire(budget time.Duration) (*Guard, bool) {
	select {
	case m.sem <- struct{}{}:
		return &Guard{m: m, held: true}, true
	default:
	}
	if budget <= 0 {
		return nil, false
	}

	t := time.NewTimer(budget)
	defer t.Stop()

	select {
	case m.sem <- struct{}{}:
		return &Guard{m: m, held: true}, true
	case <-t.C:
		return nil, false
	}
}

// Release gives the guard back. Releasing twice is a no-op.
func (g *Guard) Release() {
	if g == nil || !g.held {
		return
	}
	g.held = false
	<-g.m.sem
}

// Bytes returns the live buffer range. The slice must not be used after Release.
func (g *Guard) Bytes(off, n int) ([]byte, error) {
	if !g.held {
		return nil, ErrReleased
	}
	if off < 0 || n < 0 || off+n > len(g.m.buf) {
		return nil, fmt.Errorf("%w: %d+%d, buffer %d", ErrOutOfRange, off, n, len(g.m.buf))
	}
	return g.m.buf[off : off+n : off+n], nil
}

// Map returns the map the guard protects.
func (g *Guard) Map() *Map { return g.m }

// Load reads a register while holding the guard.
func Load[T any](g *Guard, r Register[T]) (T, error) {
	b, err := g.Bytes(int(r.Offset), r.Width())
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](b)
}

// Store writes a register while holding the guard.
func Store[T any](g *Guard, r Register[T], v T) error {
	b, err := g.Bytes(int(r.Offset), r.Width())
	if err != nil {
		return err
	}
	copy(b, Encode(v))
	return nil
}

// ---- lock-scoped helpers ----

// Get reads one register under its own guard acquisition.
func Get[T any](m *Map, r Register[T]) (T, error) {
	g := m.Acquire()
	defer g.Release()
	return Load(g, r)
}

// Set writes one register under its own guard acquisition.
func Set[T any](m *Map, r Register[T], v T) error {
	g := m.Acquire()
	defer g.Release()
	return Store(g, r, v)
}

// ReadAt copies raw bytes out of the buffer.
func (m *Map) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	g := m.Acquire()
	defer g.Release()

	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt copies raw bytes into the buffer. Writes never extend it.
func (m *Map) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(m.buf)) {
		return 0, fmt.Errorf("%w: %d+%d, buffer %d", ErrOutOfRange, off, len(p), len(m.buf))
	}
	g := m.Acquire()
	defer g.Release()

	return copy(m.buf[off:], p), nil
}

// internal/transport/ring.go
package transport

import (
	"errors"
	"io"
)

// Hop is one slave's place in a ring: it reads from Up and writes to Down.
type Hop struct {
	Up   io.Reader
	Down io.Writer
}

// Ring is an in-memory chain: master -> hop 0 -> ... -> hop n-1 -> master.
type Ring struct {
	Master Link
	Hops   []Hop

	readers []*io.PipeReader
	writers []*io.PipeWriter
}

// NewRing connects a master and n hops with pipes.
// With n == 0 the master talks to itself.
func NewRing(n int) *Ring {
	r := &Ring{Hops: make([]Hop, n)}

	pipes := n + 1
	for i := 0; i < pipes; i++ {
		pr, pw := io.Pipe()
		r.readers = append(r.readers, pr)
		r.writers = append(r.writers, pw)
	}

	// pipe i feeds hop i; the last pipe feeds the master
	for i := 0; i < n; i++ {
		r.Hops[i] = Hop{Up: r.readers[i], Down: r.writers[i+1]}
	}
	r.Master = &ringEnd{
		r: r.readers[n],
		w: r.writers[0],
		closeAll: r.Close,
	}
	return r
}

// Close breaks every pipe; blocked reads and writes fail with ErrClosed.
func (r *Ring) Close() error {
	for _, w := range r.writers {
		_ = w.CloseWithError(ErrClosed)
	}
	for _, rd := range r.readers {
		_ = rd.CloseWithError(ErrClosed)
	}
	return nil
}

type ringEnd struct {
	r        *io.PipeReader
	w        *io.PipeWriter
	closeAll func() error
}

func (e *ringEnd) Read(p []byte) (int, error)  { return e.r.Read(p) }
func (e *ringEnd) Write(p []byte) (int, error) { return e.w.Write(p) }
func (e *ringEnd) Close() error                { return e.closeAll() }

// IsClosed reports whether err comes from a closed link.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF)
}

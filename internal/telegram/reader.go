// internal/telegram/reader.go
package telegram

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Reader yields whole telegrams from a byte stream.
//
// ErrFraming and ErrIntegrity describe one discarded telegram; the reader
// stays usable after them. Any other error comes from the underlying reader.
type Reader struct {
	r   io.Reader
	dec *Decoder

	in  []byte
	pos int
	n   int

	cur Telegram
}

func NewReader(r io.Reader, l Limits) *Reader {
	l = l.normalized()
	return &Reader{
		r:   r,
		dec: NewDecoder(l),
		in:  make([]byte, l.MaxTelegram),
	}
}

// Next blocks until a telegram is complete or the stream fails.
// The returned telegram shares no memory with the reader.
func (r *Reader) Next() (Telegram, error) {
	for {
		for r.pos < r.n {
			b := r.in[r.pos]
			r.pos++

			ev := r.dec.Feed(b)
			switch ev.Kind {
			case EventHeader:
				r.cur = Telegram{
					Seq:       ev.Header.Seq,
					Datagrams: make([]Datagram, 0, ev.Header.Count),
				}
			case EventDatagram:
				r.cur.Datagrams = append(r.cur.Datagrams, ev.Datagram.Clone())
			case EventEnd:
				t := r.cur
				r.cur = Telegram{}
				if !ev.Valid() {
					return Telegram{}, fmt.Errorf("%w: seq %d trailer %#08x computed %#08x",
						ErrIntegrity, ev.Header.Seq, ev.Trailer, ev.Check)
				}
				return t, nil
			case EventError:
				r.cur = Telegram{}
				return Telegram{}, ev.Err
			}
		}

		n, err := r.r.Read(r.in)
		r.pos, r.n = 0, n
		if n == 0 && err != nil {
			if errors.Is(err, io.EOF) && r.dec.InTelegram() {
				return Telegram{}, io.ErrUnexpectedEOF
			}
			return Telegram{}, err
		}
	}
}

// Decode decodes exactly one telegram from b.
func Decode(b []byte, l Limits) (Telegram, error) {
	t, err := NewReader(bytes.NewReader(b), l).Next()
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Telegram{}, fmt.Errorf("%w: truncated", ErrFraming)
	}
	return t, err
}

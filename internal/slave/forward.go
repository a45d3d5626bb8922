// internal/slave/forward.go
package slave

import (
	"encoding/binary"
	"hash"
	"hash/crc32"

	"github.com/tamzrod/uartcat/internal/telegram"
)

// handler receives the protocol events of the forwarding stage.
type handler interface {
	datagram(d *telegram.Datagram)
	end(valid bool)
	malformed(err error)
}

// forwarder is the cut-through stage.
//
// Every inbound byte leaves exactly once and in order. Bytes outside a
// telegram leave immediately; a header, datagram or trailer is held only
// until it is complete, then patched and released.
type forwarder struct {
	dec *telegram.Decoder
	out hash.Hash32
	h   handler
}

func newForwarder(l telegram.Limits, h handler) *forwarder {
	return &forwarder{
		dec: telegram.NewDecoder(l),
		out: crc32.NewIEEE(),
		h:   h,
	}
}

// process feeds in and appends whatever may leave to out.
func (f *forwarder) process(in, out []byte) []byte {
	for _, b := range in {
		ev := f.dec.Feed(b)

		switch ev.Kind {
		case telegram.EventPass:
			out = append(out, b)

		case telegram.EventSkip:
			out = append(out, f.dec.Raw()...)

		case telegram.EventHeader:
			raw := f.dec.Raw()
			f.out.Reset()
			f.out.Write(raw)
			out = append(out, raw...)

		case telegram.EventDatagram:
			dg := ev.Datagram
			f.h.datagram(&dg)
			raw := dg.AppendBinary(f.dec.Raw()[:0])
			f.out.Write(raw)
			out = append(out, raw...)

		case telegram.EventEnd:
			f.h.end(ev.Valid())
			// Carry the inbound error pattern over to the patched bytes:
			// intact in, intact out; corrupt in, corrupt out.
			out = binary.BigEndian.AppendUint32(out, ev.Trailer^ev.Check^f.out.Sum32())

		case telegram.EventError:
			f.h.malformed(ev.Err)
			out = append(out, f.dec.Raw()...)
		}
	}
	return out
}

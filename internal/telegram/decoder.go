// internal/telegram/decoder.go
package telegram

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
)

// EventKind tells the caller what to do with the bytes fed so far.
type EventKind uint8

const (
	// EventNone: the byte is held inside the current unit.
	EventNone EventKind = iota
	// EventPass: the byte is outside any telegram.
	EventPass
	// EventHeader: the telegram header is complete and checked; Raw holds it.
	EventHeader
	// EventDatagram: a datagram is complete and checked; Raw holds it.
	EventDatagram
	// EventEnd: the trailer is complete; Raw holds it.
	EventEnd
	// EventError: the telegram is malformed; Raw holds the unforwarded bytes.
	EventError
	// EventSkip: held bytes did not start a telegram; Raw holds the ones
	// released, which pass like any byte outside a telegram.
	EventSkip
)

// Event is the result of feeding one byte.
type Event struct {
	Kind   EventKind
	Header Header

	// Datagram is set on EventDatagram. Data and Mask alias the decoder
	// buffer and stay valid until the next Feed.
	Datagram Datagram
	Index    int

	// Trailer is the received CRC and Check the CRC computed over the
	// received bytes, both set on EventEnd.
	Trailer uint32
	Check   uint32

	Err error
}

// Valid reports whether an EventEnd closed an intact telegram.
func (e Event) Valid() bool { return e.Kind == EventEnd && e.Trailer == e.Check }

type decodeState uint8

const (
	stateHunt decodeState = iota
	stateHeader
	stateDatagramHeader
	stateDatagramBody
	stateTrailer
)

// Decoder splits a byte stream into telegram units one byte at a time.
// It holds at most one header, datagram or trailer, never a whole telegram.
// After a malformed unit it hunts for the next sync byte. A header that
// fails its check is not malformed, only misaligned: the decoder slides to
// the next sync byte it holds and keeps going.
type Decoder struct {
	limits Limits
	state  decodeState

	buf      []byte
	consumed bool

	skip    []byte
	skipped bool

	hdr    Header
	offset int
	index  int
	need   int

	crc hash.Hash32
}

func NewDecoder(l Limits) *Decoder {
	l = l.normalized()
	return &Decoder{
		limits: l,
		buf:    make([]byte, 0, l.MaxTelegram),
		skip:   make([]byte, 0, HeaderSize),
		crc:    crc32.NewIEEE(),
	}
}

// Raw returns the bytes of the unit completed or abandoned by the last Feed.
// The slice may be modified in place and is reused by the next Feed.
func (d *Decoder) Raw() []byte {
	if d.skipped {
		return d.skip
	}
	return d.buf
}

// InTelegram reports whether the decoder is inside a telegram.
func (d *Decoder) InTelegram() bool { return d.state != stateHunt }

// Reset drops any partial telegram.
func (d *Decoder) Reset() {
	d.state = stateHunt
	d.buf = d.buf[:0]
	d.consumed = false
	d.skipped = false
}

// Feed consumes one byte.
func (d *Decoder) Feed(b byte) Event {
	d.skipped = false
	if d.consumed {
		d.buf = d.buf[:0]
		d.consumed = false
	}

	switch d.state {
	case stateHunt:
		if b != Sync {
			return Event{Kind: EventPass}
		}
		d.buf = append(d.buf, b)
		d.state = stateHeader
		return Event{}

	case stateHeader:
		d.buf = append(d.buf, b)
		if len(d.buf) < HeaderSize {
			return Event{}
		}
		if xorSum(d.buf[:HeaderSize-1]) != d.buf[HeaderSize-1] {
			return d.slide()
		}
		h, err := parseHeader(d.buf, d.limits)
		if err != nil {
			return d.fail(err)
		}
		d.hdr = h
		d.crc.Reset()
		d.crc.Write(d.buf)
		d.offset = HeaderSize
		d.index = 0
		d.state = stateDatagramHeader
		return d.emit(Event{Kind: EventHeader, Header: h})

	case stateDatagramHeader:
		d.buf = append(d.buf, b)
		if len(d.buf) < DatagramHeaderSize {
			return Event{}
		}
		cmd := d.buf[0]
		dir, mode := splitCommand(cmd)
		if !dir.Valid() || !mode.Valid() || cmd&reservedBits != 0 {
			return d.fail(fmt.Errorf("%w: datagram %d command %#02x", ErrFraming, d.index, cmd))
		}
		n := int(binary.BigEndian.Uint16(d.buf[5:7]))
		size := datagramSize(n, hasMask(mode, dir))
		if d.offset+size > int(d.hdr.Length)-TrailerSize {
			return d.fail(fmt.Errorf("%w: datagram %d overruns telegram length %d", ErrFraming, d.index, d.hdr.Length))
		}
		d.need = size - DatagramHeaderSize
		d.state = stateDatagramBody
		return Event{}

	case stateDatagramBody:
		d.buf = append(d.buf, b)
		d.need--
		if d.need > 0 {
			return Event{}
		}
		return d.datagram()

	case stateTrailer:
		d.buf = append(d.buf, b)
		if len(d.buf) < TrailerSize {
			return Event{}
		}
		d.state = stateHunt
		return d.emit(Event{
			Kind:    EventEnd,
			Header:  d.hdr,
			Trailer: binary.BigEndian.Uint32(d.buf),
			Check:   d.crc.Sum32(),
		})
	}

	return Event{}
}

func (d *Decoder) datagram() Event {
	raw := d.buf
	chk := len(raw) - DatagramTrailerSize
	if xorSum(raw[:chk]) != raw[chk] {
		return d.fail(fmt.Errorf("%w: datagram %d check", ErrIntegrity, d.index))
	}

	cmd := raw[0]
	dir, mode := splitCommand(cmd)
	n := int(binary.BigEndian.Uint16(raw[5:7]))
	dg := Datagram{
		Dir:      dir,
		Addr:     Address{mode: mode, raw: binary.BigEndian.Uint32(raw[1:5])},
		Error:    cmd&flagError != 0,
		Conflict: cmd&flagConflict != 0,
		Data:     raw[DatagramHeaderSize : DatagramHeaderSize+n : DatagramHeaderSize+n],
		WKC:      binary.BigEndian.Uint16(raw[chk+1:]),
	}
	if dg.HasMask() {
		m := DatagramHeaderSize + n
		dg.Mask = raw[m:chk:chk]
	}

	d.crc.Write(raw)
	d.offset += len(raw)
	idx := d.index
	d.index++

	if d.index == int(d.hdr.Count) {
		if d.offset != int(d.hdr.Length)-TrailerSize {
			return d.fail(fmt.Errorf("%w: %d datagrams end at %d, length %d", ErrFraming, d.index, d.offset, d.hdr.Length))
		}
		d.state = stateTrailer
	} else {
		d.state = stateDatagramHeader
	}

	return d.emit(Event{Kind: EventDatagram, Header: d.hdr, Datagram: dg, Index: idx})
}

func (d *Decoder) emit(ev Event) Event {
	d.consumed = true
	return ev
}

// slide releases the held header bytes up to the next sync byte and keeps
// the rest as the start of a new header.
func (d *Decoder) slide() Event {
	i := bytes.IndexByte(d.buf[1:], Sync) + 1
	if i == 0 {
		i = len(d.buf)
	}
	d.skip = append(d.skip[:0], d.buf[:i]...)
	d.buf = d.buf[:copy(d.buf, d.buf[i:])]
	if len(d.buf) == 0 {
		d.state = stateHunt
	}
	d.skipped = true
	return Event{Kind: EventSkip}
}

func (d *Decoder) fail(err error) Event {
	d.state = stateHunt
	d.consumed = true
	return Event{Kind: EventError, Header: d.hdr, Err: err}
}

func splitCommand(cmd byte) (Direction, Mode) {
	return Direction(cmd & dirMask), Mode((cmd & modeMask) >> modeShift)
}

// internal/telegram/telegram.go
package telegram

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Telegram is the unit transmitted by the master and returned to it.
type Telegram struct {
	Seq       uint8
	Datagrams []Datagram
}

// Header is the decoded fixed telegram header.
type Header struct {
	Seq    uint8
	Length uint16
	Count  uint8
}

// Size is the encoded size of the telegram.
func (t *Telegram) Size() int {
	n := HeaderSize + TrailerSize
	for i := range t.Datagrams {
		n += t.Datagrams[i].Size()
	}
	return n
}

// Encode validates the telegram against the limits and encodes it.
func (t *Telegram) Encode(l Limits) ([]byte, error) {
	l = l.normalized()

	if len(t.Datagrams) == 0 {
		return nil, ErrEmpty
	}
	if len(t.Datagrams) > l.MaxDatagrams {
		return nil, fmt.Errorf("%w: %d datagrams, limit %d", ErrTooLarge, len(t.Datagrams), l.MaxDatagrams)
	}
	for i := range t.Datagrams {
		if err := t.Datagrams[i].validate(); err != nil {
			return nil, fmt.Errorf("datagram %d: %w", i, err)
		}
	}
	size := t.Size()
	if size > l.MaxTelegram {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, size, l.MaxTelegram)
	}

	out := make([]byte, 0, size)
	out = appendHeader(out, Header{Seq: t.Seq, Length: uint16(size), Count: uint8(len(t.Datagrams))})
	for i := range t.Datagrams {
		out = t.Datagrams[i].AppendBinary(out)
	}
	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(out)), nil
}

func appendHeader(dst []byte, h Header) []byte {
	start := len(dst)
	dst = append(dst, Sync, h.Seq)
	dst = binary.BigEndian.AppendUint16(dst, h.Length)
	dst = append(dst, h.Count)
	return append(dst, xorSum(dst[start:]))
}

// parseHeader decodes and checks a complete header.
func parseHeader(b []byte, l Limits) (Header, error) {
	if b[0] != Sync {
		return Header{}, fmt.Errorf("%w: sync %#02x", ErrFraming, b[0])
	}
	if xorSum(b[:HeaderSize-1]) != b[HeaderSize-1] {
		return Header{}, fmt.Errorf("%w: header check", ErrFraming)
	}
	h := Header{
		Seq:    b[1],
		Length: binary.BigEndian.Uint16(b[2:4]),
		Count:  b[4],
	}
	if int(h.Length) < MinTelegramSize || int(h.Length) > l.MaxTelegram {
		return Header{}, fmt.Errorf("%w: length %d", ErrFraming, h.Length)
	}
	if h.Count == 0 || int(h.Count) > l.MaxDatagrams {
		return Header{}, fmt.Errorf("%w: count %d", ErrFraming, h.Count)
	}
	return h, nil
}

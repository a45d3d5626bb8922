// internal/addressing/validate.go
package addressing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tamzrod/uartcat/internal/registers"
)

var (
	ErrWindowOutOfBuffer = errors.New("addressing: window outside buffer")
	ErrWindowOverlap     = errors.New("addressing: overlapping logical windows")
	ErrWindowAccess      = errors.New("addressing: window exceeds register access")
)

// ValidateWindows checks one slave's windows against its buffer size.
// Windows of one slave must not overlap in logical space: a byte of a
// datagram maps to at most one local byte per slave.
func ValidateWindows(windows []Window, buffer int) error {
	sorted := append([]Window(nil), windows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Logical < sorted[j].Logical })

	for i, w := range sorted {
		if w.Length == 0 || int(w.Offset)+int(w.Length) > buffer {
			return fmt.Errorf("%w: logical %#08x local %#04x+%d, buffer %d",
				ErrWindowOutOfBuffer, w.Logical, w.Offset, w.Length, buffer)
		}
		if w.end() > 1<<32 {
			return fmt.Errorf("%w: logical %#08x+%d wraps", ErrWindowOutOfBuffer, w.Logical, w.Length)
		}
		if i > 0 && uint64(w.Logical) < sorted[i-1].end() {
			return fmt.Errorf("%w: %#08x and %#08x", ErrWindowOverlap, sorted[i-1].Logical, w.Logical)
		}
	}
	return nil
}

// CheckWindowAccess rejects a window granting the bus more than the
// declared registers under it allow: a readable window may only cover
// readable registers, a writable one only writable registers.
func CheckWindowAccess(windows []Window, m *registers.Map) error {
	for _, w := range windows {
		code := m.Check(int(w.Offset), int(w.Length), w.Access.Readable(), w.Access.Writable())
		if code != registers.ErrorNone {
			return fmt.Errorf("%w: %s window at logical %#08x covers local %#04x+%d",
				ErrWindowAccess, w.Access, w.Logical, w.Offset, w.Length)
		}
	}
	return nil
}

// DuplicateStations returns station addresses used more than once.
func DuplicateStations(chain []Identity) []uint16 {
	seen := make(map[uint16]int, len(chain))
	var dups []uint16
	for _, id := range chain {
		seen[id.Station]++
		if seen[id.Station] == 2 {
			dups = append(dups, id.Station)
		}
	}
	return dups
}

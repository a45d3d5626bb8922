// internal/poller/types.go
package poller

import (
	"time"

	"github.com/tamzrod/uartcat/internal/master"
	"github.com/tamzrod/uartcat/internal/telegram"
)

// ReadBlock describes one bus read geometry.
type ReadBlock struct {
	Addr   telegram.Address
	Length uint16
	Policy master.Policy

	// Register is the first holding register of the mirror.
	Register uint16
}

// BlockResult is the raw result of a single read.
type BlockResult struct {
	Addr     telegram.Address
	Register uint16
	Data     []byte
	WKC      uint16
	Complete bool
}

// PollResult is a snapshot produced by one poll cycle.
type PollResult struct {
	UnitID string
	At     time.Time

	// Code is master.Code(Err): 0 on success.
	Code uint16

	Blocks []BlockResult
	Err    error // non-nil means the poll cycle failed
}

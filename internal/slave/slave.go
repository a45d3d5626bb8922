// internal/slave/slave.go
package slave

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/uartcat/internal/addressing"
	"github.com/tamzrod/uartcat/internal/registers"
	"github.com/tamzrod/uartcat/internal/telegram"
)

const (
	DefaultBuffer     = 256
	DefaultLockBudget = 500 * time.Microsecond
	DefaultReadChunk  = 256
)

var ErrRunning = errors.New("slave: already running")

// Config is the immutable identity and tuning of one slave.
type Config struct {
	Station uint16
	Windows []addressing.Window
	// Device is served read-only by the Device register.
	Device registers.DeviceInfo

	// Buffer is the register map size in bytes.
	Buffer int
	// Registers restrict bus access beyond the standard registers.
	Registers []registers.Descriptor

	Limits telegram.Limits
	// LockBudget bounds how long the wire loop waits for the register guard.
	LockBudget time.Duration
	ReadChunk  int

	Log *zap.Logger
}

// Slave is one node of the chain: a register map plus the inline
// forwarding engine that serves it.
type Slave struct {
	cfg  Config
	id   addressing.Identity
	regs *registers.Map
	log  *zap.Logger

	fwd   *forwarder
	spans []addressing.Span

	running atomic.Bool
	busy    atomic.Bool
	stats   counters
}

// New validates the configuration and builds the register map.
func New(cfg Config) (*Slave, error) {
	if cfg.Buffer == 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.Buffer < registers.User {
		return nil, fmt.Errorf("slave: buffer %d smaller than standard registers (%d)", cfg.Buffer, registers.User)
	}
	if cfg.LockBudget <= 0 {
		cfg.LockBudget = DefaultLockBudget
	}
	if cfg.ReadChunk <= 0 {
		cfg.ReadChunk = DefaultReadChunk
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	if err := addressing.ValidateWindows(cfg.Windows, cfg.Buffer); err != nil {
		return nil, fmt.Errorf("slave: %w", err)
	}

	decl := append(registers.Standard(), cfg.Registers...)
	regs, err := registers.NewMap(cfg.Buffer, decl...)
	if err != nil {
		return nil, fmt.Errorf("slave: %w", err)
	}
	if err := addressing.CheckWindowAccess(cfg.Windows, regs); err != nil {
		return nil, fmt.Errorf("slave: %w", err)
	}
	if err := registers.Set(regs, registers.Address, cfg.Station); err != nil {
		return nil, err
	}
	if err := registers.Set(regs, registers.Version, registers.ProtocolVersion); err != nil {
		return nil, err
	}
	if err := registers.Set(regs, registers.Device, cfg.Device); err != nil {
		return nil, err
	}

	s := &Slave{
		cfg: cfg,
		id: addressing.Identity{
			Station: cfg.Station,
			Windows: append([]addressing.Window(nil), cfg.Windows...),
		},
		regs: regs,
		log:  cfg.Log.With(zap.Uint16("station", cfg.Station)),
	}
	s.fwd = newForwarder(cfg.Limits, s)
	return s, nil
}

// Registers is the application side of the register map.
func (s *Slave) Registers() *registers.Map { return s.regs }

// Identity is what the slave matches datagrams on.
func (s *Slave) Identity() addressing.Identity { return s.id }

// ---- stats ----

// Stats are cumulative counters since New.
type Stats struct {
	Telegrams  uint64
	Datagrams  uint64
	Matched    uint64
	Rejected   uint64
	Conflicts  uint64
	Framing    uint64
	Integrity  uint64
	LockMisses uint64
}

type counters struct {
	telegrams  atomic.Uint64
	datagrams  atomic.Uint64
	matched    atomic.Uint64
	rejected   atomic.Uint64
	conflicts  atomic.Uint64
	framing    atomic.Uint64
	integrity  atomic.Uint64
	lockMisses atomic.Uint64
}

func (s *Slave) Stats() Stats {
	return Stats{
		Telegrams:  s.stats.telegrams.Load(),
		Datagrams:  s.stats.datagrams.Load(),
		Matched:    s.stats.matched.Load(),
		Rejected:   s.stats.rejected.Load(),
		Conflicts:  s.stats.conflicts.Load(),
		Framing:    s.stats.framing.Load(),
		Integrity:  s.stats.integrity.Load(),
		LockMisses: s.stats.lockMisses.Load(),
	}
}

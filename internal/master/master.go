// internal/master/master.go
package master

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/uartcat/internal/telegram"
)

const (
	DefaultTimeout    = 50 * time.Millisecond
	DefaultQueueDepth = 64
)

// Config is the immutable tuning of one master.
type Config struct {
	Limits telegram.Limits
	// Timeout is the round-trip budget of one telegram.
	Timeout    time.Duration
	QueueDepth int

	Log *zap.Logger
}

// Master owns the link. Any goroutine may submit requests; one goroutine
// (Run) batches them into telegrams, keeps exactly one telegram in flight
// and hands every result back to its requester.
type Master struct {
	link io.ReadWriter
	cfg  Config
	log  *zap.Logger

	queue    chan *pending
	stopped  chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	// owned by Run
	carry []*pending
	// seq wraps every 256 cycles, so a telegram late by a multiple of 256
	// cycles would pass as current. The cycle timeout keeps that from
	// happening at any realistic line rate.
	seq   uint8

	stats counters
}

func New(link io.ReadWriter, cfg Config) (*Master, error) {
	if link == nil {
		return nil, errors.New("master: link required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	d := telegram.DefaultLimits()
	if cfg.Limits.MaxTelegram <= 0 {
		cfg.Limits.MaxTelegram = d.MaxTelegram
	}
	if cfg.Limits.MaxDatagrams <= 0 {
		cfg.Limits.MaxDatagrams = d.MaxDatagrams
	}
	if cfg.Limits.MaxTelegram < telegram.MinTelegramSize || cfg.Limits.MaxTelegram > 0xFFFF {
		return nil, fmt.Errorf("master: max telegram %d out of range", cfg.Limits.MaxTelegram)
	}
	if cfg.Limits.MaxDatagrams > 255 {
		return nil, fmt.Errorf("master: max datagrams %d out of range", cfg.Limits.MaxDatagrams)
	}

	return &Master{
		link:    link,
		cfg:     cfg,
		log:     cfg.Log,
		queue:   make(chan *pending, cfg.QueueDepth),
		stopped: make(chan struct{}),
	}, nil
}

// Run drives cycles until the link fails or ctx ends. It can be called
// once; afterwards every request fails with ErrClosed. A blocked link
// read is only interrupted by closing the link.
func (m *Master) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer m.stop()

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan telegram.Telegram, 1)
	rxErr := make(chan error, 1)
	go m.receive(rctx, frames, rxErr)

	m.log.Info("master running",
		zap.Duration("timeout", m.cfg.Timeout),
		zap.Int("max_telegram", m.cfg.Limits.MaxTelegram),
		zap.Int("max_datagrams", m.cfg.Limits.MaxDatagrams),
	)

	for {
		batch, err := m.collect(ctx, rxErr)
		if err != nil {
			m.failAll(m.carry, ErrClosed)
			m.carry = nil
			return err
		}
		if len(batch) == 0 {
			continue
		}
		if err := m.cycle(ctx, batch, frames, rxErr); err != nil {
			m.failAll(m.carry, ErrClosed)
			m.carry = nil
			return err
		}
	}
}

func (m *Master) stop() {
	m.stopOnce.Do(func() { close(m.stopped) })
}

// receive decodes the return path. Malformed telegrams are counted and
// dropped; any other read error ends the engine.
func (m *Master) receive(ctx context.Context, frames chan<- telegram.Telegram, rxErr chan<- error) {
	r := telegram.NewReader(m.link, m.cfg.Limits)
	for {
		t, err := r.Next()
		if err != nil {
			if errors.Is(err, telegram.ErrFraming) || errors.Is(err, telegram.ErrIntegrity) {
				m.stats.corrupt.Add(1)
				m.log.Debug("returning telegram discarded", zap.Error(err))
				continue
			}
			rxErr <- err
			return
		}

		select {
		case frames <- t:
		case <-ctx.Done():
			return
		}
	}
}

// ---- stats ----

// Stats are cumulative counters since New.
type Stats struct {
	Cycles    uint64
	Datagrams uint64
	Timeouts  uint64
	Stale     uint64
	Corrupt   uint64
	Abandoned uint64
}

type counters struct {
	cycles    atomic.Uint64
	datagrams atomic.Uint64
	timeouts  atomic.Uint64
	stale     atomic.Uint64
	corrupt   atomic.Uint64
	abandoned atomic.Uint64
}

func (m *Master) Stats() Stats {
	return Stats{
		Cycles:    m.stats.cycles.Load(),
		Datagrams: m.stats.datagrams.Load(),
		Timeouts:  m.stats.timeouts.Load(),
		Stale:     m.stats.stale.Load(),
		Corrupt:   m.stats.corrupt.Load(),
		Abandoned: m.stats.abandoned.Load(),
	}
}

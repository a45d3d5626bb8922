// internal/master/cycle.go
package master

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/uartcat/internal/telegram"
)

// collect waits for work, then takes what fits into one telegram.
// Requests whose caller gave up are dropped here; what does not fit is
// carried to the next cycle ahead of newer requests.
func (m *Master) collect(ctx context.Context, rxErr <-chan error) ([]*pending, error) {
	batch := m.carry
	m.carry = nil

	if len(batch) == 0 {
		select {
		case p := <-m.queue:
			batch = append(batch, p)
		case err := <-rxErr:
			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	limit := m.cfg.Limits.MaxDatagrams
drain:
	for len(batch) < limit {
		select {
		case p := <-m.queue:
			batch = append(batch, p)
		default:
			break drain
		}
	}

	size := telegram.HeaderSize + telegram.TrailerSize
	out := make([]*pending, 0, len(batch))
	for i, p := range batch {
		if p.ctx.Err() != nil {
			m.stats.abandoned.Add(1)
			continue
		}
		if len(out) == limit || size+p.dg.Size() > m.cfg.Limits.MaxTelegram {
			m.carry = append(m.carry, batch[i:]...)
			break
		}
		out = append(out, p)
		size += p.dg.Size()
	}
	return out, nil
}

// cycle transmits one telegram and settles every request in it.
// Only transport failure and ctx end are returned.
func (m *Master) cycle(ctx context.Context, batch []*pending, frames <-chan telegram.Telegram, rxErr <-chan error) error {
	m.seq++
	sent := telegram.Telegram{
		Seq:       m.seq,
		Datagrams: make([]telegram.Datagram, len(batch)),
	}
	for i, p := range batch {
		sent.Datagrams[i] = p.dg
	}

	raw, err := sent.Encode(m.cfg.Limits)
	if err != nil {
		m.failAll(batch, err)
		return nil
	}

	m.stats.cycles.Add(1)
	m.stats.datagrams.Add(uint64(len(batch)))

	if _, err := m.link.Write(raw); err != nil {
		err = fmt.Errorf("%w: %w", ErrTransport, err)
		m.failAll(batch, err)
		return err
	}

	timer := time.NewTimer(m.cfg.Timeout)
	defer timer.Stop()

	for {
		select {
		case back := <-frames:
			if back.Seq != sent.Seq {
				m.stats.stale.Add(1)
				m.log.Debug("stale telegram discarded",
					zap.Uint8("seq", back.Seq),
					zap.Uint8("want", sent.Seq),
				)
				continue
			}
			m.reconcile(batch, &sent, &back)
			return nil

		case err := <-rxErr:
			err = fmt.Errorf("%w: %w", ErrTransport, err)
			m.failAll(batch, err)
			return err

		case <-timer.C:
			m.stats.timeouts.Add(1)
			m.log.Warn("telegram timed out",
				zap.Uint8("seq", sent.Seq),
				zap.Int("datagrams", len(batch)),
				zap.Duration("timeout", m.cfg.Timeout),
			)
			m.failAll(batch, ErrTimeout)
			return nil

		case <-ctx.Done():
			m.failAll(batch, ErrClosed)
			return ctx.Err()
		}
	}
}

// reconcile pairs returned datagrams with requests by position.
func (m *Master) reconcile(batch []*pending, sent, back *telegram.Telegram) {
	if len(back.Datagrams) != len(sent.Datagrams) {
		m.failAll(batch, fmt.Errorf("%w: %d datagrams returned, %d sent",
			ErrMismatch, len(back.Datagrams), len(sent.Datagrams)))
		return
	}

	for i, p := range batch {
		dg := &back.Datagrams[i]
		if err := sameShape(&sent.Datagrams[i], dg); err != nil {
			p.resolve(Reply{}, err)
			continue
		}

		rep := Reply{
			Data: dg.Data,
			WKC:  dg.WKC,
			Addr: dg.Addr,
		}
		if dg.HasMask() {
			rep.Complete = dg.Covered()
		}
		p.resolve(rep, evaluate(dg, p.policy))
	}
}

func sameShape(sent, back *telegram.Datagram) error {
	if sent.Dir != back.Dir || sent.Addr.Mode() != back.Addr.Mode() || len(sent.Data) != len(back.Data) {
		return fmt.Errorf("%w: sent %s, got %s", ErrMismatch, sent, back)
	}
	switch sent.Addr.Mode() {
	case telegram.ModePositional:
		if sent.Addr.Offset() != back.Addr.Offset() {
			return fmt.Errorf("%w: sent %s, got %s", ErrMismatch, sent.Addr, back.Addr)
		}
	default:
		if sent.Addr != back.Addr {
			return fmt.Errorf("%w: sent %s, got %s", ErrMismatch, sent.Addr, back.Addr)
		}
	}
	return nil
}

func (m *Master) failAll(batch []*pending, err error) {
	for _, p := range batch {
		p.resolve(Reply{}, err)
	}
}

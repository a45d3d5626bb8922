// internal/slave/exchange.go
package slave

import (
	"errors"

	"go.uber.org/zap"

	"github.com/tamzrod/uartcat/internal/addressing"
	"github.com/tamzrod/uartcat/internal/registers"
	"github.com/tamzrod/uartcat/internal/telegram"
)

// datagram runs on the wire loop for every complete datagram.
// It holds the register guard for at most one exchange.
func (s *Slave) datagram(d *telegram.Datagram) {
	s.stats.datagrams.Add(1)

	res := addressing.Resolve(s.id, d.Addr, len(d.Data), s.spans)
	s.spans = res.Spans
	d.Addr = res.Forward
	if res.Kind == addressing.NoMatch {
		return
	}

	g, ok := s.regs.TryAcquire(s.cfg.LockBudget)
	if !ok {
		// Data and WKC stay as received. The Error register takes
		// ErrorBusy at the next acquisition.
		d.Error = true
		s.busy.Store(true)
		s.stats.lockMisses.Add(1)
		s.log.Debug("register guard busy, datagram refused", zap.Stringer("addr", d.Addr))
		return
	}
	defer g.Release()

	if s.busy.Swap(false) {
		s.record(g, registers.ErrorBusy)
	}

	var matched bool
	if d.Addr.Mode() == telegram.ModeLogical {
		matched = s.exchangeLogical(g, d, res.Spans)
	} else {
		matched = s.exchangeLocal(g, d, res.Spans[0])
	}

	if matched {
		d.WKC++
		s.stats.matched.Add(1)
	}
}

// exchangeLocal serves a fixed or positional datagram: the whole data
// range maps to one local range, or the datagram is refused.
func (s *Slave) exchangeLocal(g *registers.Guard, d *telegram.Datagram, sp addressing.Span) bool {
	if code := s.regs.Check(sp.Local, sp.Length, d.Dir.Reads(), d.Dir.Writes()); code != registers.ErrorNone {
		s.reject(g, d, code)
		return false
	}
	local, err := g.Bytes(sp.Local, sp.Length)
	if err != nil {
		s.reject(g, d, registers.ErrorSize)
		return false
	}

	switch d.Dir {
	case telegram.Read:
		copy(d.Data, local)
	case telegram.Write:
		copy(local, d.Data)
	case telegram.ReadWrite:
		for i := range d.Data {
			d.Data[i], local[i] = local[i], d.Data[i]
		}
	}
	return true
}

// exchangeLogical serves the overlapping pieces of a logical datagram.
// The claim mask tells which bytes an earlier slave already supplied;
// such bytes are left alone and a disagreement raises Conflict.
func (s *Slave) exchangeLogical(g *registers.Guard, d *telegram.Datagram, spans []addressing.Span) bool {
	matched := false
	conflict := false

	for _, sp := range spans {
		read := d.Dir.Reads() && sp.Access.Readable()
		write := d.Dir.Writes() && sp.Access.Writable()
		if !read && !write {
			continue
		}
		local, err := g.Bytes(sp.Local, sp.Length)
		if err != nil {
			continue
		}
		matched = true

		for i := range local {
			p := sp.Payload + i
			if d.Claimed(p) {
				if write || d.Data[p] != local[i] {
					conflict = true
				}
				continue
			}
			old := local[i]
			if write {
				local[i] = d.Data[p]
			}
			if read {
				d.Data[p] = old
				d.Claim(p)
			}
		}
	}

	if conflict {
		d.Conflict = true
		s.stats.conflicts.Add(1)
		s.log.Debug("logical conflict", zap.Stringer("addr", d.Addr))
	}
	return matched
}

// reject refuses a matched datagram. The first code since the last reset
// stays in the Error register.
func (s *Slave) reject(g *registers.Guard, d *telegram.Datagram, code registers.ErrorCode) {
	d.Error = true
	s.stats.rejected.Add(1)
	s.record(g, code)
	s.log.Debug("datagram rejected",
		zap.Stringer("addr", d.Addr),
		zap.Stringer("dir", d.Dir),
		zap.Uint8("code", uint8(code)),
	)
}

func (s *Slave) record(g *registers.Guard, code registers.ErrorCode) {
	if cur, err := registers.Load(g, registers.Error); err == nil && cur == registers.ErrorNone {
		_ = registers.Store(g, registers.Error, code)
	}
}

func (s *Slave) end(valid bool) {
	s.stats.telegrams.Add(1)
	if !valid {
		s.stats.integrity.Add(1)
		s.addLoss()
	}
}

func (s *Slave) malformed(err error) {
	if errors.Is(err, telegram.ErrIntegrity) {
		s.stats.integrity.Add(1)
	} else {
		s.stats.framing.Add(1)
	}
	s.addLoss()
	s.log.Debug("malformed telegram forwarded verbatim", zap.Error(err))
}

func (s *Slave) addLoss() {
	g, ok := s.regs.TryAcquire(s.cfg.LockBudget)
	if !ok {
		s.stats.lockMisses.Add(1)
		return
	}
	defer g.Release()

	if n, err := registers.Load(g, registers.Loss); err == nil && n < 0xFFFF {
		_ = registers.Store(g, registers.Loss, n+1)
	}
}

// internal/master/request.go
package master

import (
	"context"
	"fmt"

	"github.com/tamzrod/uartcat/internal/telegram"
)

// Policy is how a logical request judges its working counter.
type Policy struct {
	n     int
	exact bool
}

// Any accepts a logical result supplied by at least one slave.
func Any() Policy { return Policy{} }

// Exactly accepts a logical result only when n slaves matched.
func Exactly(n int) Policy { return Policy{n: n, exact: true} }

func (p Policy) String() string {
	if p.exact {
		return fmt.Sprintf("exactly(%d)", p.n)
	}
	return "any"
}

// Request is one raw datagram to submit. For reads only len(Data) matters.
type Request struct {
	Dir    telegram.Direction
	Addr   telegram.Address
	Data   []byte
	Policy Policy
}

// Reply is what came back for one request.
type Reply struct {
	Data []byte
	WKC  uint16
	// Addr is the returned address; for positional requests the hop
	// count has been decremented once per slave.
	Addr telegram.Address
	// Complete is set when every byte of a logical read was supplied.
	Complete bool
}

type outcome struct {
	reply Reply
	err   error
}

type pending struct {
	ctx    context.Context
	dg     telegram.Datagram
	policy Policy
	done   chan outcome
}

func (p *pending) resolve(r Reply, err error) {
	select {
	case p.done <- outcome{reply: r, err: err}:
	default:
	}
}

// Do submits a request and waits for its result. If ctx ends first the
// request is abandoned: it may still go on the wire, its result is dropped.
func (m *Master) Do(ctx context.Context, req Request) (Reply, error) {
	if !req.Dir.Valid() {
		return Reply{}, fmt.Errorf("master: invalid direction %s", req.Dir)
	}
	if !req.Addr.Mode().Valid() {
		return Reply{}, fmt.Errorf("master: invalid address %s", req.Addr)
	}

	data := make([]byte, len(req.Data))
	if req.Dir.Writes() {
		copy(data, req.Data)
	}
	dg := telegram.NewDatagram(req.Dir, req.Addr, data)
	if size := telegram.HeaderSize + telegram.TrailerSize + dg.Size(); size > m.cfg.Limits.MaxTelegram {
		return Reply{}, fmt.Errorf("%w: datagram needs %d bytes, limit %d", telegram.ErrTooLarge, size, m.cfg.Limits.MaxTelegram)
	}

	p := &pending{
		ctx:    ctx,
		dg:     dg,
		policy: req.Policy,
		done:   make(chan outcome, 1),
	}

	select {
	case m.queue <- p:
	case <-m.stopped:
		return Reply{}, ErrClosed
	case <-ctx.Done():
		return Reply{}, context.Cause(ctx)
	}

	select {
	case out := <-p.done:
		return out.reply, out.err
	case <-m.stopped:
		select {
		case out := <-p.done:
			return out.reply, out.err
		default:
			return Reply{}, ErrClosed
		}
	case <-ctx.Done():
		return Reply{}, context.Cause(ctx)
	}
}

// evaluate applies the addressing rules to a returned datagram.
func evaluate(dg *telegram.Datagram, policy Policy) error {
	if dg.Error {
		return fmt.Errorf("%w: %s", ErrRejected, dg.Addr)
	}

	if dg.Addr.Mode() == telegram.ModeLogical {
		if dg.Conflict {
			return fmt.Errorf("%w: %s", ErrAmbiguous, dg.Addr)
		}
		if policy.exact {
			if int(dg.WKC) != policy.n {
				return fmt.Errorf("%w: %s wkc=%d want %d", ErrCount, dg.Addr, dg.WKC, policy.n)
			}
			return nil
		}
		if dg.WKC == 0 {
			return fmt.Errorf("%w: %s", ErrNoResponse, dg.Addr)
		}
		return nil
	}

	switch {
	case dg.WKC == 0:
		return fmt.Errorf("%w: %s", ErrNoResponse, dg.Addr)
	case dg.WKC > 1:
		return fmt.Errorf("%w: %s wkc=%d", ErrConflict, dg.Addr, dg.WKC)
	}
	return nil
}

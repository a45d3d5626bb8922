// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/uartcat/internal/master"
	"github.com/tamzrod/uartcat/internal/telegram"
)

// Client is the part of the master the poller needs.
type Client interface {
	Do(ctx context.Context, req master.Request) (master.Reply, error)
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	UnitID   string
	Interval time.Duration
	// Timeout bounds one whole poll cycle.
	Timeout time.Duration
	Reads   []ReadBlock
}

// Poller is a dumb, clock-driven reader.
type Poller struct {
	cfg    Config
	client Client
}

// New creates a poller with immutable config.
func New(cfg Config, client Client) (*Poller, error) {
	if cfg.UnitID == "" {
		return nil, errors.New("poller: unit id required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if len(cfg.Reads) == 0 {
		return nil, errors.New("poller: at least one read block required")
	}
	if client == nil {
		return nil, errors.New("poller: client required")
	}
	return &Poller{cfg: cfg, client: client}, nil
}

// PollOnce performs exactly one poll cycle. Blocks are submitted together
// so the master can batch them into one telegram.
// All-or-nothing: any failure aborts the cycle.
func (p *Poller) PollOnce(ctx context.Context) PollResult {
	res := PollResult{
		UnitID: p.cfg.UnitID,
		At:     time.Now(),
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	blocks := make([]BlockResult, len(p.cfg.Reads))
	g, gctx := errgroup.WithContext(ctx)

	for i, rb := range p.cfg.Reads {
		g.Go(func() error {
			rep, err := p.client.Do(gctx, master.Request{
				Dir:    telegram.Read,
				Addr:   rb.Addr,
				Data:   make([]byte, rb.Length),
				Policy: rb.Policy,
			})
			if err != nil {
				return fmt.Errorf("poller: read %s: %w", rb.Addr, err)
			}
			blocks[i] = BlockResult{
				Addr:     rb.Addr,
				Register: rb.Register,
				Data:     rep.Data,
				WKC:      rep.WKC,
				Complete: rep.Complete,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		res.Err = err
		res.Code = master.Code(err)
		return res
	}

	// Commit only if all reads succeeded
	res.Blocks = blocks
	return res
}

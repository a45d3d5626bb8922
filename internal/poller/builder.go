// internal/poller/builder.go
package poller

import (
	"fmt"
	"time"

	"github.com/tamzrod/uartcat/internal/addressing"
	cfg "github.com/tamzrod/uartcat/internal/config"
	"github.com/tamzrod/uartcat/internal/master"
	"github.com/tamzrod/uartcat/internal/telegram"
)

// Build constructs the Poller of one unit on top of a running master.
// chain is the known topology; it is only needed for "topology" policies.
// Assumes config has already passed validation.
func Build(u cfg.UnitConfig, client Client, chain []addressing.Identity) (*Poller, error) {
	reads := make([]ReadBlock, 0, len(u.Reads))
	for i, r := range u.Reads {
		rb, err := readBlock(r, chain)
		if err != nil {
			return nil, fmt.Errorf("poller: unit %q read %d: %w", u.ID, i, err)
		}
		reads = append(reads, rb)
	}

	return New(
		Config{
			UnitID:   u.ID,
			Interval: time.Duration(u.Poll.IntervalMs) * time.Millisecond,
			Timeout:  time.Duration(u.Poll.TimeoutMs) * time.Millisecond,
			Reads:    reads,
		},
		client,
	)
}

func readBlock(r cfg.ReadConfig, chain []addressing.Identity) (ReadBlock, error) {
	rb := ReadBlock{Length: r.Length, Register: r.Register}

	switch r.Mode {
	case "fixed":
		rb.Addr = telegram.Fixed(uint16(r.Slave), uint16(r.Address))
	case "positional":
		rb.Addr = telegram.Positional(int16(r.Slave), uint16(r.Address))
	case "logical":
		rb.Addr = telegram.Logical(r.Address)

		p, err := r.ParsePolicy()
		if err != nil {
			return ReadBlock{}, err
		}
		switch {
		case p.Topology:
			matched, _ := addressing.Simulate(chain, rb.Addr, int(r.Length))
			rb.Policy = master.Exactly(len(matched))
		case p.Exactly > 0:
			rb.Policy = master.Exactly(p.Exactly)
		default:
			rb.Policy = master.Any()
		}
	default:
		return ReadBlock{}, fmt.Errorf("unknown mode %q", r.Mode)
	}
	return rb, nil
}

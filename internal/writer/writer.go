// internal/writer/writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/uartcat/internal/poller"
)

type modbusWriter struct {
	plan    Plan
	clients map[string]RegisterClient
}

func New(plan Plan, clients map[string]RegisterClient) Writer {
	return &modbusWriter{
		plan:    plan,
		clients: clients,
	}
}

// Write mirrors every block of a successful poll into every target.
// Failed polls leave the targets untouched; the status block reports them.
func (w *modbusWriter) Write(res poller.PollResult) error {
	if res.Err != nil {
		return nil
	}

	var errs []string

	for _, tgt := range w.plan.Targets {
		cli := w.clients[tgt.Endpoint]
		if cli == nil {
			errs = append(errs, fmt.Sprintf(
				"writer: missing client for endpoint %s",
				tgt.Endpoint,
			))
			continue
		}

		for _, b := range res.Blocks {
			dstAddr := tgt.Offset + b.Register

			if err := cli.WriteRegisters(tgt.UnitID, dstAddr, packBytes(b.Data)); err != nil {
				errs = append(errs, fmt.Sprintf(
					"writer: ep=%s unit=%d addr=%d src=%s err=%v",
					tgt.Endpoint, tgt.UnitID, dstAddr, b.Addr, err,
				))
			}
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}

	return nil
}

// packBytes puts two bus bytes in each register, big-endian; an odd
// trailing byte is padded with zero.
func packBytes(data []byte) []uint16 {
	out := make([]uint16, (len(data)+1)/2)
	for i, b := range data {
		if i%2 == 0 {
			out[i/2] = uint16(b) << 8
		} else {
			out[i/2] |= uint16(b)
		}
	}
	return out
}

// internal/slave/run.go
package slave

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Run drives the wire loop: bytes from up are forwarded to down, patched
// on the way. Protocol errors are counted and never end the loop; Run
// returns on a transport error or when ctx ends. A blocked Read is only
// interrupted by closing the link.
func (s *Slave) Run(ctx context.Context, up io.Reader, down io.Writer) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer s.running.Store(false)

	s.log.Info("slave running",
		zap.Int("buffer", s.regs.Size()),
		zap.Int("windows", len(s.id.Windows)),
	)

	in := make([]byte, s.cfg.ReadChunk)
	out := make([]byte, 0, s.cfg.ReadChunk)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := up.Read(in)
		if n > 0 {
			out = s.fwd.process(in[:n], out[:0])
			if len(out) > 0 {
				if _, werr := down.Write(out); werr != nil {
					return fmt.Errorf("slave: downstream: %w", werr)
				}
			}
		}
		if err != nil {
			return fmt.Errorf("slave: upstream: %w", err)
		}
	}
}

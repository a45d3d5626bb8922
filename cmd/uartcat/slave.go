// cmd/uartcat/slave.go
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/uartcat/internal/config"
	"github.com/tamzrod/uartcat/internal/registers"
	"github.com/tamzrod/uartcat/internal/slave"
	"github.com/tamzrod/uartcat/internal/telegram"
	"github.com/tamzrod/uartcat/internal/transport"
)

const statsInterval = 30 * time.Second

func newSlaveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "slave",
		Short: "Run one forwarding slave between two ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSlave(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "uartcat.yaml", "configuration file (.yaml or .toml)")
	return cmd
}

func runSlave(path string) error {
	cfg, log, err := load(path)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	sc := cfg.Slave
	if sc == nil {
		return errors.New("config has no slave section")
	}

	s, err := buildSlave(sc, log.Named("slave"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	up, err := transport.Open(sc.Upstream.Transport())
	if err != nil {
		return err
	}
	defer up.Close()

	// the same device on both sides reflects the chain back
	down := up
	if sc.Downstream.Device != sc.Upstream.Device {
		if down, err = transport.Open(sc.Downstream.Transport()); err != nil {
			return err
		}
		defer down.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.Run(gctx, up, down)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		_ = up.Close()
		_ = down.Close()
		return nil
	})

	g.Go(func() error {
		t := time.NewTicker(statsInterval)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				logStats(log, s)
			}
		}
	})

	err = g.Wait()
	logStats(log, s)
	return err
}

// buildSlave turns the slave section into a slave with its initial values.
func buildSlave(sc *config.SlaveConfig, log *zap.Logger) (*slave.Slave, error) {
	windows, err := config.Windows(sc.Windows)
	if err != nil {
		return nil, err
	}

	device, err := sc.Device.Info()
	if err != nil {
		return nil, err
	}

	decl := make([]registers.Descriptor, 0, len(sc.Registers))
	for _, r := range sc.Registers {
		d, err := r.Descriptor()
		if err != nil {
			return nil, err
		}
		decl = append(decl, d)
	}

	s, err := slave.New(slave.Config{
		Station:    sc.Station,
		Windows:    windows,
		Device:     device,
		Buffer:     sc.Buffer,
		Registers:  decl,
		Limits:     telegram.Limits{MaxTelegram: sc.MaxTelegram, MaxDatagrams: sc.MaxDatagrams},
		LockBudget: time.Duration(sc.LockBudgetUs) * time.Microsecond,
		ReadChunk:  sc.ReadChunk,
		Log:        log,
	})
	if err != nil {
		return nil, err
	}

	for _, r := range sc.Registers {
		if r.Value == nil {
			continue
		}
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], *r.Value)
		if _, err := s.Registers().WriteAt(b[8-r.Width:], int64(r.Offset)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func logStats(log *zap.Logger, s *slave.Slave) {
	st := s.Stats()
	log.Info("slave stats",
		zap.Uint64("telegrams", st.Telegrams),
		zap.Uint64("datagrams", st.Datagrams),
		zap.Uint64("matched", st.Matched),
		zap.Uint64("rejected", st.Rejected),
		zap.Uint64("conflicts", st.Conflicts),
		zap.Uint64("framing", st.Framing),
		zap.Uint64("integrity", st.Integrity),
		zap.Uint64("lock_misses", st.LockMisses),
	)
}

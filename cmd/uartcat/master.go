// cmd/uartcat/master.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/uartcat/internal/addressing"
	"github.com/tamzrod/uartcat/internal/master"
	"github.com/tamzrod/uartcat/internal/poller"
	"github.com/tamzrod/uartcat/internal/status"
	"github.com/tamzrod/uartcat/internal/telegram"
	"github.com/tamzrod/uartcat/internal/transport"
	"github.com/tamzrod/uartcat/internal/writer"
)

func newMasterCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "master",
		Short: "Run the chain master and its poll units",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaster(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "uartcat.yaml", "configuration file (.yaml or .toml)")
	return cmd
}

// unit is one poll unit wired to its writers.
type unit struct {
	id       string
	interval time.Duration
	poller   *poller.Poller
	data     writer.Writer
	status   writer.StatusWriter
}

func runMaster(path string) error {
	cfg, log, err := load(path)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	mc := cfg.Master
	if mc == nil {
		return errors.New("config has no master section")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	link, err := transport.Open(mc.Port.Transport())
	if err != nil {
		return err
	}
	defer link.Close()

	m, err := master.New(link, master.Config{
		Limits:     telegram.Limits{MaxTelegram: mc.MaxTelegram, MaxDatagrams: mc.MaxDatagrams},
		Timeout:    time.Duration(mc.TimeoutMs) * time.Millisecond,
		QueueDepth: mc.QueueDepth,
		Log:        log.Named("master"),
	})
	if err != nil {
		return err
	}

	chain, err := mc.Chain()
	if err != nil {
		return err
	}

	// --------------------
	// Build per-unit pipelines
	// --------------------

	var units []unit
	for _, u := range mc.Units {
		p, err := poller.Build(u, m, chain)
		if err != nil {
			return err
		}

		plan, err := writer.BuildPlan(u, mc.StatusMemory)
		if err != nil {
			return fmt.Errorf("writer plan failed (unit=%s): %w", u.ID, err)
		}

		clients, closeWriters, err := writer.BuildEndpointClients(plan, time.Duration(u.Poll.TimeoutMs)*time.Millisecond)
		if err != nil {
			return fmt.Errorf("writer clients failed (unit=%s): %w", u.ID, err)
		}
		defer closeWriters()

		sw, _ := writer.NewDeviceStatusWriter(plan, clients)
		units = append(units, unit{
			id:       u.ID,
			interval: time.Duration(u.Poll.IntervalMs) * time.Millisecond,
			poller:   p,
			data:     writer.New(plan, clients),
			status:   sw,
		})
	}

	// --------------------
	// Run
	// --------------------

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := m.Run(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	// a blocked link read only returns once the link is closed
	g.Go(func() error {
		<-gctx.Done()
		_ = link.Close()
		return nil
	})

	if mc.Enumerate {
		g.Go(func() error {
			enumerate(gctx, m, chain, log)
			return nil
		})
	}

	for _, u := range units {
		out := make(chan poller.PollResult)
		ulog := log.With(zap.String("unit", u.id))

		g.Go(func() error {
			u.poller.Run(gctx, out)
			return nil
		})
		g.Go(func() error {
			orchestrate(gctx, u, out, ulog)
			return nil
		})
	}

	log.Info("master started",
		zap.String("port", mc.Port.Device),
		zap.Int("units", len(units)),
		zap.Int("topology", len(chain)),
	)

	err = g.Wait()
	st := m.Stats()
	log.Info("master stopped",
		zap.Uint64("cycles", st.Cycles),
		zap.Uint64("timeouts", st.Timeouts),
		zap.Uint64("stale", st.Stale),
		zap.Uint64("corrupt", st.Corrupt),
	)
	return err
}

// enumerate logs the live chain and compares it with the configured one.
func enumerate(ctx context.Context, m *master.Master, chain []addressing.Identity, log *zap.Logger) {
	nodes, err := master.Identify(ctx, m)
	if err != nil {
		log.Warn("chain enumeration failed", zap.Error(err))
		return
	}

	stations := make([]uint16, len(nodes))
	for i, n := range nodes {
		stations[i] = n.Station
		log.Info("slave found",
			zap.Int("position", n.Position),
			zap.Uint16("station", n.Station),
			zap.Stringer("model", n.Device.Model),
			zap.Stringer("hardware", n.Device.Hardware),
			zap.Stringer("software", n.Device.Software),
			zap.Stringer("serial", n.Device.Serial),
		)
	}
	log.Info("chain enumerated", zap.Uint16s("stations", stations))

	if len(chain) == 0 {
		return
	}
	want := make([]uint16, len(chain))
	for i, id := range chain {
		want[i] = id.Station
	}
	if !slices.Equal(want, stations) {
		log.Warn("chain differs from topology",
			zap.Uint16s("configured", want),
			zap.Uint16s("found", stations),
		)
	}
}

// orchestrate owns one unit's status: it delivers poll results to the data
// writer and keeps the status block in step with a 1 Hz tick.
func orchestrate(ctx context.Context, u unit, in <-chan poller.PollResult, log *zap.Logger) {
	// three missed polls without any outcome mark the unit stale
	stale := int(3*u.interval/time.Second) + 1
	tracker := status.NewTracker(stale)

	publish := func() {
		if u.status == nil {
			return
		}
		if err := u.status.WriteStatus(tracker.Snapshot()); err != nil {
			log.Warn("status write failed", zap.Error(err))
		}
	}

	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	// Full block write on start (identity re-assert)
	publish()

	for {
		select {
		case <-ctx.Done():
			return

		case res := <-in:
			if err := u.data.Write(res); err != nil {
				log.Warn("writer error", zap.Error(err))
			}
			if res.Err != nil {
				log.Debug("poll failed", zap.Uint16("code", res.Code), zap.Error(res.Err))
			}
			if tracker.Observe(res.Code) {
				publish()
			}

		case <-secTicker.C:
			if tracker.Tick() {
				publish()
			}
		}
	}
}

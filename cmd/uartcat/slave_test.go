// cmd/uartcat/slave_test.go
package main

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/tamzrod/uartcat/internal/config"
	"github.com/tamzrod/uartcat/internal/registers"
)

// ---- tests ----

func TestBuildSlave_AppliesInitialValues(t *testing.T) {
	speed := uint64(1500)
	sc := &config.SlaveConfig{
		Station: 4,
		Device:  config.DeviceConfig{Model: "UC-IO8", Software: "1.4.0"},
		Windows: []config.WindowConfig{{Logical: 0x1000, Offset: 0x10, Length: 4, Access: "ro"}},
		Registers: []config.RegisterConfig{
			{Name: "speed", Offset: 0x10, Width: 4, Access: "ro", Value: &speed},
		},
	}
	config.Normalize(&config.Config{Slave: sc})

	s, err := buildSlave(sc, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("buildSlave: %v", err)
	}

	got, err := registers.Get(s.Registers(), registers.New[uint32](0x10, registers.ReadOnly))
	if err != nil || got != 1500 {
		t.Fatalf("expected 1500, got %d (%v)", got, err)
	}
	if station, _ := registers.Get(s.Registers(), registers.Address); station != 4 {
		t.Fatalf("expected station 4, got %d", station)
	}
	if dev, _ := registers.Get(s.Registers(), registers.Device); dev.Model.String() != "UC-IO8" || dev.Software.String() != "1.4.0" {
		t.Fatalf("unexpected device %s", dev)
	}
	if len(s.Identity().Windows) != 1 {
		t.Fatalf("expected one window, got %d", len(s.Identity().Windows))
	}
}

func TestBuildSlave_RejectsBadAccess(t *testing.T) {
	sc := &config.SlaveConfig{
		Registers: []config.RegisterConfig{{Name: "x", Offset: 0x10, Width: 2, Access: "maybe"}},
	}
	if _, err := buildSlave(sc, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

// internal/config/load_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const yamlDoc = `
log:
  level: debug
master:
  port:
    device: tcp://127.0.0.1:4001
    baud: 57600
  timeout_ms: 20
  topology:
    - station: 1
      windows:
        - { logical: 0x1000, offset: 0x10, length: 2, access: ro }
    - station: 2
  units:
    - id: drive
      poll: { interval_ms: 250 }
      status_slot: 2
      device_name: DRIVE-1
      reads:
        - { mode: fixed, slave: 2, address: 0x10, length: 4, register: 100 }
        - { mode: logical, address: 0x1000, length: 2, policy: topology, register: 110 }
      targets:
        - { endpoint: 127.0.0.1:502, unit_id: 1 }
  status_memory:
    endpoint: 127.0.0.1:502
    unit_id: 9
`

const tomlDoc = `
[slave]
station = 7
buffer = 128
lock_budget_us = 250

[slave.device]
model = "UC-IO8"
serial = "SN0042"

[slave.upstream]
device = "/dev/ttyS0"

[slave.downstream]
device = "/dev/ttyS1"
parity = "N"

[[slave.windows]]
logical = 4096
offset = 16
length = 4
access = "rw"

[[slave.registers]]
name = "speed"
offset = 16
width = 4
access = "rw"
value = 1500
`

// ---- tests ----

func TestParse_YAMLMaster(t *testing.T) {
	cfg, err := Parse([]byte(yamlDoc), ".yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	m := cfg.Master
	if cfg.Log.Level != "debug" || m.Port.Baud != 57600 || m.TimeoutMs != 20 {
		t.Fatalf("unexpected master section %+v", m)
	}
	if m.Port.Transport().Device != "tcp://127.0.0.1:4001" {
		t.Fatalf("unexpected port %+v", m.Port.Transport())
	}

	chain, err := m.Chain()
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if len(chain) != 2 || chain[0].Windows[0].Logical != 0x1000 || chain[1].Station != 2 {
		t.Fatalf("unexpected chain %+v", chain)
	}

	u := m.Units[0]
	if *u.StatusSlot != 2 || len(u.Reads) != 2 || u.Reads[1].Register != 110 {
		t.Fatalf("unexpected unit %+v", u)
	}
	p, err := u.Reads[1].ParsePolicy()
	if err != nil || !p.Topology {
		t.Fatalf("expected topology policy, got %+v (%v)", p, err)
	}
}

func TestLoad_TOMLSlave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slave.toml")
	if err := os.WriteFile(path, []byte(tomlDoc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	s := cfg.Slave
	if s.Station != 7 || s.Buffer != 128 || s.Downstream.Parity != "N" {
		t.Fatalf("unexpected slave section %+v", s)
	}
	if info, err := s.Device.Info(); err != nil || info.Model.String() != "UC-IO8" || info.Serial.String() != "SN0042" {
		t.Fatalf("unexpected device %+v (%v)", s.Device, err)
	}
	if len(s.Registers) != 1 || s.Registers[0].Value == nil || *s.Registers[0].Value != 1500 {
		t.Fatalf("unexpected registers %+v", s.Registers)
	}

	ws, err := Windows(s.Windows)
	if err != nil || len(ws) != 1 || ws[0].Length != 4 {
		t.Fatalf("unexpected windows %+v (%v)", ws, err)
	}
}

func TestParse_RejectsUnknownExtension(t *testing.T) {
	if _, err := Parse([]byte("{}"), ".json"); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestPortConfig_TimeoutConversion(t *testing.T) {
	p := PortConfig{Device: "/dev/ttyS0", TimeoutMs: 30}
	if got := p.Transport().Timeout; got != 30*time.Millisecond {
		t.Fatalf("expected 30ms, got %s", got)
	}
}

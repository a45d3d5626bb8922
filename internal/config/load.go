// internal/config/load.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/tamzrod/uartcat/internal/addressing"
	"github.com/tamzrod/uartcat/internal/registers"
	"github.com/tamzrod/uartcat/internal/transport"
)

// Load reads a YAML or TOML file, chosen by extension.
// The result is neither validated nor normalized.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw, filepath.Ext(path))
}

// Parse decodes raw in the format named by ext (".toml", ".yaml", ".yml").
func Parse(raw []byte, ext string) (*Config, error) {
	var cfg Config

	switch strings.ToLower(ext) {
	case ".toml":
		if _, err := toml.Decode(string(raw), &cfg); err != nil {
			return nil, fmt.Errorf("config: toml: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("config: yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: unsupported file type %q", ext)
	}
	return &cfg, nil
}

// ---- conversions ----

func (p PortConfig) Transport() transport.Config {
	return transport.Config{
		Device:   p.Device,
		Baud:     p.Baud,
		DataBits: p.DataBits,
		StopBits: p.StopBits,
		Parity:   p.Parity,
		Timeout:  time.Duration(p.TimeoutMs) * time.Millisecond,
	}
}

func (w WindowConfig) Window() (addressing.Window, error) {
	a, err := registers.ParseAccess(w.Access)
	if err != nil {
		return addressing.Window{}, err
	}
	return addressing.Window{
		Logical: w.Logical,
		Offset:  w.Offset,
		Length:  w.Length,
		Access:  a,
	}, nil
}

func Windows(ws []WindowConfig) ([]addressing.Window, error) {
	out := make([]addressing.Window, 0, len(ws))
	for _, w := range ws {
		win, err := w.Window()
		if err != nil {
			return nil, fmt.Errorf("window %#08x: %w", w.Logical, err)
		}
		out = append(out, win)
	}
	return out, nil
}

// Chain returns the configured topology in chain order.
func (m *MasterConfig) Chain() ([]addressing.Identity, error) {
	chain := make([]addressing.Identity, 0, len(m.Topology))
	for _, s := range m.Topology {
		ws, err := Windows(s.Windows)
		if err != nil {
			return nil, fmt.Errorf("station %d: %w", s.Station, err)
		}
		chain = append(chain, addressing.Identity{Station: s.Station, Windows: ws})
	}
	return chain, nil
}

// Info packs the identification strings for the Device register.
func (d DeviceConfig) Info() (registers.DeviceInfo, error) {
	return registers.NewDeviceInfo(d.Model, d.Hardware, d.Software, d.Serial)
}

func (r RegisterConfig) Descriptor() (registers.Descriptor, error) {
	a, err := registers.ParseAccess(r.Access)
	if err != nil {
		return registers.Descriptor{}, err
	}
	return registers.Descriptor{Offset: r.Offset, Width: r.Width, Access: a}, nil
}

// ReadPolicy is the parsed form of ReadConfig.Policy.
type ReadPolicy struct {
	Topology bool
	Exactly  int // 0 means any
}

func (r ReadConfig) ParsePolicy() (ReadPolicy, error) {
	switch p := strings.ToLower(strings.TrimSpace(r.Policy)); p {
	case "", "any":
		return ReadPolicy{}, nil
	case "topology":
		return ReadPolicy{Topology: true}, nil
	default:
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return ReadPolicy{}, fmt.Errorf("config: policy %q: want any, topology or a slave count", r.Policy)
		}
		return ReadPolicy{Exactly: n}, nil
	}
}

// Registers returns how many 16-bit registers the mirror of r occupies.
func (r ReadConfig) Registers() uint16 {
	return uint16((int(r.Length) + 1) / 2)
}

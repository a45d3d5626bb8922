// internal/transport/transport.go
package transport

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goburrow/serial"
)

var ErrClosed = errors.New("transport: closed")

// Config describes one link end: a UART device or a tcp:// serial server.
type Config struct {
	Device   string
	Baud     int
	DataBits int
	StopBits int
	Parity   string

	// Timeout bounds a single blocking read so Close is observed.
	Timeout time.Duration
}

const (
	DefaultBaud     = 115200
	DefaultDataBits = 8
	DefaultStopBits = 2
	DefaultParity   = "E"
	DefaultTimeout  = 100 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.DataBits == 0 {
		c.DataBits = DefaultDataBits
	}
	if c.StopBits == 0 {
		c.StopBits = DefaultStopBits
	}
	if c.Parity == "" {
		c.Parity = DefaultParity
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Link is one opened link end.
type Link interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Open opens a UART through goburrow/serial, or dials a serial server
// when the device is written tcp://host:port.
func Open(cfg Config) (Link, error) {
	if cfg.Device == "" {
		return nil, errors.New("transport: device required")
	}
	cfg = cfg.withDefaults()

	if addr, ok := strings.CutPrefix(cfg.Device, "tcp://"); ok {
		conn, err := net.DialTimeout("tcp", addr, cfg.Timeout*10)
		if err != nil {
			return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
		}
		return conn, nil
	}

	p, err := serial.Open(&serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.Baud,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", cfg.Device, err)
	}
	return &port{p: p}, nil
}

// port turns the serial read timeout into a plain blocking read that
// still returns once the port is closed.
type port struct {
	p      serial.Port
	closed atomic.Bool
}

func (p *port) Read(b []byte) (int, error) {
	for {
		n, err := p.p.Read(b)
		if err == nil || !errors.Is(err, serial.ErrTimeout) {
			return n, err
		}
		if n > 0 {
			return n, nil
		}
		if p.closed.Load() {
			return 0, ErrClosed
		}
	}
}

func (p *port) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	return p.p.Write(b)
}

func (p *port) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.p.Close()
}

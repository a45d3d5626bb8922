// internal/writer/modbus/client.go
package modbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// maxWriteQuantity is the Modbus limit for Write Multiple Registers.
const maxWriteQuantity = 123

// EndpointClient is a single TCP connection to one register memory.
// It serializes requests because it mutates SlaveId per write.
type EndpointClient struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

func NewEndpointClient(cfg Config) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("writer modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}

	if err := h.Connect(); err != nil {
		return nil, err
	}

	return &EndpointClient{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

func (c *EndpointClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

// WriteRegisters writes regs starting at addr, split into as many
// requests as the protocol limit needs.
func (c *EndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = unitID

	for _, chunk := range split(addr, regs, maxWriteQuantity) {
		if _, err := c.client.WriteMultipleRegisters(chunk.addr, uint16(len(chunk.regs)), packRegisters(chunk.regs)); err != nil {
			return fmt.Errorf("writer modbus: unit=%d addr=%d: %w", unitID, chunk.addr, err)
		}
	}
	return nil
}

type chunk struct {
	addr uint16
	regs []uint16
}

func split(addr uint16, regs []uint16, max int) []chunk {
	var out []chunk
	for len(regs) > 0 {
		n := min(len(regs), max)
		out = append(out, chunk{addr: addr, regs: regs[:n]})
		addr += uint16(n)
		regs = regs[n:]
	}
	return out
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

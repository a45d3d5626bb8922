// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"math"

	"github.com/tamzrod/uartcat/internal/addressing"
	"github.com/tamzrod/uartcat/internal/registers"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}
	if cfg.Master == nil && cfg.Slave == nil {
		return errors.New("config: neither master nor slave section present")
	}
	if cfg.Master != nil {
		if err := validateMaster(cfg.Master); err != nil {
			return fmt.Errorf("master: %w", err)
		}
	}
	if cfg.Slave != nil {
		if err := validateSlave(cfg.Slave); err != nil {
			return fmt.Errorf("slave: %w", err)
		}
	}
	return nil
}

func validateMaster(m *MasterConfig) error {
	if m.Port.Device == "" {
		return errors.New("port.device required")
	}

	// ------------------------------------------------------------
	// TOPOLOGY
	// ------------------------------------------------------------

	chain, err := m.Chain()
	if err != nil {
		return fmt.Errorf("topology: %w", err)
	}
	if dups := addressing.DuplicateStations(chain); len(dups) > 0 {
		return fmt.Errorf("topology: duplicate station addresses %v", dups)
	}
	for _, id := range chain {
		// buffer size is unknown here; only logical overlap is checked
		if err := addressing.ValidateWindows(id.Windows, math.MaxUint16+1); err != nil {
			return fmt.Errorf("topology: station %d: %w", id.Station, err)
		}
	}

	// ------------------------------------------------------------
	// UNITS
	// ------------------------------------------------------------

	ids := make(map[string]bool)
	for _, u := range m.Units {
		if u.ID == "" {
			return errors.New("unit id required")
		}
		if ids[u.ID] {
			return fmt.Errorf("unit %q: duplicate id", u.ID)
		}
		ids[u.ID] = true

		if len(u.Reads) == 0 {
			return fmt.Errorf("unit %q: at least one read required", u.ID)
		}
		for i, r := range u.Reads {
			if err := validateRead(r, len(chain) > 0); err != nil {
				return fmt.Errorf("unit %q: read %d: %w", u.ID, i, err)
			}
		}

		// device_name sanity (ASCII only)
		for i := 0; i < len(u.DeviceName); i++ {
			if u.DeviceName[i] > 0x7F {
				return fmt.Errorf("unit %q: device_name must contain ASCII characters only", u.ID)
			}
		}
	}

	if err := validateStatusSlots(m); err != nil {
		return err
	}
	return validateMirrors(m)
}

func validateRead(r ReadConfig, haveTopology bool) error {
	if r.Length == 0 {
		return errors.New("length must be > 0")
	}

	switch r.Mode {
	case "fixed":
		if r.Slave < 0 || r.Slave > math.MaxUint16 {
			return fmt.Errorf("station %d out of range", r.Slave)
		}
	case "positional":
		if r.Slave < 0 || r.Slave > math.MaxInt16 {
			return fmt.Errorf("hop %d out of range", r.Slave)
		}
	case "logical":
		p, err := r.ParsePolicy()
		if err != nil {
			return err
		}
		if p.Topology && !haveTopology {
			return errors.New(`policy "topology" needs master.topology`)
		}
		return nil
	default:
		return fmt.Errorf("unknown mode %q", r.Mode)
	}

	if r.Address > math.MaxUint16 {
		return fmt.Errorf("register offset %#x out of range", r.Address)
	}
	if r.Policy != "" {
		return errors.New("policy applies to logical reads only")
	}
	return nil
}

// validateStatusSlots rejects two units sharing one status block.
func validateStatusSlots(m *MasterConfig) error {
	owner := make(map[uint16]string)

	for _, u := range m.Units {
		// status is opt-in
		if u.StatusSlot == nil {
			continue
		}
		if m.StatusMemory.Endpoint == "" {
			return fmt.Errorf("unit %q: status_slot is set but status_memory.endpoint is empty", u.ID)
		}

		slot := *u.StatusSlot
		if prev, exists := owner[slot]; exists {
			return fmt.Errorf(
				"status_slot collision: endpoint=%s unit_id=%d slot=%d used by units %q and %q",
				m.StatusMemory.Endpoint, m.StatusMemory.UnitID, slot, prev, u.ID,
			)
		}
		owner[slot] = u.ID
	}
	return nil
}

// validateMirrors rejects overlapping register spans in one target memory.
func validateMirrors(m *MasterConfig) error {
	type span struct {
		start uint32
		end   uint32
		unit  string
	}

	// key = endpoint | unit_id
	spans := make(map[string][]span)

	for _, u := range m.Units {
		for _, t := range u.Targets {
			if t.Endpoint == "" {
				return fmt.Errorf("unit %q: target endpoint required", u.ID)
			}
			key := fmt.Sprintf("%s|%d", t.Endpoint, t.UnitID)

			for _, r := range u.Reads {
				start := uint32(t.Offset) + uint32(r.Register)
				end := start + uint32(r.Registers()) - 1
				if end > math.MaxUint16 {
					return fmt.Errorf("unit %q: mirror %d-%d beyond register space", u.ID, start, end)
				}

				for _, s := range spans[key] {
					// overlap check (inclusive)
					if !(end < s.start || start > s.end) {
						return fmt.Errorf(
							"memory overlap: endpoint=%s unit_id=%d range=%d-%d overlaps with unit=%s range=%d-%d",
							t.Endpoint, t.UnitID, start, end, s.unit, s.start, s.end,
						)
					}
				}
				spans[key] = append(spans[key], span{start: start, end: end, unit: u.ID})
			}
		}
	}
	return nil
}

func validateSlave(s *SlaveConfig) error {
	if s.Upstream.Device == "" {
		return errors.New("upstream.device required")
	}
	if s.Downstream.Device == "" {
		return errors.New("downstream.device required")
	}

	buffer := s.Buffer
	if buffer == 0 {
		buffer = DefaultSlaveBuffer
	}
	if buffer < int(registers.User) || buffer > math.MaxUint16+1 {
		return fmt.Errorf("buffer %d out of range", buffer)
	}

	ws, err := Windows(s.Windows)
	if err != nil {
		return err
	}
	if err := addressing.ValidateWindows(ws, buffer); err != nil {
		return err
	}

	decl := registers.Standard()
	for _, r := range s.Registers {
		d, err := r.Descriptor()
		if err != nil {
			return fmt.Errorf("register %q: %w", r.Name, err)
		}
		if r.Value != nil && (r.Width < 1 || r.Width > 8) {
			return fmt.Errorf("register %q: value needs a width of 1 to 8", r.Name)
		}
		decl = append(decl, d)
	}
	m, err := registers.NewMap(buffer, decl...)
	if err != nil {
		return err
	}
	if err := addressing.CheckWindowAccess(ws, m); err != nil {
		return err
	}

	if _, err := s.Device.Info(); err != nil {
		return fmt.Errorf("device: %w", err)
	}
	return nil
}

// internal/writer/types.go
package writer

import "github.com/tamzrod/uartcat/internal/poller"

// TargetEndpoint is one Modbus TCP memory receiving the mirror.
type TargetEndpoint struct {
	Endpoint string
	UnitID   uint8
	Offset   uint16 // added to every block register
}

// StatusPlan locates the unit's device status block.
type StatusPlan struct {
	Endpoint   string
	UnitID     uint8
	BaseSlot   uint16
	DeviceName string
}

// Plan is the fully-built write plan for one unit.
type Plan struct {
	UnitID  string
	Targets []TargetEndpoint
	Status  *StatusPlan // nil: status disabled
}

// Writer writes poll snapshots into targets.
type Writer interface {
	Write(res poller.PollResult) error
}

// RegisterClient is the exact contract the writers use.
type RegisterClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

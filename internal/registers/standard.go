// internal/registers/standard.go
package registers

// Every slave buffer starts with the standard registers.
// These values define the protocol and MUST NOT be configurable.

// ErrorCode is the value of the Error register.
type ErrorCode uint8

const (
	ErrorNone ErrorCode = 0
	// ErrorAccess: a datagram wrote a read-only or read a write-only register.
	ErrorAccess ErrorCode = 2
	// ErrorSize: a datagram range overruns the buffer.
	ErrorSize ErrorCode = 3
	// ErrorRegister is reserved; no current slave raises it.
	ErrorRegister ErrorCode = 4
	// ErrorBusy: the wire loop missed the register guard and passed a
	// matching datagram without serving it.
	ErrorBusy ErrorCode = 5
)

// ProtocolVersion is served by the Version register.
const ProtocolVersion uint8 = 1

var (
	// Address holds the slave's fixed station address.
	Address = New[uint16](0x0000, ReadOnly)
	// Error holds the first rejected-datagram code; write 0 to reset.
	Error = New[ErrorCode](0x0002, ReadWrite)
	// Loss counts malformed telegrams seen, saturating; write 0 to reset.
	Loss = New[uint16](0x0003, ReadWrite)
	// Version holds ProtocolVersion.
	Version = New[uint8](0x0005, ReadOnly)
	// Device identifies the hardware and firmware of the slave.
	Device = New[DeviceInfo](0x0020, ReadOnly)
)

// User is the first offset free for application registers.
// Offsets 0x0006 to 0x001F are undeclared and free as well.
const User = 0x0060

// Standard returns the declarations of the standard registers.
func Standard() []Descriptor {
	return []Descriptor{
		Address.Descriptor(),
		Error.Descriptor(),
		Loss.Descriptor(),
		Version.Descriptor(),
		Device.Descriptor(),
	}
}

// internal/status/constants.go
package status

// Device status block layout. One block per poll unit, mirrored into the
// status memory at slot * SlotsPerDevice.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of 16-bit slots per unit.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

const (
	SlotHealthCode     = 0
	SlotLastErrorCode  = 1 // master error class, see master.Code
	SlotSecondsInError = 2
	SlotPollCount      = 3 // successful polls, wraps
	SlotErrorCount     = 4 // failed polls, saturates
)

// Slots 5-10 are reserved.
const (
	SlotReservedStart = 5
	SlotReservedEnd   = 10
)

// ---- DEVICE NAME ----

// The device name always sits at the end of the block.
const (
	SlotDeviceNameStart = 11
	SlotDeviceNameSlots = 8
	SlotDeviceNameEnd   = SlotDeviceNameStart + SlotDeviceNameSlots - 1
)

// DeviceNameMaxChars is the maximum number of ASCII characters stored.
const DeviceNameMaxChars = 16

// ---- HEALTH CODES ----

const (
	HealthUnknown  uint16 = 0 // no poll finished yet
	HealthOK       uint16 = 1
	HealthError    uint16 = 2
	HealthStale    uint16 = 3 // no poll outcome for longer than the stale limit
	HealthDisabled uint16 = 4
)

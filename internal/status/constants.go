// internal/status/constants.go
package status

// Register layout constants for the Modbus mirror.
// These values define the protocol and MUST NOT be configurable.

// ---- READING BLOCK ----

// The reading block is written after every published reading.
const (
	RegPPM   = 0 // CO2 concentration, ppm
	RegValid = 1 // 1 = valid reading, 0 = invalidity signal
	RegSeqHi = 2 // sequence number, high word
	RegSeqLo = 3 // sequence number, low word

	ReadingBlockSize = 4
)

// ---- STATUS BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of logical slots per device.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

const (
	SlotHealthCode     = 0
	SlotLastErrorCode  = 1
	SlotSecondsInError = 2

	// driver state as driver.State
	SlotDriverState = 3
	// consecutive failed cycles, saturating
	SlotFailures = 4
)

// Slots 5..10 are reserved.
const (
	SlotReservedStart = 5
	SlotReservedEnd   = 10
)

// ---- DEVICE NAME ----

// Device name is always placed at the END of the status block.
const (
	SlotDeviceNameStart = 11
	SlotDeviceNameSlots = 8
	SlotDeviceNameEnd   = SlotDeviceNameStart + SlotDeviceNameSlots - 1
)

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// ---- HEALTH CODES ----

const (
	HealthUnknown  uint16 = 0 // booting, no cycle yet
	HealthOK       uint16 = 1
	HealthError    uint16 = 2 // driver faulted
	HealthStale    uint16 = 3 // last cycle failed, below the fault threshold
	HealthDisabled uint16 = 4 // driver torn down
)

// ---- ERROR CODES ----

// Stable codes for last_error_code. Modbus exceptions report 0x8000|code.
const (
	ErrCodeNone         uint16 = 0
	ErrCodeGeneric      uint16 = 1
	ErrCodeTimeout      uint16 = 2
	ErrCodeChecksum     uint16 = 3
	ErrCodeMalformed    uint16 = 4
	ErrCodeIO           uint16 = 5
	ErrCodeNotReady     uint16 = 6
	ErrCodeClosed       uint16 = 7
	ErrCodeFaulted      uint16 = 8
	ErrCodeIncomplete   uint16 = 9
	ErrCodeCycleOverlap uint16 = 10
)

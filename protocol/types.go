package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// Capabilities describes the streaming and timing limits of a device.
// Returned by the Device Read Caps command.
type Capabilities struct {
	// StreamBuffers is the number of device side stream buffers
	StreamBuffers uint8

	// StreamBufferSize is the size in bytes of each stream buffer
	StreamBufferSize uint32

	// OperationTimeoutMs is the timeout the device expects for regular commands
	OperationTimeoutMs uint16

	// PartEraseTimeoutMs is the timeout the device expects for an erase
	PartEraseTimeoutMs uint16

	// BPAKStreamSupport is non-zero if the device accepts BPAK images in Boot BPAK
	BPAKStreamSupport uint8

	// ChunkTransferMax is the largest single data phase the device accepts
	ChunkTransferMax uint32
}

// PartitionEntry is one row of the device partition table.
type PartitionEntry struct {
	UUID        uuid.UUID
	Description string
	FirstBlock  uint64
	LastBlock   uint64
	BlockSize   uint16
	Flags       uint8
}

// SLC is a security life cycle state.
// States are totally ordered: NotConfigured < Configuration < ConfigurationLocked < EOL.
type SLC uint8

// Security life cycle states.
const (
	SLCInvalid SLC = iota
	SLCNotConfigured
	SLCConfiguration
	SLCConfigurationLocked
	SLCEOL
)

func (s SLC) String() string {
	switch s {
	case SLCNotConfigured:
		return "Not configured"
	case SLCConfiguration:
		return "Configuration"
	case SLCConfigurationLocked:
		return "Configuration locked"
	case SLCEOL:
		return "EOL"
	case SLCInvalid:
		return "Invalid"
	default:
		return fmt.Sprintf("SLC(%d)", uint8(s))
	}
}

// KeyStatus holds the active and revoked key id slots reported by an SLC read.
// A zero slot is empty.
type KeyStatus struct {
	Active  [MaxKeySlots]uint32
	Revoked [MaxKeySlots]uint32
}

// ActiveKeys returns the non-empty active slots in device order.
func (k KeyStatus) ActiveKeys() []uint32 {
	return nonZero(k.Active[:])
}

// RevokedKeys returns the non-empty revoked slots in device order.
func (k KeyStatus) RevokedKeys() []uint32 {
	return nonZero(k.Revoked[:])
}

func nonZero(slots []uint32) []uint32 {
	keys := make([]uint32, 0, len(slots))
	for _, id := range slots {
		if id != 0 {
			keys = append(keys, id)
		}
	}
	return keys
}

// DeviceIdentifier identifies a device: its UUID and the board name.
type DeviceIdentifier struct {
	DeviceUUID uuid.UUID
	BoardID    string
}

// BootStatus is the boot selector reported by the device.
// UUID is uuid.Nil when booting is disabled.
type BootStatus struct {
	UUID    uuid.UUID
	Message string
}

package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// ParseCapabilitiesResponse parses the Device Read Caps result.
//
// Data format:
//
//	[BUFFERS(1)][BUFFER_SIZE(4)][OP_TIMEOUT(2)][ERASE_TIMEOUT(2)][BPAK_STREAM(1)][CHUNK_MAX(4)]
func ParseCapabilitiesResponse(data []byte) (*Capabilities, error) {
	if len(data) < 14 {
		return nil, fmt.Errorf("capabilities response too short: got %d bytes, expected at least 14", len(data))
	}

	caps := &Capabilities{
		StreamBuffers:      data[0],
		StreamBufferSize:   binary.LittleEndian.Uint32(data[1:5]),
		OperationTimeoutMs: binary.LittleEndian.Uint16(data[5:7]),
		PartEraseTimeoutMs: binary.LittleEndian.Uint16(data[7:9]),
		BPAKStreamSupport:  data[9],
		ChunkTransferMax:   binary.LittleEndian.Uint32(data[10:14]),
	}

	if caps.StreamBuffers == 0 {
		return nil, fmt.Errorf("device reports no stream buffers")
	}
	if caps.ChunkTransferMax == 0 {
		return nil, fmt.Errorf("device reports zero chunk transfer size")
	}

	return caps, nil
}

// ParsePartitionTable parses the data phase of a Partition Table Read.
// Entries are returned in device order. An entry whose last block precedes
// its first block is rejected.
//
// Entry format (PartitionEntrySize bytes):
//
//	[UUID(16)][DESCRIPTION(37)][FIRST_BLOCK(8)][LAST_BLOCK(8)][BLOCK_SIZE(2)][FLAGS(1)][RESERVED]
func ParsePartitionTable(data []byte) ([]PartitionEntry, error) {
	if len(data)%PartitionEntrySize != 0 {
		return nil, fmt.Errorf("partition table length %d is not a multiple of %d", len(data), PartitionEntrySize)
	}

	entries := make([]PartitionEntry, 0, len(data)/PartitionEntrySize)
	for off := 0; off < len(data); off += PartitionEntrySize {
		e := data[off : off+PartitionEntrySize]

		var entry PartitionEntry
		copy(entry.UUID[:], e[0:16])
		entry.Description = cString(e[16 : 16+PartitionDescriptionSize])
		entry.FirstBlock = binary.LittleEndian.Uint64(e[53:61])
		entry.LastBlock = binary.LittleEndian.Uint64(e[61:69])
		entry.BlockSize = binary.LittleEndian.Uint16(e[69:71])
		entry.Flags = e[71]

		if entry.LastBlock < entry.FirstBlock {
			return nil, fmt.Errorf("malformed partition entry %s: last block %d before first block %d",
				entry.UUID, entry.LastBlock, entry.FirstBlock)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// ParseSLCResponse parses an SLC Read exchange: the state byte from the
// result and the key status block from the data phase.
//
// Key status format (KeyStatusSize bytes):
//
//	[ACTIVE(16*4)][REVOKED(16*4)]
func ParseSLCResponse(result, data []byte) (SLC, *KeyStatus, error) {
	if len(result) < 1 {
		return SLCInvalid, nil, fmt.Errorf("slc response too short")
	}
	if len(data) < KeyStatusSize {
		return SLCInvalid, nil, fmt.Errorf("key status too short: got %d bytes, expected %d", len(data), KeyStatusSize)
	}

	keys := &KeyStatus{}
	for i := 0; i < MaxKeySlots; i++ {
		keys.Active[i] = binary.LittleEndian.Uint32(data[i*4:])
		keys.Revoked[i] = binary.LittleEndian.Uint32(data[MaxKeySlots*4+i*4:])
	}

	return SLC(result[0]), keys, nil
}

// ParseDeviceIdentifierResponse parses the Device Identifier Read result.
//
// Data format:
//
//	[DEVICE_UUID(16)][BOARD_ID(16)]
func ParseDeviceIdentifierResponse(data []byte) (*DeviceIdentifier, error) {
	if len(data) < 16+BoardIDSize {
		return nil, fmt.Errorf("device identifier response too short: got %d bytes", len(data))
	}

	id := &DeviceIdentifier{BoardID: cString(data[16 : 16+BoardIDSize])}
	copy(id.DeviceUUID[:], data[0:16])
	return id, nil
}

// ParseVersionResponse parses the Bootloader Version Read result.
func ParseVersionResponse(data []byte) string {
	return cString(data)
}

// ParseBootStatusResponse parses the Boot Status result.
//
// Data format:
//
//	[UUID(16)][STATUS(16)]
func ParseBootStatusResponse(data []byte) (*BootStatus, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("boot status response too short: got %d bytes", len(data))
	}

	status := &BootStatus{}
	copy(status.UUID[:], data[0:16])
	if len(data) > 16 {
		end := 16 + BootStatusMessageSize
		if end > len(data) {
			end = len(data)
		}
		status.Message = cString(data[16:end])
	}
	return status, nil
}

// ParseSizeResponse reads the little-endian u32 size carried by board and
// board status results.
func ParseSizeResponse(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("size response too short: got %d bytes", len(data))
	}
	return binary.LittleEndian.Uint32(data[0:4]), nil
}

// cString returns the bytes before the first NUL as a string.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// EncodeCapabilities is the inverse of ParseCapabilitiesResponse, used by
// device side implementations.
func EncodeCapabilities(c Capabilities) []byte {
	b := make([]byte, 32)
	b[0] = c.StreamBuffers
	binary.LittleEndian.PutUint32(b[1:5], c.StreamBufferSize)
	binary.LittleEndian.PutUint16(b[5:7], c.OperationTimeoutMs)
	binary.LittleEndian.PutUint16(b[7:9], c.PartEraseTimeoutMs)
	b[9] = c.BPAKStreamSupport
	binary.LittleEndian.PutUint32(b[10:14], c.ChunkTransferMax)
	return b
}

// EncodePartitionTable is the inverse of ParsePartitionTable.
func EncodePartitionTable(entries []PartitionEntry) []byte {
	b := make([]byte, len(entries)*PartitionEntrySize)
	for i, entry := range entries {
		e := b[i*PartitionEntrySize:]
		copy(e[0:16], entry.UUID[:])
		copy(e[16:16+PartitionDescriptionSize-1], entry.Description)
		binary.LittleEndian.PutUint64(e[53:61], entry.FirstBlock)
		binary.LittleEndian.PutUint64(e[61:69], entry.LastBlock)
		binary.LittleEndian.PutUint16(e[69:71], entry.BlockSize)
		e[71] = entry.Flags
	}
	return b
}

// EncodeKeyStatus is the inverse of the key status part of ParseSLCResponse.
func EncodeKeyStatus(k KeyStatus) []byte {
	b := make([]byte, KeyStatusSize)
	for i := 0; i < MaxKeySlots; i++ {
		binary.LittleEndian.PutUint32(b[i*4:], k.Active[i])
		binary.LittleEndian.PutUint32(b[MaxKeySlots*4+i*4:], k.Revoked[i])
	}
	return b
}

// EncodeDeviceIdentifier is the inverse of ParseDeviceIdentifierResponse.
func EncodeDeviceIdentifier(id uuid.UUID, board string) []byte {
	b := make([]byte, 16+BoardIDSize)
	copy(b[0:16], id[:])
	copy(b[16:16+BoardIDSize-1], board)
	return b
}

// EncodeBootStatus is the inverse of ParseBootStatusResponse.
func EncodeBootStatus(s BootStatus) []byte {
	b := make([]byte, 16+BootStatusMessageSize)
	copy(b[0:16], s.UUID[:])
	copy(b[16:16+BootStatusMessageSize-1], s.Message)
	return b
}

// EncodeSize is the inverse of ParseSizeResponse.
func EncodeSize(n uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, n)
	return b
}

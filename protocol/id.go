package protocol

import "hash/crc32"

// ID computes the punchboot identifier of a symbolic name (pb_id).
// Key names and board command names are sent to the device as this value.
//
// The hash is the reflected CRC-32 with polynomial 0xEDB88320, initial value 0
// and no final xor. ID("") is 0.
//
// Example:
//
//	protocol.ID("kernel") // 0xec103b08
func ID(name string) uint32 {
	// crc32.Update pre- and post-inverts the register; cancel both.
	return ^crc32.Update(^uint32(0), crc32.IEEETable, []byte(name))
}

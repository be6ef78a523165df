package devicesim

import (
	"bytes"
	"encoding/binary"

	"github.com/google/uuid"
)

func le16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func le32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func le64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

func uuidAt(b []byte, off int) uuid.UUID {
	var id uuid.UUID
	copy(id[:], b[off:off+16])
	return id
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func contains(slots []uint32, id uint32) bool {
	for _, s := range slots {
		if s == id {
			return true
		}
	}
	return false
}

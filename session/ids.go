package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/moffa90/go-punchboot/protocol"
)

// Identifier is a key or board command id, given either as a raw number or
// as a symbolic name hashed with protocol.ID.
type Identifier struct {
	name  string
	value uint32
}

// ID returns an Identifier for a raw numeric id.
func ID(v uint32) Identifier {
	return Identifier{value: v}
}

// Name returns an Identifier for a symbolic name.
func Name(name string) Identifier {
	return Identifier{name: name, value: protocol.ID(name)}
}

// Value returns the 32-bit id sent to the device.
func (i Identifier) Value() uint32 {
	return i.value
}

// Symbolic reports whether i was given by name.
func (i Identifier) Symbolic() bool {
	return i.name != ""
}

func (i Identifier) String() string {
	if i.name != "" {
		return fmt.Sprintf("%s (0x%08x)", i.name, i.value)
	}
	return fmt.Sprintf("0x%08x", i.value)
}

// ParseIdentifier reads a number in Go integer syntax (decimal, 0x, 0o, 0b)
// and falls back to a symbolic name for anything else. A number wider than
// 32 bits is an argument error.
//
// Example:
//
//	session.ParseIdentifier("0xa90f9680") // ID(0xa90f9680)
//	session.ParseIdentifier("kernel")     // Name("kernel"), id 0xec103b08
func ParseIdentifier(s string) (Identifier, error) {
	if s == "" {
		return Identifier{}, &protocol.Error{Op: "parse identifier", Kind: protocol.KindArgument,
			Err: fmt.Errorf("empty identifier")}
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err == nil {
		return ID(uint32(v)), nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return Identifier{}, &protocol.Error{Op: "parse identifier", Kind: protocol.KindArgument,
			Err: fmt.Errorf("identifier %s does not fit in 32 bits", s)}
	}
	return Name(s), nil
}

// ParsePartition parses a partition UUID.
func ParsePartition(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, &protocol.Error{Op: "parse partition", Kind: protocol.KindArgument, Err: err}
	}
	return id, nil
}

// ParseBootTarget parses the argument of a boot selection: "none" in any
// case disables boot and yields uuid.Nil, anything else must be a UUID.
func ParseBootTarget(s string) (uuid.UUID, error) {
	if strings.EqualFold(s, "none") {
		return uuid.Nil, nil
	}
	return ParsePartition(s)
}

package session

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrConfirmationRequired is returned for an irreversible operation when
	// no ConfirmFunc is configured and force is not set.
	ErrConfirmationRequired = errors.New("operation is irreversible: confirmation required")

	// ErrNotConfirmed is returned when the ConfirmFunc declined the operation.
	ErrNotConfirmed = errors.New("operation not confirmed")
)

// PartitionNotFoundError indicates that a partition UUID is not in the device
// partition table. It is wrapped in a protocol.Error of KindNotFound.
type PartitionNotFoundError struct {
	UUID uuid.UUID
}

func (e *PartitionNotFoundError) Error() string {
	return fmt.Sprintf("partition %s not found", e.UUID)
}

// SizeOverflowError indicates that a value does not fit its wire field.
// It is wrapped in a protocol.Error of KindArgument.
type SizeOverflowError struct {
	Field string
	Value uint64
	Max   uint64
}

func (e *SizeOverflowError) Error() string {
	return fmt.Sprintf("%s %d exceeds the maximum of %d", e.Field, e.Value, e.Max)
}

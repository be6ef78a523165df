package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/moffa90/go-punchboot/protocol"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"partition not found",
			&PartitionNotFoundError{UUID: partA},
			"partition " + partA.String() + " not found",
		},
		{
			"size overflow",
			&SizeOverflowError{Field: "block count", Value: 1 << 32, Max: 1<<32 - 1},
			"block count 4294967296 exceeds the maximum of 4294967295",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorsThroughProtocolError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		check    func(error) bool
	}{
		{
			"partition not found",
			&protocol.Error{Op: "resolve partition", Kind: protocol.KindNotFound, Err: &PartitionNotFoundError{UUID: partB}},
			protocol.ErrNotFound,
			func(err error) bool {
				var nf *PartitionNotFoundError
				return errors.As(err, &nf) && nf.UUID == partB
			},
		},
		{
			"size overflow",
			&protocol.Error{Op: "partition erase", Kind: protocol.KindArgument, Err: &SizeOverflowError{Field: "last block", Value: 1 << 40, Max: 1<<32 - 1}},
			protocol.ErrArgument,
			func(err error) bool {
				var so *SizeOverflowError
				return errors.As(err, &so) && so.Value == 1<<40
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("cli: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.sentinel)
			}
			if !tt.check(wrapped) {
				t.Errorf("errors.As failed for %v", wrapped)
			}
			if errors.Is(wrapped, ErrConfirmationRequired) || errors.Is(wrapped, ErrNotConfirmed) {
				t.Errorf("%v matched a confirmation error", wrapped)
			}
		})
	}
}

func TestUnknownPartitionError(t *testing.T) {
	m := NewMockTransport(entry(partA, 0, 15, protocol.PartFlagWritable))
	s := New(m)

	err := s.Erase(context.Background(), partB, nil)
	if !errors.Is(err, protocol.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	var nf *PartitionNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want PartitionNotFoundError", err)
	}
	if nf.UUID != partB {
		t.Errorf("UUID = %s, want %s", nf.UUID, partB)
	}
}

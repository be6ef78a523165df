package session

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/moffa90/go-punchboot/bpak"
	"github.com/moffa90/go-punchboot/protocol"
)

// BootStatus is the active boot partition and the optional device message.
// UUID is uuid.Nil when boot is disabled.
type BootStatus struct {
	UUID    uuid.UUID
	Message string
}

// Enabled reports whether a boot partition is selected.
func (b BootStatus) Enabled() bool {
	return b.UUID != uuid.Nil
}

// SetBootPartition selects the partition the device boots from.
// uuid.Nil disables boot; use ParseBootTarget to accept "none" from users.
func (s *Session) SetBootPartition(ctx context.Context, part uuid.UUID) error {
	if part == uuid.Nil {
		s.logInfo("disabling boot")
	} else {
		s.logInfo("setting boot partition", "partition", part.String())
	}
	return s.do(ctx, protocol.BuildUUIDRequest(protocol.CmdPartActivate, part))
}

// BootStatus reads the active boot partition.
func (s *Session) BootStatus(ctx context.Context) (BootStatus, error) {
	resp, err := s.simple(ctx, protocol.CmdBootStatus)
	if err != nil {
		return BootStatus{}, err
	}
	st, err := protocol.ParseBootStatusResponse(resp.Result)
	if err != nil {
		return BootStatus{}, &protocol.Error{Op: "boot status", Kind: protocol.KindGeneric, Err: err}
	}
	return BootStatus{UUID: st.UUID, Message: st.Message}, nil
}

// Boot boots the device from a partition. On success the device leaves
// the bootloader.
func (s *Session) Boot(ctx context.Context, part uuid.UUID, verbose bool) error {
	s.logInfo("booting partition", "partition", part.String(), "verbose", verbose)
	return s.do(ctx, protocol.BuildBootPartRequest(part, verbose))
}

// BootImage loads a BPAK image into device memory and runs it.
// pretend names the partition the device should treat the image as booted
// from; uuid.Nil for none. The header is validated before anything is sent.
//
// Example:
//
//	image, _ := os.ReadFile("recovery.bpak")
//	err := s.BootImage(ctx, image, uuid.Nil, false)
func (s *Session) BootImage(ctx context.Context, image []byte, pretend uuid.UUID, verbose bool) error {
	hdr, err := bpak.Parse(image)
	if err != nil {
		return &protocol.Error{Op: "boot bpak", Kind: protocol.KindArgument, Err: err}
	}
	if uint64(len(image)) < hdr.ImageSize() {
		return &protocol.Error{Op: "boot bpak", Kind: protocol.KindArgument,
			Err: fmt.Errorf("image truncated: %d bytes, header describes %d", len(image), hdr.ImageSize())}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logInfo("booting image", "bytes", len(image), "parts", len(hdr.Parts), "pretend", pretend.String())
	return s.transport.StreamOut(ctx, bytes.NewReader(image), protocol.Stream{
		Kind:      protocol.StreamImage,
		Partition: pretend,
		Verbose:   verbose,
	})
}

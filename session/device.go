package session

import (
	"context"
	"strings"

	"github.com/moffa90/go-punchboot/protocol"
)

// Reset resets the device. The connection is unusable afterwards.
func (s *Session) Reset(ctx context.Context) error {
	s.logInfo("resetting device")
	_, err := s.simple(ctx, protocol.CmdDeviceReset)
	return err
}

// Identify reads the device UUID and board name. It does not require
// authentication.
func (s *Session) Identify(ctx context.Context) (*protocol.DeviceIdentifier, error) {
	resp, err := s.simple(ctx, protocol.CmdDeviceIdentifierRead)
	if err != nil {
		return nil, err
	}
	id, err := protocol.ParseDeviceIdentifierResponse(resp.Result)
	if err != nil {
		return nil, &protocol.Error{Op: "device identifier read", Kind: protocol.KindGeneric, Err: err}
	}
	return id, nil
}

// Version reads the bootloader version. A leading "v" is removed.
func (s *Session) Version(ctx context.Context) (string, error) {
	resp, err := s.simple(ctx, protocol.CmdBootloaderVersionRead)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(protocol.ParseVersionResponse(resp.Result), "v"), nil
}

// Capabilities reads the device streaming and timing limits.
func (s *Session) Capabilities(ctx context.Context) (*protocol.Capabilities, error) {
	resp, err := s.simple(ctx, protocol.CmdDeviceReadCaps)
	if err != nil {
		return nil, err
	}
	caps, err := protocol.ParseCapabilitiesResponse(resp.Result)
	if err != nil {
		return nil, &protocol.Error{Op: "device read caps", Kind: protocol.KindGeneric, Err: err}
	}
	return caps, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/moffa90/go-punchboot/protocol"
	"github.com/moffa90/go-punchboot/session"
	"github.com/moffa90/go-punchboot/transport"
)

// showDevice prints the bootloader version, the device UUID and the board
// name. The version needs authentication and is skipped without it.
func (a *app) showDevice(s *session.Session) error {
	version, err := s.Version(a.ctx)
	switch {
	case err == nil:
		fmt.Fprintf(a.stdout, "%-20s%s\n", "Bootloader version:", version)
	case !errors.Is(err, protocol.ErrNotAuthenticated):
		return err
	}

	id, err := s.Identify(a.ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%-20s%s\n", "Device UUID:", id.DeviceUUID)
	fmt.Fprintf(a.stdout, "%-20s%s\n", "Board name:", id.BoardID)
	return nil
}

// boardName connects to d and reads its board name. Failures are logged
// and shown as "?".
func (a *app) boardName(d transport.Device) string {
	opts := transport.Options{
		Kind:       transport.USB,
		DeviceUUID: d.UUID,
		Baud:       a.cfg.Transport.Baud,
		Timeout:    a.cfg.Transport.Timeout,
		Logger:     a.logger,
	}

	conn, err := a.open(a.ctx, opts)
	if err != nil {
		a.logger.Debug("could not open device", "device", d.UUID, "error", err)
		return "?"
	}
	s := session.New(conn, session.WithLogger(a.logger))
	defer s.Close()

	id, err := s.Identify(a.ctx)
	if err != nil {
		a.logger.Debug("could not identify device", "device", d.UUID, "error", err)
		return "?"
	}
	return id.BoardID
}

// waitForDevice waits up to timeout for the device to re-enumerate after a
// reset and prints its UUID.
func (a *app) waitForDevice(id uuid.UUID, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(a.ctx, timeout)
	defer cancel()

	a.logger.Info("waiting for device", "device", id.String(), "timeout", timeout)
	d, err := a.waitUSB(ctx, id, transport.DefaultWaitInterval)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s\n", d.UUID)
	return nil
}

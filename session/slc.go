package session

import (
	"context"
	"time"

	"github.com/moffa90/go-punchboot/protocol"
)

// SLCStatus is the security life cycle state together with the key sets.
type SLCStatus struct {
	State   protocol.SLC
	Active  []uint32
	Revoked []uint32
}

// Configure moves the device to SLC Configuration.
// Irreversible; see confirmation rules on RevokeKey.
func (s *Session) Configure(ctx context.Context, force bool) error {
	return s.transition(ctx, "slc configure", protocol.CmdSLCSetConfiguration, force)
}

// Lock moves the device to SLC Configuration Locked. Irreversible.
func (s *Session) Lock(ctx context.Context, force bool) error {
	return s.transition(ctx, "slc lock", protocol.CmdSLCSetConfigurationLock, force)
}

// EndOfLife moves the device to SLC EOL. Irreversible.
func (s *Session) EndOfLife(ctx context.Context, force bool) error {
	return s.transition(ctx, "slc eol", protocol.CmdSLCSetEOL, force)
}

// RevokeKey revokes key. Irreversible.
//
// Unless force is set, the configured ConfirmFunc must approve the operation;
// without a ConfirmFunc the call fails with ErrConfirmationRequired. The
// device decides whether the key can be revoked: revoking a key that is
// already revoked returns whatever the device reports.
func (s *Session) RevokeKey(ctx context.Context, key Identifier, force bool) error {
	if err := s.confirm("slc revoke key "+key.String(), force); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.command(ctx, protocol.BuildRevokeKeyRequest(key.Value()))
	s.audit(AuditEvent{Action: "slc revoke key", Key: key.Value(), Time: time.Now(), Err: err})
	return err
}

func (s *Session) transition(ctx context.Context, action string, cmd protocol.Command, force bool) error {
	if err := s.confirm(action, force); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.command(ctx, protocol.BuildSimpleRequest(cmd))
	s.audit(AuditEvent{Action: action, Time: time.Now(), Err: err})
	return err
}

func (s *Session) confirm(action string, force bool) error {
	if force {
		return nil
	}
	if s.config.Confirm == nil {
		return ErrConfirmationRequired
	}
	ok, err := s.config.Confirm(action)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotConfirmed
	}
	return nil
}

func (s *Session) audit(ev AuditEvent) {
	if ev.Err != nil {
		s.logError("irreversible operation failed", "action", ev.Action, "error", ev.Err)
	} else {
		s.logInfo("irreversible operation done", "action", ev.Action)
	}
	if s.config.Audit != nil {
		s.config.Audit(ev)
	}
}

// SLCStatus reads the life cycle state and both key sets in one exchange.
func (s *Session) SLCStatus(ctx context.Context) (*SLCStatus, error) {
	resp, err := s.simple(ctx, protocol.CmdSLCRead)
	if err != nil {
		return nil, err
	}
	state, keys, err := protocol.ParseSLCResponse(resp.Result, resp.Data)
	if err != nil {
		return nil, &protocol.Error{Op: "slc read", Kind: protocol.KindGeneric, Err: err}
	}
	return &SLCStatus{
		State:   state,
		Active:  keys.ActiveKeys(),
		Revoked: keys.RevokedKeys(),
	}, nil
}

// Lifecycle reads the security life cycle state.
func (s *Session) Lifecycle(ctx context.Context) (protocol.SLC, error) {
	st, err := s.SLCStatus(ctx)
	if err != nil {
		return protocol.SLCInvalid, err
	}
	return st.State, nil
}

// ActiveKeys reads the ids of the keys that can authenticate boot images.
func (s *Session) ActiveKeys(ctx context.Context) ([]uint32, error) {
	st, err := s.SLCStatus(ctx)
	if err != nil {
		return nil, err
	}
	return st.Active, nil
}

// RevokedKeys reads the ids of the revoked keys.
func (s *Session) RevokedKeys(ctx context.Context) ([]uint32, error) {
	st, err := s.SLCStatus(ctx)
	if err != nil {
		return nil, err
	}
	return st.Revoked, nil
}

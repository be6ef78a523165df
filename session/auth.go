package session

import (
	"context"

	"github.com/moffa90/go-punchboot/protocol"
)

// Authenticate authenticates the connection with a password.
// A wrong password fails with protocol.ErrAuthentication.
func (s *Session) Authenticate(ctx context.Context, password string) error {
	req, err := protocol.BuildAuthenticateRequest(protocol.AuthPassword, 0, []byte(password))
	if err != nil {
		return &protocol.Error{Op: "authenticate", Kind: protocol.KindArgument, Err: err}
	}
	if err := s.do(ctx, req); err != nil {
		return err
	}
	s.logInfo("authenticated", "method", "password")
	return nil
}

// SetPassword sets the device password. The device requires an
// authenticated connection.
func (s *Session) SetPassword(ctx context.Context, password string) error {
	req, err := protocol.BuildSetPasswordRequest(password)
	if err != nil {
		return &protocol.Error{Op: "auth set password", Kind: protocol.KindArgument, Err: err}
	}
	return s.do(ctx, req)
}

// AuthenticateToken authenticates the connection with a token signed by key.
// A revoked key fails with protocol.ErrKeyRevoked.
//
// Example:
//
//	token, _ := os.ReadFile("device.token")
//	err := s.AuthenticateToken(ctx, token, session.Name("pb-development"))
func (s *Session) AuthenticateToken(ctx context.Context, token []byte, key Identifier) error {
	req, err := protocol.BuildAuthenticateRequest(protocol.AuthAsymToken, key.Value(), token)
	if err != nil {
		return &protocol.Error{Op: "authenticate", Kind: protocol.KindArgument, Err: err}
	}
	if err := s.do(ctx, req); err != nil {
		return err
	}
	s.logInfo("authenticated", "method", "token", "key", key.String())
	return nil
}

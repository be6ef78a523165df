package session

import (
	"context"
	"strings"

	"github.com/moffa90/go-punchboot/protocol"
)

// RunCommand runs a board specific command and returns its response.
// Commands the board does not implement fail with protocol.ErrNotSupported.
//
// Example:
//
//	out, err := s.RunCommand(ctx, session.Name("read-otp"), nil)
func (s *Session) RunCommand(ctx context.Context, cmd Identifier, args []byte) ([]byte, error) {
	req, err := protocol.BuildBoardCommandRequest(cmd.Value(), args)
	if err != nil {
		return nil, &protocol.Error{Op: "board command", Kind: protocol.KindArgument, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.command(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ReadStatus reads the board status text with surrounding whitespace removed.
func (s *Session) ReadStatus(ctx context.Context) (string, error) {
	resp, err := s.simple(ctx, protocol.CmdBoardStatusRead)
	if err != nil {
		return "", err
	}
	return strings.Trim(string(resp.Data), " \t\r\n\x00"), nil
}

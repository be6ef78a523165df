package session

import (
	"context"
	"io"
	"sync"

	"github.com/moffa90/go-punchboot/protocol"
)

// Transport carries requests to one punchboot device.
// transport.Conn implements it.
type Transport interface {
	// Command performs one request/response exchange
	Command(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

	// StreamOut pushes src to the device
	StreamOut(ctx context.Context, src io.Reader, s protocol.Stream) error

	// StreamIn pulls data from the device into dst
	StreamIn(ctx context.Context, dst io.Writer, s protocol.Stream) error

	// Close releases the connection
	Close() error
}

// Session orchestrates punchboot operations on a single device.
// The device is the source of truth: nothing read from it is cached between calls.
//
// Session is safe for concurrent use; requests are issued one at a time.
type Session struct {
	mu        sync.Mutex
	transport Transport
	config    Config
}

// New creates a new Session bound to t. The session owns t and closes it in Close.
//
// Example:
//
//	conn, err := transport.Open(ctx, transport.Options{Kind: transport.Socket, SocketPath: "/tmp/pb.sock"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	s := session.New(conn, session.WithLogger(slog.Default()))
//	defer s.Close()
func New(t Transport, opts ...Option) *Session {
	if t == nil {
		panic("transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Session{
		transport: t,
		config:    cfg,
	}
}

// Close closes the underlying transport.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport.Close()
}

// command issues req. The caller holds s.mu.
func (s *Session) command(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	s.logDebug("command", "cmd", req.Command.String())
	resp, err := s.transport.Command(ctx, req)
	if err != nil {
		s.logDebug("command failed", "cmd", req.Command.String(), "error", err)
		return nil, err
	}
	return resp, nil
}

// simple issues an argument-less command under the session lock.
func (s *Session) simple(ctx context.Context, cmd protocol.Command) (*protocol.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.command(ctx, protocol.BuildSimpleRequest(cmd))
}

// do issues req under the session lock, discarding the response.
func (s *Session) do(ctx context.Context, req *protocol.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.command(ctx, req)
	return err
}

func (s *Session) logDebug(msg string, keysAndValues ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (s *Session) logInfo(msg string, keysAndValues ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Info(msg, keysAndValues...)
	}
}

func (s *Session) logError(msg string, keysAndValues ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Error(msg, keysAndValues...)
	}
}

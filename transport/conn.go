package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/moffa90/go-punchboot/protocol"
)

// DefaultTimeout applies to every frame and data phase when no context
// deadline is shorter.
const DefaultTimeout = 5 * time.Second

// deadliner is implemented by links that support I/O deadlines
// (net.Conn and the serial link).
type deadliner interface {
	SetDeadline(t time.Time) error
}

// Conn speaks the punchboot wire protocol over a byte stream link.
// Conn is not safe for concurrent use; the session serialises requests.
type Conn struct {
	link    io.ReadWriteCloser
	timeout time.Duration
	logger  *slog.Logger

	caps *protocol.Capabilities

	// cur is the context of the exchange in progress, consulted by the
	// deadline logic.
	cur context.Context
}

// NewConn wraps an already connected link.
// timeout <= 0 selects DefaultTimeout. logger may be nil.
func NewConn(link io.ReadWriteCloser, timeout time.Duration, logger *slog.Logger) *Conn {
	if link == nil {
		panic("link cannot be nil")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Conn{link: link, timeout: timeout, logger: logger}
}

// Close closes the underlying link.
func (c *Conn) Close() error {
	return c.link.Close()
}

// begin starts an exchange bound to ctx. The returned function must be
// called when the exchange ends.
func (c *Conn) begin(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError("exchange", ctx)
	}
	c.cur = ctx

	stop := func() bool { return false }
	if d, ok := c.link.(deadliner); ok {
		// Unblock pending I/O as soon as the context ends.
		stop = context.AfterFunc(ctx, func() {
			_ = d.SetDeadline(time.Now())
		})
	}
	return func() {
		stop()
		c.cur = nil
	}, nil
}

// arm sets the deadline for the next I/O: the configured timeout or the
// context deadline, whichever comes first.
func (c *Conn) arm() {
	d, ok := c.link.(deadliner)
	if !ok {
		return
	}
	deadline := time.Now().Add(c.timeout)
	if c.cur != nil {
		if ctxDeadline, ok := c.cur.Deadline(); ok && ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
	}
	_ = d.SetDeadline(deadline)
}

func (c *Conn) write(op string, b []byte) error {
	c.arm()
	if _, err := c.link.Write(b); err != nil {
		return c.ioError(op, err)
	}
	return nil
}

func (c *Conn) read(op string, b []byte) error {
	c.arm()
	if _, err := io.ReadFull(c.link, b); err != nil {
		return c.ioError(op, err)
	}
	return nil
}

// ioError classifies a link failure.
func (c *Conn) ioError(op string, err error) error {
	if c.cur != nil && c.cur.Err() != nil {
		return contextError(op, c.cur)
	}
	var te interface{ Timeout() bool }
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &te) && te.Timeout()) {
		return &protocol.Error{Op: op, Kind: protocol.KindTimeout, Err: err}
	}
	return &protocol.Error{Op: op, Kind: protocol.KindIO, Err: err}
}

func contextError(op string, ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &protocol.Error{Op: op, Kind: protocol.KindTimeout, Err: ctx.Err()}
	}
	return fmt.Errorf("%s: %w", op, ctx.Err())
}

// sendCommand writes a command frame.
func (c *Conn) sendCommand(cmd protocol.Command, args []byte) error {
	frame, err := protocol.EncodeCommand(cmd, args)
	if err != nil {
		return &protocol.Error{Op: cmd.String(), Kind: protocol.KindArgument, Err: err}
	}
	c.logger.Debug("command", "cmd", cmd.String(), "args", len(args))
	return c.write(cmd.String(), frame)
}

// readResult reads a result frame and converts its code into an error.
// The response area is returned even when the code reports a failure.
func (c *Conn) readResult(op string) ([]byte, error) {
	frame := make([]byte, protocol.FrameSize)
	if err := c.read(op, frame); err != nil {
		return nil, err
	}
	code, response, err := protocol.DecodeResult(frame)
	if err != nil {
		return nil, &protocol.Error{Op: op, Kind: protocol.KindGeneric, Err: err}
	}
	if code != 0 {
		c.logger.Debug("result", "op", op, "code", code)
	}
	return response, protocol.ResultError(op, code)
}

// Command performs one request/response exchange described by req.
//
// Example:
//
//	resp, err := conn.Command(ctx, protocol.BuildSimpleRequest(protocol.CmdPartTableRead))
//	entries, err := protocol.ParsePartitionTable(resp.Data)
func (c *Conn) Command(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	end, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer end()

	return c.exchange(req)
}

func (c *Conn) exchange(req *protocol.Request) (*protocol.Response, error) {
	op := req.Command.String()

	if err := c.sendCommand(req.Command, req.Args); err != nil {
		return nil, err
	}
	result, err := c.readResult(op)
	if err != nil {
		return nil, err
	}
	resp := &protocol.Response{Result: result}

	if len(req.Payload) > 0 {
		payload := req.Payload
		if req.PayloadSize > len(payload) {
			payload = make([]byte, req.PayloadSize)
			copy(payload, req.Payload)
		}
		if err := c.write(op, payload); err != nil {
			return nil, err
		}
		last, err := c.readResult(op)
		if err != nil {
			return nil, err
		}
		// Sized replies describe themselves in the latest result.
		result = last
	}

	switch req.Reply {
	case protocol.ReplyNone:
		return resp, nil

	case protocol.ReplyFixed:
		resp.Data, err = c.readData(op, req.ReplySize)
		return resp, err

	case protocol.ReplyPartitionTable:
		if len(result) < 1 {
			return nil, &protocol.Error{Op: op, Kind: protocol.KindGeneric, Err: errors.New("missing entry count")}
		}
		resp.Data, err = c.readData(op, int(result[0])*protocol.PartitionEntrySize)
		return resp, err

	case protocol.ReplySized, protocol.ReplySizedIfAny:
		size, err := protocol.ParseSizeResponse(result)
		if err != nil {
			return nil, &protocol.Error{Op: op, Kind: protocol.KindGeneric, Err: err}
		}
		if req.ReplySize > 0 && int(size) > req.ReplySize {
			return nil, &protocol.Error{Op: op, Kind: protocol.KindNoMemory,
				Err: fmt.Errorf("reply of %d bytes exceeds %d", size, req.ReplySize)}
		}
		if size == 0 && req.Reply == protocol.ReplySizedIfAny {
			resp.Data = []byte{}
			return resp, nil
		}
		resp.Data, err = c.readData(op, int(size))
		return resp, err

	default:
		return nil, &protocol.Error{Op: op, Kind: protocol.KindArgument, Err: fmt.Errorf("unknown reply kind %d", req.Reply)}
	}
}

// readData reads an n byte data phase followed by its result.
func (c *Conn) readData(op string, n int) ([]byte, error) {
	data := make([]byte, n)
	if err := c.read(op, data); err != nil {
		return nil, err
	}
	if _, err := c.readResult(op); err != nil {
		return nil, err
	}
	return data, nil
}

// capabilities returns the device capabilities. They are read once per
// connection; failures are not cached.
func (c *Conn) capabilities() (*protocol.Capabilities, error) {
	if c.caps != nil {
		return c.caps, nil
	}
	resp, err := c.exchange(protocol.BuildSimpleRequest(protocol.CmdDeviceReadCaps))
	if err != nil {
		return nil, err
	}
	caps, err := protocol.ParseCapabilitiesResponse(resp.Result)
	if err != nil {
		return nil, &protocol.Error{Op: "read caps", Kind: protocol.KindGeneric, Err: err}
	}
	c.caps = caps
	return caps, nil
}

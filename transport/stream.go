package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/moffa90/go-punchboot/bpak"
	"github.com/moffa90/go-punchboot/protocol"
)

// StreamOut moves src to the device.
//
// For StreamPartition the data is written to the partition through the device
// stream buffers. If src starts with a valid BPAK header, the header is
// placed in the last HeaderSize bytes of the partition and the remaining data
// from offset zero. The stream is always finalized, even on failure.
//
// For StreamImage src must be a BPAK image; it is booted from RAM.
func (c *Conn) StreamOut(ctx context.Context, src io.Reader, s protocol.Stream) error {
	end, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer end()

	switch s.Kind {
	case protocol.StreamPartition:
		return c.writePartition(src, s)
	case protocol.StreamImage:
		return c.bootImage(src, s)
	default:
		return &protocol.Error{Op: "stream out", Kind: protocol.KindArgument, Err: fmt.Errorf("unknown stream kind %d", s.Kind)}
	}
}

// StreamIn reads s.Size bytes of partition s.Partition into dst.
// The stream is always finalized, even on failure.
func (c *Conn) StreamIn(ctx context.Context, dst io.Writer, s protocol.Stream) error {
	end, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer end()

	if s.Kind != protocol.StreamPartition {
		return &protocol.Error{Op: "stream in", Kind: protocol.KindArgument, Err: fmt.Errorf("unsupported stream kind %d", s.Kind)}
	}
	return c.readPartition(dst, s)
}

// bufferRing hands out device stream buffer ids in rotation.
type bufferRing struct {
	next  uint8
	count uint8
}

func (r *bufferRing) take() uint8 {
	id := r.next
	r.next = uint8((int(r.next) + 1) % int(r.count))
	return id
}

func (c *Conn) openStream(part uuid.UUID) error {
	_, err := c.exchange(protocol.BuildUUIDRequest(protocol.CmdStreamInitialize, part))
	return err
}

// finalize closes the device stream. A finalize failure is reported only
// when the transfer itself succeeded.
func (c *Conn) finalize(err *error) {
	_, ferr := c.exchange(protocol.BuildSimpleRequest(protocol.CmdStreamFinalize))
	if *err == nil && ferr != nil {
		*err = ferr
	}
}

func (c *Conn) writeChunk(ring *bufferRing, offset uint64, chunk []byte) error {
	id := ring.take()
	if _, err := c.exchange(protocol.BuildPrepareBufferRequest(id, chunk)); err != nil {
		return err
	}
	req, err := protocol.BuildBufferTransferRequest(protocol.CmdStreamWriteBuffer, id, offset, uint32(len(chunk)))
	if err != nil {
		return err
	}
	_, err = c.exchange(req)
	return err
}

func (c *Conn) writePartition(src io.Reader, s protocol.Stream) (err error) {
	caps, err := c.capabilities()
	if err != nil {
		return err
	}
	if err := c.openStream(s.Partition); err != nil {
		return err
	}
	defer c.finalize(&err)

	ring := &bufferRing{count: caps.StreamBuffers}

	header := make([]byte, bpak.HeaderSize)
	n, rerr := io.ReadFull(src, header)
	if rerr != nil && !errors.Is(rerr, io.EOF) && !errors.Is(rerr, io.ErrUnexpectedEOF) {
		return c.ioError("read input", rerr)
	}
	header = header[:n]

	if n == bpak.HeaderSize && bpak.Valid(header) {
		if s.Size < bpak.HeaderSize {
			return &protocol.Error{Op: "write bpak header", Kind: protocol.KindArgument,
				Err: fmt.Errorf("partition of %d bytes cannot hold a bpak header", s.Size)}
		}
		c.logger.Debug("bpak header detected", "offset", s.Size-bpak.HeaderSize)
		if err := c.writeChunk(ring, s.Size-bpak.HeaderSize, header); err != nil {
			return err
		}
		header = nil
	}

	src = io.MultiReader(bytes.NewReader(header), src)
	chunk := make([]byte, caps.ChunkTransferMax)
	var offset uint64
	for {
		n, rerr := io.ReadFull(src, chunk)
		if n > 0 {
			if err := c.writeChunk(ring, offset, chunk[:n]); err != nil {
				return err
			}
			offset += uint64(n)
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return c.ioError("read input", rerr)
		}
	}

	c.logger.Debug("partition written", "bytes", offset)
	return nil
}

func (c *Conn) readPartition(dst io.Writer, s protocol.Stream) (err error) {
	caps, err := c.capabilities()
	if err != nil {
		return err
	}
	if err := c.openStream(s.Partition); err != nil {
		return err
	}
	defer c.finalize(&err)

	ring := &bufferRing{count: caps.StreamBuffers}
	var offset uint64
	for left := s.Size; left > 0; {
		n := uint64(caps.ChunkTransferMax)
		if left < n {
			n = left
		}
		req, err := protocol.BuildBufferTransferRequest(protocol.CmdStreamReadBuffer, ring.take(), offset, uint32(n))
		if err != nil {
			return err
		}
		resp, err := c.exchange(req)
		if err != nil {
			return err
		}
		if _, err := dst.Write(resp.Data); err != nil {
			return &protocol.Error{Op: "write output", Kind: protocol.KindIO, Err: err}
		}
		offset += n
		left -= n
	}
	return nil
}

// bootImage sends a BPAK image for booting from RAM: command, header, then
// every part in ChunkTransferMax sized writes, each part acknowledged by a
// result.
func (c *Conn) bootImage(src io.Reader, s protocol.Stream) error {
	const op = "boot bpak"

	caps, err := c.capabilities()
	if err != nil {
		return err
	}

	raw := make([]byte, bpak.HeaderSize)
	if _, err := io.ReadFull(src, raw); err != nil {
		return &protocol.Error{Op: op, Kind: protocol.KindArgument, Err: fmt.Errorf("short image: %w", err)}
	}
	header, err := bpak.Parse(raw)
	if err != nil {
		return &protocol.Error{Op: op, Kind: protocol.KindArgument, Err: err}
	}

	if err := c.sendCommand(protocol.CmdBootBPAK, protocol.BuildBootBPAKArgs(s.Partition, s.Verbose)); err != nil {
		return err
	}
	if _, err := c.readResult(op); err != nil {
		return err
	}
	if err := c.write(op, raw); err != nil {
		return err
	}
	if _, err := c.readResult(op); err != nil {
		return err
	}

	chunk := make([]byte, caps.ChunkTransferMax)
	for _, p := range header.Parts {
		for left := p.StoredSize(); left > 0; {
			n := uint64(len(chunk))
			if left < n {
				n = left
			}
			if _, err := io.ReadFull(src, chunk[:n]); err != nil {
				return &protocol.Error{Op: op, Kind: protocol.KindArgument,
					Err: fmt.Errorf("image truncated in part 0x%08x: %w", p.ID, err)}
			}
			if err := c.write(op, chunk[:n]); err != nil {
				return err
			}
			left -= n
		}
		if _, err := c.readResult(op); err != nil {
			return err
		}
		c.logger.Debug("part sent", "id", fmt.Sprintf("0x%08x", p.ID), "bytes", p.StoredSize())
	}

	_, err = c.readResult(op)
	return err
}

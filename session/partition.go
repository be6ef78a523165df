package session

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"

	"github.com/moffa90/go-punchboot/bpak"
	"github.com/moffa90/go-punchboot/protocol"
)

// PartitionFlags is the partition flag set reported by the device.
type PartitionFlags uint8

// Partition flags.
const (
	FlagBootable         PartitionFlags = protocol.PartFlagBootable
	FlagOTP              PartitionFlags = protocol.PartFlagOTP
	FlagWritable         PartitionFlags = protocol.PartFlagWritable
	FlagEraseBeforeWrite PartitionFlags = protocol.PartFlagEraseBeforeWrite
	FlagReadable         PartitionFlags = protocol.PartFlagReadable
)

var flagLetters = [8]byte{'B', 'o', 'W', 'E', 'R', '?', '?', '?'}

// String renders the flags as eight letters in bit order, "-" for unset bits:
// B bootable, o OTP, W writable, E erase before write, R readable.
func (f PartitionFlags) String() string {
	known := [8]bool{
		f&FlagBootable != 0,
		f&FlagOTP != 0,
		f&FlagWritable != 0,
		f&FlagEraseBeforeWrite != 0,
		f&FlagReadable != 0,
	}
	b := make([]byte, len(flagLetters))
	for i, set := range known {
		b[i] = '-'
		if set {
			b[i] = flagLetters[i]
		}
	}
	return string(b)
}

// Partition is a snapshot of one partition table entry.
type Partition struct {
	UUID        uuid.UUID
	Description string
	FirstBlock  uint64
	LastBlock   uint64
	BlockSize   uint32
	Flags       PartitionFlags
}

func partitionFromEntry(e protocol.PartitionEntry) Partition {
	return Partition{
		UUID:        e.UUID,
		Description: e.Description,
		FirstBlock:  e.FirstBlock,
		LastBlock:   e.LastBlock,
		BlockSize:   uint32(e.BlockSize),
		Flags:       PartitionFlags(e.Flags),
	}
}

// Blocks returns the number of blocks in the partition.
func (p Partition) Blocks() uint64 {
	return p.LastBlock - p.FirstBlock + 1
}

// Size returns the partition size in bytes.
func (p Partition) Size() uint64 {
	return p.Blocks() * uint64(p.BlockSize)
}

func (p Partition) Bootable() bool         { return p.Flags&FlagBootable != 0 }
func (p Partition) OTP() bool              { return p.Flags&FlagOTP != 0 }
func (p Partition) Writable() bool         { return p.Flags&FlagWritable != 0 }
func (p Partition) EraseBeforeWrite() bool { return p.Flags&FlagEraseBeforeWrite != 0 }
func (p Partition) Readable() bool         { return p.Flags&FlagReadable != 0 }

// FilterBootable returns the bootable partitions, in order.
func FilterBootable(parts []Partition) []Partition {
	return filter(parts, Partition.Bootable)
}

// FilterWritable returns the writable partitions, in order.
func FilterWritable(parts []Partition) []Partition {
	return filter(parts, Partition.Writable)
}

// FilterReadable returns the readable partitions, in order.
func FilterReadable(parts []Partition) []Partition {
	return filter(parts, Partition.Readable)
}

func filter(parts []Partition, keep func(Partition) bool) []Partition {
	out := make([]Partition, 0, len(parts))
	for _, p := range parts {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// ListPartitions reads the partition table. Partitions are returned in device order.
func (s *Session) ListPartitions(ctx context.Context) ([]Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listPartitions(ctx)
}

func (s *Session) listPartitions(ctx context.Context) ([]Partition, error) {
	resp, err := s.command(ctx, protocol.BuildSimpleRequest(protocol.CmdPartTableRead))
	if err != nil {
		return nil, err
	}
	entries, err := protocol.ParsePartitionTable(resp.Data)
	if err != nil {
		return nil, &protocol.Error{Op: "partition table read", Kind: protocol.KindGeneric, Err: err}
	}

	parts := make([]Partition, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, partitionFromEntry(e))
	}
	return parts, nil
}

// partition resolves id against a fresh copy of the partition table.
// The caller holds s.mu.
func (s *Session) partition(ctx context.Context, id uuid.UUID) (Partition, error) {
	parts, err := s.listPartitions(ctx)
	if err != nil {
		return Partition{}, err
	}
	for _, p := range parts {
		if p.UUID == id {
			return p, nil
		}
	}
	return Partition{}, &protocol.Error{
		Op:   "resolve partition",
		Kind: protocol.KindNotFound,
		Err:  &PartitionNotFoundError{UUID: id},
	}
}

// InstallPartitionTable installs a partition table built into the bootloader.
// table identifies the target device; boards with several table layouts
// select one with variant.
func (s *Session) InstallPartitionTable(ctx context.Context, table uuid.UUID, variant uint8) error {
	s.logInfo("installing partition table", "uuid", table.String(), "variant", variant)
	return s.do(ctx, protocol.BuildInstallTableRequest(table, variant))
}

// ReadPartitionHeader reads the BPAK header stored on a partition.
func (s *Session) ReadPartitionHeader(ctx context.Context, part uuid.UUID) (*bpak.Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.command(ctx, protocol.BuildUUIDRequest(protocol.CmdPartBPAKRead, part))
	if err != nil {
		return nil, err
	}
	hdr, err := bpak.Parse(resp.Data)
	if err != nil {
		return nil, &protocol.Error{Op: "partition bpak read", Kind: protocol.KindGeneric, Err: err}
	}
	return hdr, nil
}

// Verify asks the device to compare the partition contents with src.
// src is hashed with SHA-256 in a single pass; the first bpak.HeaderSize bytes
// are also checked for a BPAK header magic, which tells the device where the
// header is stored.
//
// Example:
//
//	f, _ := os.Open("rootfs.bpak")
//	defer f.Close()
//	if err := s.Verify(ctx, f, part); errors.Is(err, protocol.ErrPartVerify) {
//	    // contents differ
//	}
func (s *Session) Verify(ctx context.Context, src io.Reader, part uuid.UUID) error {
	digest, size, isBPAK, err := s.digest(src)
	if err != nil {
		return err
	}
	if size > math.MaxUint32 {
		return &protocol.Error{Op: "partition verify", Kind: protocol.KindArgument,
			Err: &SizeOverflowError{Field: "verify length", Value: size, Max: math.MaxUint32}}
	}

	s.logDebug("verify", "partition", part.String(), "bytes", size, "bpak", isBPAK)
	return s.do(ctx, protocol.BuildVerifyRequest(part, digest, uint32(size), isBPAK))
}

// digest hashes src and reports whether its first bytes carry a BPAK magic.
func (s *Session) digest(src io.Reader) ([32]byte, uint64, bool, error) {
	h := sha256.New()

	first := make([]byte, bpak.HeaderSize)
	n, err := io.ReadFull(src, first)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return [32]byte{}, 0, false, fmt.Errorf("read verify input: %w", err)
	}
	first = first[:n]
	h.Write(first)
	isBPAK := bpak.HasMagic(first)

	rest, err := io.CopyBuffer(h, src, make([]byte, s.config.HashChunkSize))
	if err != nil {
		return [32]byte{}, 0, false, fmt.Errorf("read verify input: %w", err)
	}

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, uint64(n) + uint64(rest), isBPAK, nil
}

// Write streams src into a partition. The device decides whether the
// partition accepts writes.
func (s *Session) Write(ctx context.Context, src io.Reader, part uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.partition(ctx, part)
	if err != nil {
		return err
	}

	s.logInfo("writing partition", "partition", p.UUID.String(), "size", p.Size())
	return s.transport.StreamOut(ctx, src, protocol.Stream{
		Kind:      protocol.StreamPartition,
		Partition: p.UUID,
		Size:      p.Size(),
	})
}

// Read streams the full contents of a partition into dst.
func (s *Session) Read(ctx context.Context, dst io.Writer, part uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.partition(ctx, part)
	if err != nil {
		return err
	}

	s.logInfo("reading partition", "partition", p.UUID.String(), "size", p.Size())
	return s.transport.StreamIn(ctx, dst, protocol.Stream{
		Kind:      protocol.StreamPartition,
		Partition: p.UUID,
		Size:      p.Size(),
	})
}

// Erase erases a partition in groups of at most Config.EraseChunkBlocks blocks.
//
// progress, if not nil, is called with the remaining block count before each
// device call and once with zero after the last one. The first chunk error
// aborts the erase; blocks erased so far stay erased. Cancelling ctx stops the
// erase before the next chunk.
//
// Example:
//
//	err := s.Erase(ctx, part, func(total, remaining uint64) {
//	    fmt.Printf("\rErasing %d/%d", total-remaining, total)
//	})
func (s *Session) Erase(ctx context.Context, part uuid.UUID, progress ProgressFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.partition(ctx, part)
	if err != nil {
		return err
	}

	total := p.Blocks()
	remaining := total
	offset := p.FirstBlock
	chunk := uint64(s.config.EraseChunkBlocks)

	if p.LastBlock > math.MaxUint32 {
		return &protocol.Error{Op: "partition erase", Kind: protocol.KindArgument,
			Err: &SizeOverflowError{Field: "erase block", Value: p.LastBlock, Max: math.MaxUint32}}
	}

	s.logInfo("erasing partition", "partition", p.UUID.String(), "blocks", total)

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}

		count := min(chunk, remaining)
		if progress != nil {
			progress(total, remaining)
		}

		req := protocol.BuildEraseRequest(p.UUID, uint32(offset), uint32(count))
		if _, err := s.command(ctx, req); err != nil {
			s.logError("erase failed", "partition", p.UUID.String(), "block", offset, "count", count, "error", err)
			return err
		}

		offset += count
		remaining -= count
	}

	if progress != nil {
		progress(total, 0)
	}
	return nil
}

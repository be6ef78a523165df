package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Reply selects how the data phase following a command result is read.
type Reply uint8

const (
	// ReplyNone: the exchange ends with the first (or payload) result.
	ReplyNone Reply = iota

	// ReplySized: the result carries a little-endian u32 size; that many
	// bytes follow, then a final result. ReplySize caps the accepted size.
	ReplySized

	// ReplySizedIfAny: as ReplySized, but no data and no final result are
	// sent when the size is zero.
	ReplySizedIfAny

	// ReplyPartitionTable: the result carries the number of entries;
	// entries*PartitionEntrySize bytes follow, then a final result.
	ReplyPartitionTable

	// ReplyFixed: exactly ReplySize bytes follow, then a final result.
	ReplyFixed
)

// Request describes one command exchange.
//
// The exchange is:
//
//	COMMAND -> RESULT [-> PAYLOAD -> RESULT] [-> DATA <- RESULT]
//
// The first result is always checked; any non-zero result code ends the exchange.
type Request struct {
	// Command is the command code
	Command Command

	// Args is embedded in the command frame request area (at most MaxRequestSize bytes)
	Args []byte

	// Payload is sent after the first result when non-empty
	Payload []byte

	// PayloadSize pads Payload with zeros to this size when larger than len(Payload)
	PayloadSize int

	// Reply selects the trailing data phase
	Reply Reply

	// ReplySize is the exact size for ReplyFixed and the upper bound for ReplySized
	ReplySize int
}

// Response holds what the device returned for a Request.
type Response struct {
	// Result is the response area of the first result frame
	Result []byte

	// Data is the trailing data phase, if any
	Data []byte
}

// StreamKind selects the transfer performed by a stream operation.
type StreamKind uint8

const (
	// StreamPartition moves partition contents through the device stream buffers
	StreamPartition StreamKind = iota

	// StreamImage sends a BPAK image to be booted from RAM
	StreamImage
)

// Stream parameterises a streamed transfer.
type Stream struct {
	Kind StreamKind

	// Partition is the target partition (StreamPartition) or the partition
	// the image pretends to be booted from (StreamImage, may be uuid.Nil)
	Partition uuid.UUID

	// Size is the partition size in bytes (StreamPartition only)
	Size uint64

	// Verbose asks the device for a verbose boot (StreamImage only)
	Verbose bool
}

// argsBuffer returns a zeroed buffer of n bytes for a command request area.
func argsBuffer(n int) []byte {
	return make([]byte, n)
}

// BuildSimpleRequest constructs a request that carries no arguments.
// Used by reset, identifier, caps, SLC transitions, version, table read,
// stream finalize, board status and boot status.
func BuildSimpleRequest(cmd Command) *Request {
	req := &Request{Command: cmd}
	switch cmd {
	case CmdPartTableRead:
		req.Reply = ReplyPartitionTable
	case CmdSLCRead:
		req.Reply = ReplyFixed
		req.ReplySize = KeyStatusSize
	case CmdBoardStatusRead:
		req.Reply = ReplySized
		req.ReplySize = BoardStatusBufferSize
	}
	return req
}

// BuildAuthenticateRequest constructs an Authenticate request.
// The data is sent as a separate phase, zero padded to AuthDataSize bytes.
//
// Args structure:
//
//	[METHOD(1)][SIZE(2)][KEY_ID(4)]
func BuildAuthenticateRequest(method uint8, keyID uint32, data []byte) (*Request, error) {
	if len(data) > AuthDataSize {
		return nil, fmt.Errorf("authentication data too large: %d bytes, maximum is %d", len(data), AuthDataSize)
	}

	args := argsBuffer(32)
	args[0] = method
	binary.LittleEndian.PutUint16(args[1:3], uint16(len(data)))
	binary.LittleEndian.PutUint32(args[3:7], keyID)

	req := &Request{Command: CmdAuthenticate, Args: args}
	if len(data) > 0 {
		req.Payload = data
		req.PayloadSize = AuthDataSize
	}
	return req, nil
}

// BuildSetPasswordRequest constructs an Auth Set Password request.
// The password is embedded in the command frame.
func BuildSetPasswordRequest(password string) (*Request, error) {
	if len(password) > MaxRequestSize {
		return nil, fmt.Errorf("password too long: %d bytes, maximum is %d", len(password), MaxRequestSize)
	}
	return &Request{Command: CmdAuthSetPassword, Args: []byte(password)}, nil
}

// BuildUUIDRequest constructs a request whose only argument is a UUID.
// Used by stream initialize, partition activate and partition BPAK read.
func BuildUUIDRequest(cmd Command, id uuid.UUID) *Request {
	args := argsBuffer(32)
	copy(args, id[:])

	req := &Request{Command: cmd, Args: args}
	if cmd == CmdPartBPAKRead {
		req.Reply = ReplyFixed
		req.ReplySize = BPAKHeaderSize
	}
	return req
}

// BuildInstallTableRequest constructs a Partition Table Install request.
//
// Args structure:
//
//	[UUID(16)][VARIANT(1)]
func BuildInstallTableRequest(table uuid.UUID, variant uint8) *Request {
	args := argsBuffer(17)
	copy(args, table[:])
	args[16] = variant
	return &Request{Command: CmdPartTableInstall, Args: args}
}

// BuildVerifyRequest constructs a Partition Verify request.
//
// Args structure:
//
//	[UUID(16)][SHA256(32)][SIZE(4)][BPAK(1)]
func BuildVerifyRequest(part uuid.UUID, digest [32]byte, size uint32, bpak bool) *Request {
	args := argsBuffer(55)
	copy(args[0:16], part[:])
	copy(args[16:48], digest[:])
	binary.LittleEndian.PutUint32(args[48:52], size)
	if bpak {
		args[52] = 1
	}
	return &Request{Command: CmdPartVerify, Args: args}
}

// BuildEraseRequest constructs a Partition Erase request.
// startBlock is a device block address within the partition.
//
// Args structure:
//
//	[UUID(16)][START_LBA(4)][BLOCK_COUNT(4)]
func BuildEraseRequest(part uuid.UUID, startBlock, blockCount uint32) *Request {
	args := argsBuffer(32)
	copy(args[0:16], part[:])
	binary.LittleEndian.PutUint32(args[16:20], startBlock)
	binary.LittleEndian.PutUint32(args[20:24], blockCount)
	return &Request{Command: CmdPartErase, Args: args}
}

// BuildPrepareBufferRequest constructs a Stream Prepare Buffer request.
// The chunk is sent as the payload phase.
//
// Args structure:
//
//	[SIZE(4)][BUFFER_ID(1)]
func BuildPrepareBufferRequest(bufferID uint8, chunk []byte) *Request {
	args := argsBuffer(32)
	binary.LittleEndian.PutUint32(args[0:4], uint32(len(chunk)))
	args[4] = bufferID
	return &Request{Command: CmdStreamPrepareBuffer, Args: args, Payload: chunk}
}

// BuildBufferTransferRequest constructs a Stream Write Buffer or Stream Read
// Buffer request. A read request expects size bytes back.
//
// Args structure:
//
//	[SIZE(4)][OFFSET(8)][BUFFER_ID(1)]
func BuildBufferTransferRequest(cmd Command, bufferID uint8, offset uint64, size uint32) (*Request, error) {
	if cmd != CmdStreamWriteBuffer && cmd != CmdStreamReadBuffer {
		return nil, fmt.Errorf("not a buffer transfer command: %s", cmd)
	}

	args := argsBuffer(32)
	binary.LittleEndian.PutUint32(args[0:4], size)
	binary.LittleEndian.PutUint64(args[4:12], offset)
	args[12] = bufferID

	req := &Request{Command: cmd, Args: args}
	if cmd == CmdStreamReadBuffer {
		req.Reply = ReplyFixed
		req.ReplySize = int(size)
	}
	return req, nil
}

// BuildBootPartRequest constructs a Boot Partition request.
//
// Args structure:
//
//	[UUID(16)][VERBOSE(1)]
func BuildBootPartRequest(part uuid.UUID, verbose bool) *Request {
	args := argsBuffer(32)
	copy(args[0:16], part[:])
	if verbose {
		args[16] = 1
	}
	return &Request{Command: CmdBootPart, Args: args}
}

// BuildBootBPAKArgs constructs the command frame arguments of a Boot BPAK
// exchange. The image itself is moved by the transport.
//
// Args structure:
//
//	[VERBOSE(1)][UUID(16)]
func BuildBootBPAKArgs(pretend uuid.UUID, verbose bool) []byte {
	args := argsBuffer(32)
	if verbose {
		args[0] = 1
	}
	copy(args[1:17], pretend[:])
	return args
}

// BuildRevokeKeyRequest constructs an SLC Revoke Key request.
func BuildRevokeKeyRequest(keyID uint32) *Request {
	args := argsBuffer(4)
	binary.LittleEndian.PutUint32(args, keyID)
	return &Request{Command: CmdSLCRevokeKey, Args: args}
}

// BuildBoardCommandRequest constructs a Board Command request.
// Arguments, when present, are sent zero padded to AuthDataSize bytes.
//
// Args structure:
//
//	[COMMAND(4)][REQUEST_SIZE(4)][RESPONSE_BUFFER_SIZE(4)]
func BuildBoardCommandRequest(command uint32, request []byte) (*Request, error) {
	if len(request) > AuthDataSize {
		return nil, fmt.Errorf("board command arguments too large: %d bytes, maximum is %d", len(request), AuthDataSize)
	}

	args := argsBuffer(32)
	binary.LittleEndian.PutUint32(args[0:4], command)
	binary.LittleEndian.PutUint32(args[4:8], uint32(len(request)))
	binary.LittleEndian.PutUint32(args[8:12], BoardResponseBufferSize)

	req := &Request{
		Command:   CmdBoardCommand,
		Args:      args,
		Reply:     ReplySizedIfAny,
		ReplySize: BoardResponseBufferSize,
	}
	if len(request) > 0 {
		req.Payload = request
		req.PayloadSize = AuthDataSize
	}
	return req, nil
}

// Package devicesim simulates the device side of the punchboot wire
// protocol. It backs the transport, session and CLI tests and the programs under examples/.
package devicesim

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/moffa90/go-punchboot/bpak"
	"github.com/moffa90/go-punchboot/protocol"
)

// BoardHandler implements one board specific command.
type BoardHandler func(args []byte) ([]byte, error)

// Config describes the simulated device.
type Config struct {
	UUID     uuid.UUID
	Board    string
	Version  string
	Password string

	// Tokens maps key ids to the token accepted for them
	Tokens map[uint32][]byte

	Caps       protocol.Capabilities
	Partitions []protocol.PartitionEntry
	SLC        protocol.SLC
	Keys       protocol.KeyStatus

	BoardCommands map[uint32]BoardHandler
	BoardStatus   string
	BootMessage   string

	Logger *slog.Logger
}

// EraseCall records one Partition Erase request.
type EraseCall struct {
	Partition  uuid.UUID
	StartBlock uint32
	BlockCount uint32
}

// VerifyCall records one Partition Verify request.
type VerifyCall struct {
	Partition uuid.UUID
	Digest    [32]byte
	Size      uint32
	BPAK      bool
}

type partition struct {
	entry protocol.PartitionEntry
	data  []byte
}

type injection struct {
	after int
	kind  protocol.Kind
}

// Device is a simulated punchboot device.
type Device struct {
	mu sync.Mutex

	cfg    Config
	logger *slog.Logger

	authenticated bool
	parts         []*partition
	slc           protocol.SLC
	keys          protocol.KeyStatus
	boot          protocol.BootStatus

	stream  *partition
	buffers [][]byte

	inject map[protocol.Command]*injection

	commands []protocol.Command
	erases   []EraseCall
	verifies []VerifyCall
	booted   []uuid.UUID
	images   [][]byte
	tables   []uuid.UUID
	resets   int
}

// DefaultCaps are used when Config.Caps is zero.
var DefaultCaps = protocol.Capabilities{
	StreamBuffers:      2,
	StreamBufferSize:   64 * 1024,
	OperationTimeoutMs: 1000,
	PartEraseTimeoutMs: 10000,
	BPAKStreamSupport:  1,
	ChunkTransferMax:   16 * 1024,
}

// New creates a device from cfg.
func New(cfg Config) *Device {
	if cfg.Caps.StreamBuffers == 0 {
		cfg.Caps = DefaultCaps
	}
	if cfg.Version == "" {
		cfg.Version = "sim"
	}
	if cfg.BootMessage == "" {
		cfg.BootMessage = "OK"
	}
	if cfg.SLC == protocol.SLCInvalid {
		cfg.SLC = protocol.SLCNotConfigured
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	d := &Device{
		cfg:    cfg,
		logger: logger,
		slc:    cfg.SLC,
		keys:   cfg.Keys,
		inject: make(map[protocol.Command]*injection),
	}
	for _, e := range cfg.Partitions {
		size := (e.LastBlock - e.FirstBlock + 1) * uint64(e.BlockSize)
		d.parts = append(d.parts, &partition{entry: e, data: make([]byte, size)})
	}
	d.buffers = make([][]byte, cfg.Caps.StreamBuffers)
	return d
}

// Pipe connects a client to the device over an in-memory connection.
// The device stops serving when the client end is closed.
func (d *Device) Pipe() net.Conn {
	client, server := net.Pipe()
	go func() {
		_ = d.Serve(context.Background(), server)
		_ = server.Close()
	}()
	return client
}

// ServeListener accepts connections on l until ctx ends, serving them one at
// a time like a single USB endpoint.
func (d *Device) ServeListener(ctx context.Context, l net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()
	for {
		c, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := d.Serve(ctx, c); err != nil {
			d.logger.Error("serve failed", "error", err)
		}
		_ = c.Close()
	}
}

// Serve handles commands from rw until it reaches EOF or ctx ends.
func (d *Device) Serve(ctx context.Context, rw io.ReadWriter) error {
	frame := make([]byte, protocol.FrameSize)
	for ctx.Err() == nil {
		if _, err := io.ReadFull(rw, frame); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		cmd, args, err := protocol.DecodeCommand(frame)
		if err != nil {
			d.logger.Debug("bad frame", "error", err)
			if err := d.result(rw, protocol.ErrGeneric, nil); err != nil {
				return err
			}
			continue
		}
		if err := d.handle(rw, cmd, args); err != nil {
			return err
		}
	}
	return nil
}

// result writes one result frame. A nil err reports success.
func (d *Device) result(w io.Writer, err error, response []byte) error {
	frame, ferr := protocol.EncodeResult(protocol.ResultCode(err), response)
	if ferr != nil {
		return ferr
	}
	_, werr := w.Write(frame)
	return werr
}

// Inject makes the device fail cmd with kind after it has succeeded after times.
func (d *Device) Inject(cmd protocol.Command, after int, kind protocol.Kind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inject[cmd] = &injection{after: after, kind: kind}
}

func (d *Device) injected(cmd protocol.Command) error {
	inj, ok := d.inject[cmd]
	if !ok {
		return nil
	}
	if inj.after > 0 {
		inj.after--
		return nil
	}
	return &protocol.Error{Kind: inj.kind}
}

func (d *Device) handle(rw io.ReadWriter, cmd protocol.Command, args []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.commands = append(d.commands, cmd)
	d.logger.Debug("command", "cmd", cmd.String())

	if cmd.RequiresAuth() && !d.authenticated {
		return d.result(rw, protocol.ErrNotAuthenticated, nil)
	}
	if err := d.injected(cmd); err != nil {
		return d.result(rw, err, nil)
	}

	switch cmd {
	case protocol.CmdDeviceReset:
		d.resets++
		d.authenticated = false
		return d.result(rw, nil, nil)
	case protocol.CmdDeviceIdentifierRead:
		return d.result(rw, nil, protocol.EncodeDeviceIdentifier(d.cfg.UUID, d.cfg.Board))
	case protocol.CmdDeviceReadCaps:
		return d.result(rw, nil, protocol.EncodeCapabilities(d.cfg.Caps))
	case protocol.CmdBootloaderVersionRead:
		return d.result(rw, nil, []byte(d.cfg.Version))
	case protocol.CmdAuthenticate:
		return d.authenticate(rw, args)
	case protocol.CmdAuthSetPassword:
		d.cfg.Password = cString(args)
		return d.result(rw, nil, nil)
	case protocol.CmdSLCSetConfiguration:
		return d.result(rw, d.advance(protocol.SLCConfiguration), nil)
	case protocol.CmdSLCSetConfigurationLock:
		return d.result(rw, d.advance(protocol.SLCConfigurationLocked), nil)
	case protocol.CmdSLCSetEOL:
		return d.result(rw, d.advance(protocol.SLCEOL), nil)
	case protocol.CmdSLCRevokeKey:
		return d.result(rw, d.revoke(le32(args)), nil)
	case protocol.CmdSLCRead:
		if err := d.result(rw, nil, []byte{byte(d.slc)}); err != nil {
			return err
		}
		return d.data(rw, protocol.EncodeKeyStatus(d.keys))
	case protocol.CmdPartTableRead:
		entries := make([]protocol.PartitionEntry, 0, len(d.parts))
		for _, p := range d.parts {
			entries = append(entries, p.entry)
		}
		if err := d.result(rw, nil, []byte{byte(len(entries))}); err != nil {
			return err
		}
		return d.data(rw, protocol.EncodePartitionTable(entries))
	case protocol.CmdPartTableInstall:
		d.tables = append(d.tables, uuidAt(args, 0))
		return d.result(rw, nil, nil)
	case protocol.CmdPartErase:
		return d.result(rw, d.erase(args), nil)
	case protocol.CmdPartVerify:
		return d.result(rw, d.verify(args), nil)
	case protocol.CmdPartActivate:
		return d.result(rw, d.activate(uuidAt(args, 0)), nil)
	case protocol.CmdPartBPAKRead:
		return d.readHeader(rw, uuidAt(args, 0))
	case protocol.CmdStreamInitialize:
		return d.result(rw, d.openStream(uuidAt(args, 0)), nil)
	case protocol.CmdStreamPrepareBuffer:
		return d.prepareBuffer(rw, args)
	case protocol.CmdStreamWriteBuffer:
		return d.result(rw, d.writeBuffer(args), nil)
	case protocol.CmdStreamReadBuffer:
		return d.readBuffer(rw, args)
	case protocol.CmdStreamFinalize:
		if d.stream == nil {
			return d.result(rw, protocol.ErrStreamNotInitialized, nil)
		}
		d.stream = nil
		return d.result(rw, nil, nil)
	case protocol.CmdBootPart:
		return d.result(rw, d.bootPart(uuidAt(args, 0)), nil)
	case protocol.CmdBootBPAK:
		return d.bootImage(rw, args)
	case protocol.CmdBootStatus:
		return d.result(rw, nil, protocol.EncodeBootStatus(d.boot))
	case protocol.CmdBoardCommand:
		return d.boardCommand(rw, args)
	case protocol.CmdBoardStatusRead:
		status := []byte(d.cfg.BoardStatus)
		if err := d.result(rw, nil, protocol.EncodeSize(uint32(len(status)))); err != nil {
			return err
		}
		return d.data(rw, status)
	case protocol.CmdPartResize:
		return d.result(rw, protocol.ErrNotSupported, nil)
	default:
		return d.result(rw, protocol.ErrCommand, nil)
	}
}

// data writes a data phase followed by a success result.
func (d *Device) data(w io.Writer, b []byte) error {
	if len(b) > 0 {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return d.result(w, nil, nil)
}

func (d *Device) authenticate(rw io.ReadWriter, args []byte) error {
	method := args[0]
	size := int(le16(args[1:3]))
	keyID := le32(args[3:7])

	if size > protocol.AuthDataSize {
		return d.result(rw, protocol.ErrArgument, nil)
	}
	if err := d.result(rw, nil, nil); err != nil {
		return err
	}
	if size == 0 {
		return nil
	}

	buf := make([]byte, protocol.AuthDataSize)
	if _, err := io.ReadFull(rw, buf); err != nil {
		return err
	}
	data := buf[:size]

	var err error
	switch method {
	case protocol.AuthPassword:
		if d.cfg.Password == "" || string(data) != d.cfg.Password {
			err = protocol.ErrAuthentication
		}
	case protocol.AuthAsymToken:
		switch {
		case contains(d.keys.Revoked[:], keyID):
			err = protocol.ErrKeyRevoked
		case !bytes.Equal(d.cfg.Tokens[keyID], data) || len(data) == 0:
			err = protocol.ErrAuthentication
		}
	default:
		err = protocol.ErrArgument
	}
	d.authenticated = err == nil
	return d.result(rw, err, nil)
}

// advance moves the security life cycle forward. Moving backwards fails.
func (d *Device) advance(to protocol.SLC) error {
	if d.slc > to {
		return protocol.ErrGeneric
	}
	d.slc = to
	return nil
}

func (d *Device) revoke(id uint32) error {
	if id == 0 {
		return protocol.ErrArgument
	}
	if contains(d.keys.Revoked[:], id) {
		return protocol.ErrKeyRevoked
	}
	for i, k := range d.keys.Active {
		if k != id {
			continue
		}
		for j, r := range d.keys.Revoked {
			if r == 0 {
				d.keys.Revoked[j] = id
				d.keys.Active[i] = 0
				return nil
			}
		}
		return protocol.ErrNoMemory
	}
	return protocol.ErrNotFound
}

func (d *Device) find(id uuid.UUID) *partition {
	for _, p := range d.parts {
		if p.entry.UUID == id {
			return p
		}
	}
	return nil
}

func (d *Device) erase(args []byte) error {
	call := EraseCall{Partition: uuidAt(args, 0), StartBlock: le32(args[16:20]), BlockCount: le32(args[20:24])}
	d.erases = append(d.erases, call)

	p := d.find(call.Partition)
	if p == nil {
		return protocol.ErrNotFound
	}
	first := uint64(call.StartBlock)
	if first < p.entry.FirstBlock || first+uint64(call.BlockCount) > p.entry.LastBlock+1 {
		return protocol.ErrArgument
	}
	bs := uint64(p.entry.BlockSize)
	start := (first - p.entry.FirstBlock) * bs
	end := start + uint64(call.BlockCount)*bs
	clear(p.data[start:end])
	return nil
}

func (d *Device) verify(args []byte) error {
	call := VerifyCall{Partition: uuidAt(args, 0), Size: le32(args[48:52]), BPAK: args[52] != 0}
	copy(call.Digest[:], args[16:48])
	d.verifies = append(d.verifies, call)

	p := d.find(call.Partition)
	if p == nil {
		return protocol.ErrNotFound
	}
	if uint64(call.Size) > uint64(len(p.data)) {
		return protocol.ErrArgument
	}

	content := p.data[:call.Size]
	if call.BPAK && call.Size >= bpak.HeaderSize {
		// The header lives in the last block range of the partition.
		hdr := p.data[len(p.data)-bpak.HeaderSize:]
		content = append(append([]byte{}, hdr...), p.data[:call.Size-bpak.HeaderSize]...)
	}
	if sha256.Sum256(content) != call.Digest {
		return protocol.ErrPartVerify
	}
	return nil
}

func (d *Device) activate(id uuid.UUID) error {
	if id != uuid.Nil {
		p := d.find(id)
		if p == nil {
			return protocol.ErrNotFound
		}
		if p.entry.Flags&protocol.PartFlagBootable == 0 {
			return protocol.ErrPartNotBootable
		}
	}
	d.boot = protocol.BootStatus{UUID: id, Message: d.cfg.BootMessage}
	return nil
}

func (d *Device) readHeader(rw io.ReadWriter, id uuid.UUID) error {
	p := d.find(id)
	if p == nil {
		return d.result(rw, protocol.ErrNotFound, nil)
	}
	if len(p.data) < bpak.HeaderSize {
		return d.result(rw, protocol.ErrArgument, nil)
	}
	hdr := p.data[len(p.data)-bpak.HeaderSize:]
	if !bpak.Valid(hdr) {
		return d.result(rw, protocol.ErrNotFound, nil)
	}
	if err := d.result(rw, nil, nil); err != nil {
		return err
	}
	return d.data(rw, hdr)
}

func (d *Device) openStream(id uuid.UUID) error {
	p := d.find(id)
	if p == nil {
		return protocol.ErrNotFound
	}
	d.stream = p
	return nil
}

func (d *Device) prepareBuffer(rw io.ReadWriter, args []byte) error {
	size := le32(args[0:4])
	id := int(args[4])

	if d.stream == nil {
		return d.result(rw, protocol.ErrStreamNotInitialized, nil)
	}
	if id >= len(d.buffers) {
		return d.result(rw, protocol.ErrArgument, nil)
	}
	if size > d.cfg.Caps.StreamBufferSize {
		return d.result(rw, protocol.ErrNoMemory, nil)
	}
	if err := d.result(rw, nil, nil); err != nil {
		return err
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(rw, buf); err != nil {
		return err
	}
	d.buffers[id] = buf
	return d.result(rw, nil, nil)
}

func (d *Device) writeBuffer(args []byte) error {
	size := uint64(le32(args[0:4]))
	offset := le64(args[4:12])
	id := int(args[12])

	if d.stream == nil {
		return protocol.ErrStreamNotInitialized
	}
	if d.stream.entry.Flags&protocol.PartFlagWritable == 0 {
		return protocol.ErrArgument
	}
	if id >= len(d.buffers) || uint64(len(d.buffers[id])) < size {
		return protocol.ErrArgument
	}
	if offset+size > uint64(len(d.stream.data)) {
		return protocol.ErrArgument
	}
	copy(d.stream.data[offset:], d.buffers[id][:size])
	return nil
}

func (d *Device) readBuffer(rw io.ReadWriter, args []byte) error {
	size := uint64(le32(args[0:4]))
	offset := le64(args[4:12])
	id := int(args[12])

	switch {
	case d.stream == nil:
		return d.result(rw, protocol.ErrStreamNotInitialized, nil)
	case d.stream.entry.Flags&protocol.PartFlagReadable == 0:
		return d.result(rw, protocol.ErrArgument, nil)
	case id >= len(d.buffers), offset+size > uint64(len(d.stream.data)):
		return d.result(rw, protocol.ErrArgument, nil)
	}
	if err := d.result(rw, nil, nil); err != nil {
		return err
	}
	return d.data(rw, d.stream.data[offset:offset+size])
}

func (d *Device) bootPart(id uuid.UUID) error {
	p := d.find(id)
	if p == nil {
		return protocol.ErrNotFound
	}
	if p.entry.Flags&protocol.PartFlagBootable == 0 {
		return protocol.ErrPartNotBootable
	}
	d.booted = append(d.booted, id)
	return nil
}

func (d *Device) bootImage(rw io.ReadWriter, args []byte) error {
	pretend := uuidAt(args, 1)
	if err := d.result(rw, nil, nil); err != nil {
		return err
	}

	raw := make([]byte, bpak.HeaderSize)
	if _, err := io.ReadFull(rw, raw); err != nil {
		return err
	}
	hdr, err := bpak.Parse(raw)
	if err != nil {
		return d.result(rw, protocol.ErrSignature, nil)
	}
	if err := d.result(rw, nil, nil); err != nil {
		return err
	}

	image := append([]byte{}, raw...)
	for _, p := range hdr.Parts {
		part := make([]byte, p.StoredSize())
		if _, err := io.ReadFull(rw, part); err != nil {
			return err
		}
		image = append(image, part...)
		if err := d.result(rw, nil, nil); err != nil {
			return err
		}
	}

	d.images = append(d.images, image)
	d.booted = append(d.booted, pretend)
	return d.result(rw, nil, nil)
}

func (d *Device) boardCommand(rw io.ReadWriter, args []byte) error {
	command := le32(args[0:4])
	requestSize := le32(args[4:8])
	responseMax := le32(args[8:12])

	handler, ok := d.cfg.BoardCommands[command]
	if !ok {
		return d.result(rw, protocol.ErrNotSupported, nil)
	}
	if requestSize > protocol.AuthDataSize {
		return d.result(rw, protocol.ErrArgument, nil)
	}
	if err := d.result(rw, nil, nil); err != nil {
		return err
	}

	var request []byte
	if requestSize > 0 {
		buf := make([]byte, protocol.AuthDataSize)
		if _, err := io.ReadFull(rw, buf); err != nil {
			return err
		}
		request = buf[:requestSize]
	}

	response, herr := handler(request)
	if uint32(len(response)) > responseMax {
		response, herr = nil, protocol.ErrNoMemory
	}
	if err := d.result(rw, herr, protocol.EncodeSize(uint32(len(response)))); err != nil {
		return err
	}
	if len(response) == 0 {
		return nil
	}
	return d.data(rw, response)
}

// Commands returns every command received, in order.
func (d *Device) Commands() []protocol.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]protocol.Command(nil), d.commands...)
}

// Erases returns every erase request received, in order.
func (d *Device) Erases() []EraseCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]EraseCall(nil), d.erases...)
}

// Verifies returns every verify request received, in order.
func (d *Device) Verifies() []VerifyCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]VerifyCall(nil), d.verifies...)
}

// PartitionData returns a copy of the contents of partition id.
func (d *Device) PartitionData(id uuid.UUID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.find(id)
	if p == nil {
		return nil, fmt.Errorf("no partition %s", id)
	}
	return append([]byte(nil), p.data...), nil
}

// SetPartitionData replaces the beginning of partition id with b.
func (d *Device) SetPartitionData(id uuid.UUID, b []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.find(id)
	if p == nil {
		return fmt.Errorf("no partition %s", id)
	}
	if len(b) > len(p.data) {
		return fmt.Errorf("%d bytes do not fit in partition %s", len(b), id)
	}
	copy(p.data, b)
	return nil
}

// Booted returns the partitions booted, in order. Images booted from RAM
// are recorded with the partition they pretended to be.
func (d *Device) Booted() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uuid.UUID(nil), d.booted...)
}

// Images returns the BPAK images booted from RAM.
func (d *Device) Images() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.images...)
}

// InstalledTables returns the partition table ids installed.
func (d *Device) InstalledTables() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uuid.UUID(nil), d.tables...)
}

// SLC returns the current security life cycle state.
func (d *Device) SLC() protocol.SLC {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slc
}

// Keys returns the current key status.
func (d *Device) Keys() protocol.KeyStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keys
}

// Authenticated reports whether the current session is authenticated.
func (d *Device) Authenticated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.authenticated
}

// SetAuthenticated forces the authentication state.
func (d *Device) SetAuthenticated(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.authenticated = v
}

// Resets returns the number of device resets received.
func (d *Device) Resets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}

package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/moffa90/go-punchboot/internal/devicesim"
	"github.com/moffa90/go-punchboot/protocol"
	"github.com/moffa90/go-punchboot/transport"
)

var (
	simRootA  = uuid.MustParse("2af755d8-8de5-45d5-a862-014cfa735ce0")
	simConfig = uuid.MustParse("c046ccd8-0f2e-4036-984d-76c14dc73992")
	simKey    = uint32(0xa90f9680)
)

func newSimSession(t *testing.T, opts ...Option) (*devicesim.Device, *Session) {
	t.Helper()

	keys := protocol.KeyStatus{}
	keys.Active[0] = simKey
	keys.Active[1] = protocol.ID("pb-production")

	dev := devicesim.New(devicesim.Config{
		UUID:     uuid.MustParse("bd4475db-f4c4-454e-a4f1-156d99d0d0e8"),
		Board:    "sim",
		Version:  "v1.4.0",
		Password: "hunter2",
		Tokens:   map[uint32][]byte{simKey: []byte("signed-token")},
		Caps: protocol.Capabilities{
			StreamBuffers:    2,
			StreamBufferSize: 4096,
			ChunkTransferMax: 2048,
		},
		Partitions: []protocol.PartitionEntry{
			{
				UUID:        simRootA,
				Description: "Root A",
				FirstBlock:  0,
				LastBlock:   127,
				BlockSize:   512,
				Flags:       protocol.PartFlagBootable | protocol.PartFlagWritable | protocol.PartFlagReadable,
			},
			{
				UUID:        simConfig,
				Description: "Config",
				FirstBlock:  128,
				LastBlock:   227,
				BlockSize:   512,
				Flags:       protocol.PartFlagWritable | protocol.PartFlagReadable,
			},
		},
		Keys:        keys,
		BoardStatus: "  temp: 42C\n",
	})

	conn := transport.NewConn(dev.Pipe(), time.Second, nil)
	s := New(conn, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return dev, s
}

func TestSimAuthentication(t *testing.T) {
	dev, s := newSimSession(t)
	ctx := context.Background()

	if _, err := s.ListPartitions(ctx); !errors.Is(err, protocol.ErrNotAuthenticated) {
		t.Fatalf("ListPartitions() before auth error = %v, want ErrNotAuthenticated", err)
	}
	if err := s.Authenticate(ctx, "wrong"); !errors.Is(err, protocol.ErrAuthentication) {
		t.Fatalf("Authenticate(wrong) error = %v, want ErrAuthentication", err)
	}
	if err := s.Authenticate(ctx, "hunter2"); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if !dev.Authenticated() {
		t.Error("device not authenticated")
	}

	parts, err := s.ListPartitions(ctx)
	if err != nil {
		t.Fatalf("ListPartitions() error = %v", err)
	}
	if len(parts) != 2 || parts[0].Description != "Root A" || parts[1].FirstBlock != 128 {
		t.Errorf("ListPartitions() = %+v", parts)
	}
}

func TestSimTokenAuthentication(t *testing.T) {
	dev, s := newSimSession(t)
	ctx := context.Background()

	if err := s.AuthenticateToken(ctx, []byte("signed-token"), ID(simKey)); err != nil {
		t.Fatalf("AuthenticateToken() error = %v", err)
	}
	if !dev.Authenticated() {
		t.Error("device not authenticated")
	}
}

func TestSimEraseAbsoluteBlocks(t *testing.T) {
	dev, s := newSimSession(t)
	dev.SetAuthenticated(true)
	ctx := context.Background()

	if err := dev.SetPartitionData(simConfig, bytes.Repeat([]byte{0xFF}, 100*512)); err != nil {
		t.Fatal(err)
	}

	var calls []progressCall
	err := s.Erase(ctx, simConfig, func(total, remaining uint64) {
		calls = append(calls, progressCall{total, remaining})
	})
	if err != nil {
		t.Fatalf("Erase() error = %v", err)
	}

	erases := dev.Erases()
	if len(erases) != 2 {
		t.Fatalf("got %d erase calls, want 2", len(erases))
	}
	if erases[0].StartBlock != 128 || erases[0].BlockCount != 64 {
		t.Errorf("first erase = %+v", erases[0])
	}
	if erases[1].StartBlock != 192 || erases[1].BlockCount != 36 {
		t.Errorf("second erase = %+v", erases[1])
	}

	data, err := dev.PartitionData(simConfig)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, make([]byte, len(data))) {
		t.Error("partition not fully erased")
	}
	if len(calls) != 3 || calls[2] != (progressCall{100, 0}) {
		t.Errorf("progress = %v", calls)
	}
}

func TestSimWriteVerifyRead(t *testing.T) {
	dev, s := newSimSession(t)
	dev.SetAuthenticated(true)
	ctx := context.Background()

	payload := bytes.Repeat([]byte("0123456789abcdef"), 1000)
	if err := s.Write(ctx, bytes.NewReader(payload), simRootA); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := s.Verify(ctx, bytes.NewReader(payload), simRootA); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	changed := append([]byte(nil), payload...)
	changed[100] ^= 0xFF
	if err := s.Verify(ctx, bytes.NewReader(changed), simRootA); !errors.Is(err, protocol.ErrPartVerify) {
		t.Errorf("Verify(changed) error = %v, want ErrPartVerify", err)
	}

	var out bytes.Buffer
	if err := s.Read(ctx, &out, simRootA); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if out.Len() != 128*512 {
		t.Fatalf("read %d bytes, want %d", out.Len(), 128*512)
	}
	if !bytes.Equal(out.Bytes()[:len(payload)], payload) {
		t.Error("read data differs from written data")
	}
}

func TestSimVerifyUnknownPartition(t *testing.T) {
	dev, s := newSimSession(t)
	dev.SetAuthenticated(true)

	err := s.Verify(context.Background(), bytes.NewReader([]byte("x")), uuid.New())
	if !errors.Is(err, protocol.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestSimBoardCommandNotSupported(t *testing.T) {
	dev, s := newSimSession(t)
	dev.SetAuthenticated(true)

	_, err := s.RunCommand(context.Background(), Name("reset"), nil)
	if !errors.Is(err, protocol.ErrNotSupported) {
		t.Errorf("error = %v, want ErrNotSupported", err)
	}

	status, err := s.ReadStatus(context.Background())
	if err != nil || status != "temp: 42C" {
		t.Errorf("ReadStatus() = %q, %v", status, err)
	}
}

func TestSimRevokeKeyTwice(t *testing.T) {
	dev, s := newSimSession(t)
	dev.SetAuthenticated(true)
	ctx := context.Background()

	if err := s.RevokeKey(ctx, ID(simKey), true); err != nil {
		t.Fatalf("RevokeKey() error = %v", err)
	}
	if err := s.RevokeKey(ctx, ID(simKey), true); !errors.Is(err, protocol.ErrKeyRevoked) {
		t.Errorf("second RevokeKey() error = %v, want ErrKeyRevoked", err)
	}

	st, err := s.SLCStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Active) != 1 || st.Active[0] != protocol.ID("pb-production") {
		t.Errorf("Active = %x", st.Active)
	}
	if len(st.Revoked) != 1 || st.Revoked[0] != simKey {
		t.Errorf("Revoked = %x", st.Revoked)
	}
}

func TestSimLifecycle(t *testing.T) {
	dev, s := newSimSession(t)
	dev.SetAuthenticated(true)
	ctx := context.Background()

	steps := []struct {
		run  func(context.Context, bool) error
		want protocol.SLC
	}{
		{s.Configure, protocol.SLCConfiguration},
		{s.Lock, protocol.SLCConfigurationLocked},
		{s.EndOfLife, protocol.SLCEOL},
	}
	for _, step := range steps {
		if err := step.run(ctx, true); err != nil {
			t.Fatalf("transition to %s: %v", step.want, err)
		}
		got, err := s.Lifecycle(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got != step.want {
			t.Errorf("Lifecycle() = %s, want %s", got, step.want)
		}
	}

	// The device refuses to go back; the error is passed through.
	if err := s.Configure(ctx, true); !errors.Is(err, protocol.ErrGeneric) {
		t.Errorf("Configure() after EOL error = %v, want ErrGeneric", err)
	}
}

func TestSimBootSelection(t *testing.T) {
	dev, s := newSimSession(t)
	dev.SetAuthenticated(true)
	ctx := context.Background()

	if err := s.SetBootPartition(ctx, simRootA); err != nil {
		t.Fatalf("SetBootPartition() error = %v", err)
	}
	st, err := s.BootStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.UUID != simRootA {
		t.Errorf("BootStatus().UUID = %s, want %s", st.UUID, simRootA)
	}

	if err := s.SetBootPartition(ctx, simConfig); !errors.Is(err, protocol.ErrPartNotBootable) {
		t.Errorf("SetBootPartition(not bootable) error = %v, want ErrPartNotBootable", err)
	}

	none, _ := ParseBootTarget("none")
	if err := s.SetBootPartition(ctx, none); err != nil {
		t.Fatal(err)
	}
	st, err = s.BootStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Enabled() {
		t.Errorf("boot still enabled: %s", st.UUID)
	}
}

func TestSimDevice(t *testing.T) {
	dev, s := newSimSession(t)
	ctx := context.Background()

	id, err := s.Identify(ctx)
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if id.BoardID != "sim" {
		t.Errorf("BoardID = %q", id.BoardID)
	}

	dev.SetAuthenticated(true)
	if v, err := s.Version(ctx); err != nil || v != "1.4.0" {
		t.Errorf("Version() = %q, %v", v, err)
	}
	if err := s.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if dev.Resets() != 1 {
		t.Errorf("Resets() = %d", dev.Resets())
	}
}

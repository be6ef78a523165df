package session

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/moffa90/go-punchboot/bpak"
	"github.com/moffa90/go-punchboot/protocol"
)

func verifyArgs(t *testing.T, m *MockTransport) ([32]byte, uint32, bool) {
	t.Helper()
	reqs := m.sent(protocol.CmdPartVerify)
	if len(reqs) != 1 {
		t.Fatalf("got %d verify requests, want 1", len(reqs))
	}
	args := reqs[0].Args
	var digest [32]byte
	copy(digest[:], args[16:48])
	return digest, binary.LittleEndian.Uint32(args[48:52]), args[52] != 0
}

func magic() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, bpak.Magic)
	return b
}

func TestVerify(t *testing.T) {
	large := append(magic(), bytes.Repeat([]byte{0xA5}, 3*1024*1024+100)...)
	plain := bytes.Repeat([]byte("punchboot"), 1000)

	tests := []struct {
		name     string
		input    []byte
		wantBPAK bool
	}{
		{"empty input", nil, false},
		{"magic only", magic(), true},
		{"magic short input", append(magic(), make([]byte, 100)...), true},
		{"magic exact header", append(magic(), make([]byte, bpak.HeaderSize-4)...), true},
		{"magic large input", large, true},
		{"no magic", plain, false},
		{"three bytes", []byte{0x32, 0x41, 0x50}, false},
		{"magic past first header", append(make([]byte, bpak.HeaderSize), magic()...), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMockTransport()
			s := New(m, WithHashChunkSize(4096))

			if err := s.Verify(context.Background(), bytes.NewReader(tt.input), partA); err != nil {
				t.Fatalf("Verify() error = %v", err)
			}

			digest, size, isBPAK := verifyArgs(t, m)
			if digest != sha256.Sum256(tt.input) {
				t.Error("digest does not match SHA-256 of the input")
			}
			if size != uint32(len(tt.input)) {
				t.Errorf("size = %d, want %d", size, len(tt.input))
			}
			if isBPAK != tt.wantBPAK {
				t.Errorf("bpak = %v, want %v", isBPAK, tt.wantBPAK)
			}
		})
	}
}

func TestVerifyEmptyDigest(t *testing.T) {
	m := NewMockTransport()
	s := New(m)

	if err := s.Verify(context.Background(), bytes.NewReader(nil), partA); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	digest, _, _ := verifyArgs(t, m)

	// SHA-256 of the empty string
	want := [32]byte{
		0xe3, 0xb0, 0xc4, 0x42, 0x98, 0xfc, 0x1c, 0x14, 0x9a, 0xfb, 0xf4, 0xc8, 0x99, 0x6f, 0xb9, 0x24,
		0x27, 0xae, 0x41, 0xe4, 0x64, 0x9b, 0x93, 0x4c, 0xa4, 0x95, 0x99, 0x1b, 0x78, 0x52, 0xb8, 0x55,
	}
	if digest != want {
		t.Errorf("digest = %x", digest)
	}
}

// failingReader returns one byte per Read and then err.
type failingReader struct {
	b   []byte
	err error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, r.err
	}
	p[0] = r.b[0]
	r.b = r.b[1:]
	return 1, nil
}

func TestVerifyReadError(t *testing.T) {
	readErr := errors.New("device unplugged")
	for _, size := range []int{100, 5000} {
		m := NewMockTransport()
		s := New(m)

		src := &failingReader{b: append(magic(), make([]byte, size)...), err: readErr}
		err := s.Verify(context.Background(), src, partA)
		if !errors.Is(err, readErr) {
			t.Fatalf("size %d: error = %v, want the reader error", size, err)
		}
		if n := len(m.sent(protocol.CmdPartVerify)); n != 0 {
			t.Errorf("size %d: verify sent after a read error", size)
		}
	}
}

func TestVerifyDeviceErrors(t *testing.T) {
	for _, kind := range []protocol.Kind{protocol.KindPartVerify, protocol.KindNotFound, protocol.KindNotAuthenticated} {
		t.Run(kind.String(), func(t *testing.T) {
			m := NewMockTransport()
			m.fail = func(req *protocol.Request, n int) error {
				return &protocol.Error{Op: req.Command.String(), Kind: kind}
			}
			s := New(m)

			err := s.Verify(context.Background(), bytes.NewReader([]byte("x")), partA)
			if protocol.KindOf(err) != kind {
				t.Errorf("error = %v, want kind %s", err, kind)
			}
		})
	}
}

func TestSetBootPartitionNone(t *testing.T) {
	for _, in := range []string{"none", "NONE", "None"} {
		id, err := ParseBootTarget(in)
		if err != nil {
			t.Fatalf("ParseBootTarget(%q) error = %v", in, err)
		}
		if id != uuid.Nil {
			t.Errorf("ParseBootTarget(%q) = %s, want nil UUID", in, id)
		}
	}

	if id, err := ParseBootTarget(partA.String()); err != nil || id != partA {
		t.Errorf("ParseBootTarget(uuid) = %s, %v", id, err)
	}
	if _, err := ParseBootTarget("nothing"); !errors.Is(err, protocol.ErrArgument) {
		t.Errorf("error = %v, want ErrArgument", err)
	}

	m := NewMockTransport()
	s := New(m)
	ctx := context.Background()

	fromText, _ := ParseBootTarget("none")
	if err := s.SetBootPartition(ctx, fromText); err != nil {
		t.Fatal(err)
	}
	if err := s.SetBootPartition(ctx, uuid.Nil); err != nil {
		t.Fatal(err)
	}

	reqs := m.sent(protocol.CmdPartActivate)
	if len(reqs) != 2 {
		t.Fatalf("got %d activate requests, want 2", len(reqs))
	}
	if !bytes.Equal(reqs[0].Args, reqs[1].Args) {
		t.Error("\"none\" and nil UUID produced different requests")
	}
	if !bytes.Equal(reqs[0].Args[:16], make([]byte, 16)) {
		t.Errorf("activate UUID = %x, want zero", reqs[0].Args[:16])
	}
}

func TestBootStatus(t *testing.T) {
	m := NewMockTransport()
	m.responses[protocol.CmdBootStatus] = &protocol.Response{
		Result: protocol.EncodeBootStatus(protocol.BootStatus{UUID: partA, Message: "rollback"}),
	}
	s := New(m)

	st, err := s.BootStatus(context.Background())
	if err != nil {
		t.Fatalf("BootStatus() error = %v", err)
	}
	if st.UUID != partA || st.Message != "rollback" || !st.Enabled() {
		t.Errorf("BootStatus() = %+v", st)
	}

	m.responses[protocol.CmdBootStatus] = &protocol.Response{
		Result: protocol.EncodeBootStatus(protocol.BootStatus{}),
	}
	st, err = s.BootStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Enabled() {
		t.Errorf("BootStatus() = %+v, want disabled", st)
	}
}

func TestBoot(t *testing.T) {
	m := NewMockTransport()
	s := New(m)

	if err := s.Boot(context.Background(), partA, true); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	reqs := m.sent(protocol.CmdBootPart)
	if len(reqs) != 1 {
		t.Fatalf("got %d boot requests", len(reqs))
	}
	if !bytes.Equal(reqs[0].Args[:16], partA[:]) || reqs[0].Args[16] != 1 {
		t.Errorf("boot args = %x", reqs[0].Args[:17])
	}
}

func testImage(t *testing.T) []byte {
	t.Helper()
	h := &bpak.Header{
		Parts:    []bpak.Part{{ID: protocol.ID("kernel"), Size: 512}},
		HashKind: bpak.HashSHA256,
	}
	hdr, err := h.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return append(hdr, make([]byte, 512)...)
}

func TestBootImage(t *testing.T) {
	m := NewMockTransport()
	s := New(m)
	image := testImage(t)

	if err := s.BootImage(context.Background(), image, partB, true); err != nil {
		t.Fatalf("BootImage() error = %v", err)
	}
	if len(m.streamsOut) != 1 {
		t.Fatalf("got %d streams, want 1", len(m.streamsOut))
	}
	want := protocol.Stream{Kind: protocol.StreamImage, Partition: partB, Verbose: true}
	if m.streamsOut[0] != want {
		t.Errorf("stream = %+v, want %+v", m.streamsOut[0], want)
	}
	if !bytes.Equal(m.written[0], image) {
		t.Error("streamed image differs")
	}
}

func TestBootImageInvalid(t *testing.T) {
	m := NewMockTransport()
	s := New(m)

	full := testImage(t)
	tests := map[string][]byte{
		"empty":     nil,
		"short":     magic(),
		"bad magic": make([]byte, bpak.HeaderSize),
		"truncated": full[:len(full)-100],
		"no parts":  full[:bpak.HeaderSize],
	}
	for name, image := range tests {
		t.Run(name, func(t *testing.T) {
			err := s.BootImage(context.Background(), image, uuid.Nil, false)
			if !errors.Is(err, protocol.ErrArgument) {
				t.Errorf("error = %v, want ErrArgument", err)
			}
		})
	}
	if len(m.streamsOut) != 0 || len(m.requests) != 0 {
		t.Error("device contacted for an invalid image")
	}
}

func TestRunCommand(t *testing.T) {
	m := NewMockTransport()
	m.responses[protocol.CmdBoardCommand] = &protocol.Response{Data: []byte("pong")}
	s := New(m)

	out, err := s.RunCommand(context.Background(), Name("ping"), []byte("x"))
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	if string(out) != "pong" {
		t.Errorf("RunCommand() = %q", out)
	}

	req := m.sent(protocol.CmdBoardCommand)[0]
	if got := binary.LittleEndian.Uint32(req.Args[0:4]); got != protocol.ID("ping") {
		t.Errorf("command id = 0x%08x, want 0x%08x", got, protocol.ID("ping"))
	}
	if !bytes.Equal(req.Payload, []byte("x")) {
		t.Errorf("payload = %q", req.Payload)
	}
}

func TestRunCommandNotSupported(t *testing.T) {
	m := NewMockTransport()
	m.fail = func(req *protocol.Request, n int) error {
		if binary.LittleEndian.Uint32(req.Args[0:4]) == 0x96bf4850 {
			return &protocol.Error{Op: "board command", Kind: protocol.KindNotSupported}
		}
		return nil
	}
	s := New(m)

	_, err := s.RunCommand(context.Background(), Name("reset"), nil)
	if !errors.Is(err, protocol.ErrNotSupported) {
		t.Errorf("error = %v, want ErrNotSupported", err)
	}
}

func TestRunCommandArgsTooLarge(t *testing.T) {
	m := NewMockTransport()
	s := New(m)

	_, err := s.RunCommand(context.Background(), ID(1), make([]byte, protocol.AuthDataSize+1))
	if !errors.Is(err, protocol.ErrArgument) {
		t.Errorf("error = %v, want ErrArgument", err)
	}
	if len(m.requests) != 0 {
		t.Error("request sent")
	}
}

func TestReadStatus(t *testing.T) {
	m := NewMockTransport()
	m.responses[protocol.CmdBoardStatusRead] = &protocol.Response{Data: []byte("  temp: 42C\n\x00\x00")}
	s := New(m)

	got, err := s.ReadStatus(context.Background())
	if err != nil {
		t.Fatalf("ReadStatus() error = %v", err)
	}
	if got != "temp: 42C" {
		t.Errorf("ReadStatus() = %q", got)
	}
}

func TestAuthenticate(t *testing.T) {
	m := NewMockTransport()
	s := New(m)
	ctx := context.Background()

	if err := s.Authenticate(ctx, "secret"); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if err := s.AuthenticateToken(ctx, []byte("token"), Name("pb-development")); err != nil {
		t.Fatalf("AuthenticateToken() error = %v", err)
	}

	reqs := m.sent(protocol.CmdAuthenticate)
	if len(reqs) != 2 {
		t.Fatalf("got %d auth requests", len(reqs))
	}
	if reqs[0].Args[0] != protocol.AuthPassword || string(reqs[0].Payload) != "secret" {
		t.Errorf("password request = %x / %q", reqs[0].Args[:7], reqs[0].Payload)
	}
	if reqs[1].Args[0] != protocol.AuthAsymToken {
		t.Errorf("token method = %d", reqs[1].Args[0])
	}
	if got := binary.LittleEndian.Uint32(reqs[1].Args[3:7]); got != protocol.ID("pb-development") {
		t.Errorf("key id = 0x%08x", got)
	}

	if err := s.AuthenticateToken(ctx, make([]byte, protocol.AuthDataSize+1), ID(1)); !errors.Is(err, protocol.ErrArgument) {
		t.Errorf("oversized token error = %v, want ErrArgument", err)
	}
}

func TestAuthenticateErrors(t *testing.T) {
	m := NewMockTransport()
	m.fail = func(req *protocol.Request, n int) error {
		if req.Args[0] == protocol.AuthAsymToken {
			return &protocol.Error{Op: "authenticate", Kind: protocol.KindKeyRevoked}
		}
		return &protocol.Error{Op: "authenticate", Kind: protocol.KindAuthentication}
	}
	s := New(m)
	ctx := context.Background()

	if err := s.Authenticate(ctx, "wrong"); !errors.Is(err, protocol.ErrAuthentication) {
		t.Errorf("Authenticate() error = %v, want ErrAuthentication", err)
	}
	if err := s.AuthenticateToken(ctx, []byte("t"), ID(7)); !errors.Is(err, protocol.ErrKeyRevoked) {
		t.Errorf("AuthenticateToken() error = %v, want ErrKeyRevoked", err)
	}
}

func TestSetPassword(t *testing.T) {
	m := NewMockTransport()
	s := New(m)

	if err := s.SetPassword(context.Background(), "new"); err != nil {
		t.Fatal(err)
	}
	req := m.sent(protocol.CmdAuthSetPassword)[0]
	if string(req.Args) != "new" {
		t.Errorf("args = %q", req.Args)
	}
}

func TestSLCConfirmation(t *testing.T) {
	ctx := context.Background()

	t.Run("no confirmer", func(t *testing.T) {
		m := NewMockTransport()
		s := New(m)
		if err := s.Configure(ctx, false); !errors.Is(err, ErrConfirmationRequired) {
			t.Errorf("error = %v, want ErrConfirmationRequired", err)
		}
		if len(m.requests) != 0 {
			t.Error("request sent without confirmation")
		}
	})

	t.Run("declined", func(t *testing.T) {
		m := NewMockTransport()
		var asked []string
		s := New(m, WithConfirm(func(action string) (bool, error) {
			asked = append(asked, action)
			return false, nil
		}))
		if err := s.Lock(ctx, false); !errors.Is(err, ErrNotConfirmed) {
			t.Errorf("error = %v, want ErrNotConfirmed", err)
		}
		if len(asked) != 1 || asked[0] != "slc lock" {
			t.Errorf("asked = %v", asked)
		}
		if len(m.requests) != 0 {
			t.Error("request sent after decline")
		}
	})

	t.Run("confirmed", func(t *testing.T) {
		m := NewMockTransport()
		var events []AuditEvent
		s := New(m,
			WithConfirm(func(string) (bool, error) { return true, nil }),
			WithAudit(func(ev AuditEvent) { events = append(events, ev) }),
		)
		if err := s.EndOfLife(ctx, false); err != nil {
			t.Fatalf("EndOfLife() error = %v", err)
		}
		if len(m.sent(protocol.CmdSLCSetEOL)) != 1 {
			t.Error("eol not sent")
		}
		if len(events) != 1 || events[0].Action != "slc eol" || events[0].Err != nil {
			t.Errorf("audit events = %+v", events)
		}
	})

	t.Run("forced", func(t *testing.T) {
		m := NewMockTransport()
		s := New(m, WithConfirm(func(string) (bool, error) {
			t.Error("confirm asked despite force")
			return false, nil
		}))
		if err := s.Configure(ctx, true); err != nil {
			t.Fatalf("Configure() error = %v", err)
		}
		if len(m.sent(protocol.CmdSLCSetConfiguration)) != 1 {
			t.Error("configure not sent")
		}
	})
}

func TestRevokeKeyAlreadyRevoked(t *testing.T) {
	m := NewMockTransport()
	m.fail = func(req *protocol.Request, n int) error {
		return &protocol.Error{Op: "slc revoke key", Kind: protocol.KindKeyRevoked}
	}
	var events []AuditEvent
	s := New(m, WithAudit(func(ev AuditEvent) { events = append(events, ev) }))

	err := s.RevokeKey(context.Background(), ID(0xa90f9680), true)
	if !errors.Is(err, protocol.ErrKeyRevoked) {
		t.Fatalf("error = %v, want ErrKeyRevoked", err)
	}

	// The request goes out without a key status read.
	if len(m.requests) != 1 || m.requests[0].Command != protocol.CmdSLCRevokeKey {
		t.Fatalf("requests = %v", m.requests)
	}
	if got := binary.LittleEndian.Uint32(m.requests[0].Args); got != 0xa90f9680 {
		t.Errorf("key = 0x%08x", got)
	}
	if len(events) != 1 || events[0].Key != 0xa90f9680 || !errors.Is(events[0].Err, protocol.ErrKeyRevoked) {
		t.Errorf("audit events = %+v", events)
	}
}

func TestSLCStatus(t *testing.T) {
	keys := protocol.KeyStatus{}
	keys.Active[0] = 0xa90f9680
	keys.Active[3] = 0x25c8d4f4
	keys.Revoked[1] = 0x56f91b86

	m := NewMockTransport()
	m.responses[protocol.CmdSLCRead] = &protocol.Response{
		Result: []byte{byte(protocol.SLCConfigurationLocked)},
		Data:   protocol.EncodeKeyStatus(keys),
	}
	s := New(m)
	ctx := context.Background()

	st, err := s.SLCStatus(ctx)
	if err != nil {
		t.Fatalf("SLCStatus() error = %v", err)
	}
	if st.State != protocol.SLCConfigurationLocked {
		t.Errorf("State = %s", st.State)
	}
	if len(st.Active) != 2 || st.Active[0] != 0xa90f9680 || st.Active[1] != 0x25c8d4f4 {
		t.Errorf("Active = %x", st.Active)
	}
	if len(st.Revoked) != 1 || st.Revoked[0] != 0x56f91b86 {
		t.Errorf("Revoked = %x", st.Revoked)
	}

	if lc, err := s.Lifecycle(ctx); err != nil || lc != protocol.SLCConfigurationLocked {
		t.Errorf("Lifecycle() = %s, %v", lc, err)
	}
	if active, err := s.ActiveKeys(ctx); err != nil || len(active) != 2 {
		t.Errorf("ActiveKeys() = %x, %v", active, err)
	}
	if revoked, err := s.RevokedKeys(ctx); err != nil || len(revoked) != 1 {
		t.Errorf("RevokedKeys() = %x, %v", revoked, err)
	}
}

func TestDeviceInfo(t *testing.T) {
	devID := uuid.MustParse("bd4475db-f4c4-454e-a4f1-156d99d0d0e8")
	m := NewMockTransport()
	m.responses[protocol.CmdDeviceIdentifierRead] = &protocol.Response{
		Result: protocol.EncodeDeviceIdentifier(devID, "imx8mq"),
	}
	m.responses[protocol.CmdBootloaderVersionRead] = &protocol.Response{Result: []byte("v1.2.3")}
	m.responses[protocol.CmdDeviceReadCaps] = &protocol.Response{
		Result: protocol.EncodeCapabilities(protocol.Capabilities{StreamBuffers: 2, StreamBufferSize: 4096, ChunkTransferMax: 4096}),
	}
	s := New(m)
	ctx := context.Background()

	id, err := s.Identify(ctx)
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if id.DeviceUUID != devID || id.BoardID != "imx8mq" {
		t.Errorf("Identify() = %+v", id)
	}

	if v, err := s.Version(ctx); err != nil || v != "1.2.3" {
		t.Errorf("Version() = %q, %v", v, err)
	}

	caps, err := s.Capabilities(ctx)
	if err != nil || caps.StreamBuffers != 2 || caps.ChunkTransferMax != 4096 {
		t.Errorf("Capabilities() = %+v, %v", caps, err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Errorf("Reset() error = %v", err)
	}
	if len(m.sent(protocol.CmdDeviceReset)) != 1 {
		t.Error("reset not sent")
	}
}

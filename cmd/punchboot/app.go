package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/moffa90/go-punchboot/internal/journal"
	"github.com/moffa90/go-punchboot/session"
	"github.com/moffa90/go-punchboot/transport"
)

const slcWarning = "WARNING: This is a permanent change, writing fuses can not be reverted. " +
	"This could brick your device.\n\nAre you sure?"

// app carries what every command needs: configuration, I/O and the hooks
// that reach a device.
type app struct {
	ctx    context.Context
	cfg    *Config
	logger *slog.Logger

	stdin  io.Reader
	in     *bufio.Reader
	stdout io.Writer
	stderr io.Writer

	// open connects to the configured device
	open func(ctx context.Context, opts transport.Options) (session.Transport, error)

	// listUSB enumerates attached devices
	listUSB func() ([]transport.Device, error)

	// waitUSB blocks until a device is attached
	waitUSB func(ctx context.Context, id uuid.UUID, interval time.Duration) (transport.Device, error)
}

func newApp(ctx context.Context, cfg *Config, logger *slog.Logger, stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		ctx:    ctx,
		cfg:    cfg,
		logger: logger,
		stdin:  stdin,
		in:     bufio.NewReader(stdin),
		stdout: stdout,
		stderr: stderr,
		open: func(ctx context.Context, opts transport.Options) (session.Transport, error) {
			return transport.Open(ctx, opts)
		},
		listUSB: transport.List,
		waitUSB: transport.Wait,
	}
}

func (a *app) transportOptions() (transport.Options, error) {
	t := a.cfg.Transport
	opts := transport.Options{
		Kind:       transport.Kind(t.Kind),
		SocketPath: t.Socket,
		SerialPort: t.SerialPort,
		Baud:       t.Baud,
		Timeout:    t.Timeout,
		Logger:     a.logger,
	}
	if t.DeviceUUID != "" {
		id, err := uuid.Parse(t.DeviceUUID)
		if err != nil {
			return opts, fmt.Errorf("%w: invalid device UUID %q", errUsage, t.DeviceUUID)
		}
		opts.DeviceUUID = id
	}
	if opts.Kind == transport.Socket && opts.DeviceUUID != uuid.Nil {
		return opts, fmt.Errorf("%w: It's not possible to address different devices over sockets", errUsage)
	}
	return opts, nil
}

func (a *app) connect(extra ...session.Option) (*session.Session, error) {
	opts, err := a.transportOptions()
	if err != nil {
		return nil, err
	}
	conn, err := a.open(a.ctx, opts)
	if err != nil {
		return nil, err
	}

	sopts := []session.Option{
		session.WithLogger(a.logger),
		session.WithEraseChunkBlocks(a.cfg.Erase.ChunkBlocks),
		session.WithConfirm(a.confirmAction),
	}
	return session.New(conn, append(sopts, extra...)...), nil
}

// withSession runs fn on a fresh session and closes it afterwards.
func (a *app) withSession(fn func(s *session.Session) error) error {
	s, err := a.connect()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// withAuditedSession is withSession with irreversible operations recorded
// in the journal, when one is configured.
func (a *app) withAuditedSession(fn func(s *session.Session) error) error {
	if a.cfg.Journal.Path == "" {
		return a.withSession(fn)
	}

	j, err := journal.Open(a.cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer j.Close()

	var device uuid.UUID
	onErr := func(err error) {
		a.logger.Error("journal append failed", "error", err)
	}
	audit := func(ev session.AuditEvent) {
		j.Auditor(device, onErr)(ev)
	}

	s, err := a.connect(session.WithAudit(audit))
	if err != nil {
		return err
	}
	defer s.Close()

	if id, err := s.Identify(a.ctx); err == nil {
		device = id.DeviceUUID
	} else {
		a.logger.Warn("could not identify device for the journal", "error", err)
	}
	return fn(s)
}

// confirmAction asks before an irreversible session operation.
func (a *app) confirmAction(action string) (bool, error) {
	if strings.HasPrefix(action, "slc") {
		return a.ask(slcWarning)
	}
	return a.ask("Are you sure?")
}

// ask prints prompt and reads a yes or no answer. Anything but yes declines.
func (a *app) ask(prompt string) (bool, error) {
	fmt.Fprintf(a.stdout, "%s [y/N]: ", prompt)
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			fmt.Fprintln(a.stdout)
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// readPassword prompts for a password, without echo on a terminal.
func (a *app) readPassword() (string, error) {
	fmt.Fprint(a.stderr, "Password: ")
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.bug.st/serial/enumerator"

	"github.com/moffa90/go-punchboot/protocol"
)

// Kind selects how a device is reached.
type Kind string

const (
	// USB finds an attached punchboot device by USB vendor and product id.
	USB Kind = "usb"

	// Socket connects to a unix domain socket, used by emulators.
	Socket Kind = "socket"

	// Serial opens a named serial port.
	Serial Kind = "serial"
)

// DefaultSocketPath is the socket used when none is configured.
const DefaultSocketPath = "/tmp/pb.sock"

// DefaultBaud is the serial link speed used when none is configured.
const DefaultBaud = 115200

// Options select and configure the device to open.
type Options struct {
	// Kind selects the link (default USB)
	Kind Kind

	// DeviceUUID selects a USB device by serial number (USB only)
	DeviceUUID uuid.UUID

	// SocketPath is the unix socket path (Socket only, default DefaultSocketPath)
	SocketPath string

	// SerialPort is the serial port name (Serial only)
	SerialPort string

	// Baud is the serial link speed (default DefaultBaud)
	Baud int

	// Timeout bounds every I/O (default DefaultTimeout)
	Timeout time.Duration

	// Logger receives debug output (optional)
	Logger *slog.Logger
}

// Device describes an attached punchboot device.
type Device struct {
	// UUID is the device UUID reported as the USB serial number
	UUID uuid.UUID

	// Port is the serial port name the device is reachable on
	Port string

	// Product is the USB product string
	Product string
}

// Open connects to exactly one device.
//
// Example:
//
//	conn, err := transport.Open(ctx, transport.Options{Kind: transport.Socket})
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
func Open(ctx context.Context, opts Options) (*Conn, error) {
	if opts.Baud <= 0 {
		opts.Baud = DefaultBaud
	}

	switch opts.Kind {
	case Socket:
		if opts.DeviceUUID != uuid.Nil {
			return nil, &protocol.Error{Op: "open", Kind: protocol.KindArgument,
				Err: errors.New("it's not possible to address different devices over sockets")}
		}
		path := opts.SocketPath
		if path == "" {
			path = DefaultSocketPath
		}
		return Dial(ctx, path, opts.Timeout, opts.Logger)

	case Serial:
		if opts.SerialPort == "" {
			return nil, &protocol.Error{Op: "open", Kind: protocol.KindArgument, Err: errors.New("serial port not set")}
		}
		return openPort(opts.SerialPort, opts)

	case USB, "":
		devices, err := List()
		if err != nil {
			return nil, err
		}
		dev, err := pick(devices, opts.DeviceUUID, opts.Logger)
		if err != nil {
			return nil, err
		}
		return openPort(dev.Port, opts)

	default:
		return nil, &protocol.Error{Op: "open", Kind: protocol.KindArgument, Err: fmt.Errorf("unknown transport %q", opts.Kind)}
	}
}

// Dial connects to a device emulator listening on a unix socket.
// A refused or missing socket is reported as protocol.ErrNotFound.
func Dial(ctx context.Context, path string, timeout time.Duration, logger *slog.Logger) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, &protocol.Error{Op: "connect", Kind: protocol.KindNotFound, Err: err}
	}
	return NewConn(nc, timeout, logger), nil
}

func openPort(name string, opts Options) (*Conn, error) {
	link, err := openSerial(name, opts.Baud)
	if err != nil {
		return nil, &protocol.Error{Op: "connect", Kind: protocol.KindNotFound, Err: err}
	}
	return NewConn(link, opts.Timeout, opts.Logger), nil
}

// List returns the attached punchboot devices, identified by the punchboot
// USB vendor and product ids.
func List() ([]Device, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, &protocol.Error{Op: "list devices", Kind: protocol.KindIO, Err: err}
	}

	var devices []Device
	for _, p := range ports {
		if !p.IsUSB || !matchID(p.VID, protocol.USBVendorID) || !matchID(p.PID, protocol.USBProductID) {
			continue
		}
		id, err := uuid.Parse(p.SerialNumber)
		if err != nil {
			continue
		}
		devices = append(devices, Device{UUID: id, Port: p.Name, Product: p.Product})
	}
	return devices, nil
}

// DefaultWaitInterval is how often Wait lists the attached devices.
const DefaultWaitInterval = time.Second

// Wait polls the attached USB devices until the one with the given UUID
// shows up, or any device when id is uuid.Nil. It is used after a reset or
// a boot, while the device re-enumerates. A zero interval selects
// DefaultWaitInterval. When ctx reaches its deadline the error is
// protocol.ErrTimeout.
//
// Example:
//
//	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
//	defer cancel()
//	dev, err := transport.Wait(ctx, id, 0)
func Wait(ctx context.Context, id uuid.UUID, interval time.Duration) (Device, error) {
	return wait(ctx, List, id, interval)
}

func wait(ctx context.Context, list func() ([]Device, error), id uuid.UUID, interval time.Duration) (Device, error) {
	if interval <= 0 {
		interval = DefaultWaitInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		devices, err := list()
		if err != nil {
			return Device{}, err
		}
		if d, err := pick(devices, id, nil); err == nil {
			return d, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Device{}, &protocol.Error{Op: "wait for device", Kind: protocol.KindTimeout, Err: ctx.Err()}
			}
			return Device{}, fmt.Errorf("cancelled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func matchID(hex string, want uint16) bool {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(hex), "0x"), 16, 16)
	return err == nil && uint16(v) == want
}

// pick selects the device to open. Without a UUID the first device is used.
func pick(devices []Device, id uuid.UUID, logger *slog.Logger) (Device, error) {
	if len(devices) == 0 {
		return Device{}, &protocol.Error{Op: "open", Kind: protocol.KindNotFound, Err: errors.New("no device attached")}
	}
	if id == uuid.Nil {
		if len(devices) > 1 && logger != nil {
			logger.Warn("more than one device is attached", "using", devices[0].UUID.String())
		}
		return devices[0], nil
	}
	for _, d := range devices {
		if d.UUID == id {
			return d, nil
		}
	}
	return Device{}, &protocol.Error{Op: "open", Kind: protocol.KindNotFound, Err: fmt.Errorf("device %s not attached", id)}
}

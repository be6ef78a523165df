// Package transport moves punchboot exchanges over a physical link.
//
// A Conn wraps a byte stream (USB CDC serial port, serial line, or the unix
// socket exposed by an emulator) and implements the command, stream out and
// stream in operations the session layer is built on.
//
// Every frame and data phase is bounded by the configured timeout or the
// context deadline, whichever is earlier. Expired deadlines surface as
// protocol.ErrTimeout, link failures as protocol.ErrIO, and a device that
// cannot be reached as protocol.ErrNotFound. Nothing is retried.
//
// # Opening a device
//
//	conn, err := transport.Open(ctx, transport.Options{
//	    Kind:       transport.USB,
//	    DeviceUUID: id,
//	    Timeout:    10 * time.Second,
//	})
//
// Use List to enumerate attached devices.
package transport

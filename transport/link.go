package transport

import (
	"fmt"
	"os"
	"time"

	"go.bug.st/serial"
)

// serialLink adapts a serial port to the deadline based I/O used by Conn.
// A read that times out returns os.ErrDeadlineExceeded.
type serialLink struct {
	port     serial.Port
	deadline time.Time
}

func openSerial(name string, baud int) (*serialLink, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	// USB CDC ACM: assert DTR/RTS so the device starts talking.
	_ = port.SetDTR(true)
	_ = port.SetRTS(true)
	_ = port.ResetInputBuffer()

	return &serialLink{port: port}, nil
}

func (l *serialLink) SetDeadline(t time.Time) error {
	l.deadline = t
	return nil
}

func (l *serialLink) Read(p []byte) (int, error) {
	timeout := serial.NoTimeout
	if !l.deadline.IsZero() {
		timeout = time.Until(l.deadline)
		if timeout <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
	}
	if err := l.port.SetReadTimeout(timeout); err != nil {
		return 0, err
	}
	n, err := l.port.Read(p)
	if n == 0 && err == nil {
		return 0, os.ErrDeadlineExceeded
	}
	return n, err
}

func (l *serialLink) Write(p []byte) (int, error) {
	return l.port.Write(p)
}

func (l *serialLink) Close() error {
	return l.port.Close()
}

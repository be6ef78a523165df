package session

import "time"

// ProgressFunc reports the progress of a chunked operation.
// total is the amount of work, remaining what is left before the next step.
// The final call always reports remaining == 0.
//
// Example:
//
//	err := s.Erase(ctx, part, func(total, remaining uint64) {
//	    fmt.Printf("\rErasing %d/%d", total-remaining, total)
//	})
type ProgressFunc func(total, remaining uint64)

// ConfirmFunc is asked before an irreversible operation is sent to the device.
// It returns false to abort the operation.
type ConfirmFunc func(action string) (bool, error)

// AuditEvent describes one irreversible operation issued by the session.
type AuditEvent struct {
	// Action names the operation, e.g. "slc configure" or "slc revoke key"
	Action string

	// Key is the key id for revocations, zero otherwise
	Key uint32

	// Time is when the command was issued
	Time time.Time

	// Err is the outcome; nil on success
	Err error
}

// AuditFunc receives an AuditEvent after every irreversible operation,
// whether it succeeded or not.
type AuditFunc func(AuditEvent)

// Logger is an optional logging interface that can be provided to the session.
// *slog.Logger satisfies it.
//
// Example:
//
//	s := session.New(conn, session.WithLogger(slog.Default()))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...any)

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...any)

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...any)
}

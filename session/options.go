package session

// Config holds the session configuration.
type Config struct {
	// Logger is used for logging operations (optional)
	Logger Logger

	// EraseChunkBlocks is the largest number of blocks erased by one device call.
	// Default is 64 blocks (256 KiB on 4 KiB sector NOR flash)
	EraseChunkBlocks uint32

	// HashChunkSize is the read size used while hashing verify input.
	// Default is 1 MiB
	HashChunkSize int

	// Confirm is asked before irreversible SLC operations (optional)
	Confirm ConfirmFunc

	// Audit receives every irreversible SLC operation (optional)
	Audit AuditFunc
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		EraseChunkBlocks: 64,
		HashChunkSize:    1024 * 1024,
	}
}

// Option is a functional option for configuring the Session.
type Option func(*Config)

// WithLogger sets a logger for session operations.
//
// Example:
//
//	s := session.New(conn, session.WithLogger(slog.Default()))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithEraseChunkBlocks sets the number of blocks erased per device call.
// Zero is ignored.
//
// Example:
//
//	s := session.New(conn, session.WithEraseChunkBlocks(16))
func WithEraseChunkBlocks(blocks uint32) Option {
	return func(c *Config) {
		if blocks > 0 {
			c.EraseChunkBlocks = blocks
		}
	}
}

// WithHashChunkSize sets the read size used by Verify. Values below 1 are ignored.
func WithHashChunkSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.HashChunkSize = size
		}
	}
}

// WithConfirm sets the function asked before irreversible SLC operations.
// Without it, those operations require force.
//
// Example:
//
//	s := session.New(conn, session.WithConfirm(func(action string) (bool, error) {
//	    return promptYesNo(action)
//	}))
func WithConfirm(confirm ConfirmFunc) Option {
	return func(c *Config) {
		c.Confirm = confirm
	}
}

// WithAudit sets the function notified of every irreversible SLC operation.
func WithAudit(audit AuditFunc) Option {
	return func(c *Config) {
		c.Audit = audit
	}
}

// Package session provides the high-level API for controlling a punchboot device.
//
// # Overview
//
// A Session is bound to one Transport and issues one request at a time:
//   - Authentication with a password or a signed token
//   - Partition listing, erase, write, read and verify
//   - Boot selection, booting a partition or a RAM image
//   - Security life cycle (SLC) transitions and key revocation
//   - Board specific commands
//
// # Basic Usage
//
//	conn, err := transport.Open(ctx, transport.Options{Kind: transport.USB})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	s := session.New(conn)
//	defer s.Close()
//
//	if err := s.Authenticate(ctx, "secret"); err != nil {
//	    log.Fatal(err)
//	}
//
//	parts, err := s.ListPartitions(ctx)
//
// # Erase Progress
//
// Erase runs in groups of blocks and reports progress before each group:
//
//	err := s.Erase(ctx, part, func(total, remaining uint64) {
//	    fmt.Printf("\rErasing %d/%d", total-remaining, total)
//	})
//
// # Irreversible Operations
//
// Configure, Lock, EndOfLife and RevokeKey cannot be undone. They run only
// with force set or after the ConfirmFunc approves them:
//
//	s := session.New(conn,
//	    session.WithConfirm(askUser),
//	    session.WithAudit(journal.Record),
//	)
//
// # Identifiers
//
// Key and board command ids are given as an Identifier, either numeric or
// by name:
//
//	s.RevokeKey(ctx, session.ID(0xa90f9680), false)
//	s.RunCommand(ctx, session.Name("reset"), nil)
//
// # Error Handling
//
// Device and transport failures are *protocol.Error values and are returned
// unchanged. Compare with the protocol sentinels:
//
//	if errors.Is(err, protocol.ErrNotAuthenticated) {
//	    // authenticate first
//	}
//
// The session itself reports protocol.ErrNotFound for partitions missing from
// the partition table and protocol.ErrArgument for values that do not fit
// the wire format. No operation is ever retried.
package session

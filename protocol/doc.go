// Package protocol implements the punchboot bootloader wire protocol.
//
// This package provides functions to build command exchanges, encode and decode
// frames, and parse response payloads according to the punchboot "PBL0" wire format.
//
// # Protocol Overview
//
// Every exchange starts with a fixed size command frame answered by a result frame:
//
//	Command: [MAGIC(4)][CMD(1)][RESERVED(3)][REQUEST(504)]
//	Result:  [MAGIC(4)][RESULT_CODE(1)][RESERVED(3)][RESPONSE(504)]
//
// Where:
//   - MAGIC = 0x50424c30 ("PBL0", little-endian)
//   - RESULT_CODE = zero on success, a negated error Kind otherwise
//
// Some commands continue with a payload phase (authentication data, board
// command arguments, stream buffers) and/or a data phase (partition table,
// key status, stream reads), each terminated by a further result frame.
// A Request describes the full shape of one such exchange.
//
// # Request Builders
//
// Use the Build* functions to create requests:
//
//	req := protocol.BuildEraseRequest(part, 0, 64)
//	req, err := protocol.BuildAuthenticateRequest(protocol.AuthPassword, 0, []byte(pw))
//	// ... etc
//
// # Response Parsers
//
// Use the Parse* functions for command specific data:
//
//	caps, err := protocol.ParseCapabilitiesResponse(resp.Result)
//	entries, err := protocol.ParsePartitionTable(resp.Data)
//
// # Error Handling
//
// Non-zero result codes map to an *Error with a Kind. Compare with the
// sentinel values using errors.Is:
//
//	if errors.Is(err, protocol.ErrNotAuthenticated) {
//	    // authenticate first
//	}
//
// # Identifiers
//
// Symbolic key and board command names are sent as their ID:
//
//	protocol.ID("kernel") // 0xec103b08
package protocol

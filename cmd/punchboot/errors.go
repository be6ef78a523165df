package main

import (
	"errors"

	"github.com/moffa90/go-punchboot/protocol"
	"github.com/moffa90/go-punchboot/session"
)

var kindMessages = map[protocol.Kind]string{
	protocol.KindGeneric:          "Generic error",
	protocol.KindAuthentication:   "Authentication failed",
	protocol.KindNotAuthenticated: "Session requires authentication",
	protocol.KindCommand:          "Command failed",
	protocol.KindPartVerify:       "Partition verification failed",
	protocol.KindPartNotBootable:  "Partition is not bootable",
	protocol.KindNoMemory:         "Out of memory",
	protocol.KindTransfer:         "Transfer",
	protocol.KindTimeout:          "Timeout",
	protocol.KindSignature:        "Signature verifcation failed",
	protocol.KindMem:              "Memory",
	protocol.KindArgument:         "Bad argument",
	protocol.KindNotFound:         "Could not connect to device",
	protocol.KindNotSupported:     "Command not supported",
	protocol.KindKeyRevoked:       "Key is revoked",
	protocol.KindIO:               "I/O error",
}

// errorMessage returns the one line shown to the user for err.
// Device and transport failures map to a fixed message per kind; anything
// else is printed as is.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrNotConfirmed):
		return "Aborted"
	case !protocol.IsProtocolError(err):
		return err.Error()
	}
	if msg, ok := kindMessages[protocol.KindOf(err)]; ok {
		return msg
	}
	return kindMessages[protocol.KindGeneric]
}

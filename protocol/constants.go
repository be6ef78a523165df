package protocol

// ProtocolVersion is the punchboot wire format revision implemented by this library.
const ProtocolVersion = "PBL0"

// Frame structure constants.
const (
	// Magic is present in every command and result header ("PBL0")
	Magic = 0x50424c30

	// FrameSize is the size in bytes of a command or a result frame:
	// MAGIC(4) + CMD/RESULT(1) + RESERVED(3) + PAYLOAD(504)
	FrameSize = 512

	// FrameHeaderSize is the number of bytes before the payload
	FrameHeaderSize = 8

	// MaxRequestSize is the maximum request payload embedded in a command
	MaxRequestSize = FrameSize - FrameHeaderSize

	// MaxResponseSize is the maximum response payload embedded in a result
	MaxResponseSize = FrameSize - FrameHeaderSize
)

// Command is a punchboot command code.
type Command uint8

// Command codes, in wire order.
const (
	CmdInvalid Command = iota
	CmdDeviceReset
	CmdDeviceIdentifierRead
	CmdDeviceReadCaps
	CmdSLCSetConfiguration
	CmdSLCSetConfigurationLock
	CmdSLCSetEOL
	CmdSLCRevokeKey
	CmdSLCRead
	CmdBootloaderVersionRead
	CmdPartTableRead
	CmdPartTableInstall
	CmdPartVerify
	CmdPartActivate
	CmdPartBPAKRead
	CmdPartErase
	CmdAuthenticate
	CmdAuthSetPassword
	CmdStreamInitialize
	CmdStreamPrepareBuffer
	CmdStreamWriteBuffer
	CmdStreamFinalize
	CmdBootPart
	CmdBootBPAK
	CmdBoardCommand
	CmdBoardStatusRead
	CmdStreamReadBuffer
	CmdPartResize
	CmdBootStatus
)

var commandNames = [...]string{
	CmdInvalid:                 "invalid",
	CmdDeviceReset:             "device reset",
	CmdDeviceIdentifierRead:    "device identifier read",
	CmdDeviceReadCaps:          "device read caps",
	CmdSLCSetConfiguration:     "slc set configuration",
	CmdSLCSetConfigurationLock: "slc set configuration lock",
	CmdSLCSetEOL:               "slc set eol",
	CmdSLCRevokeKey:            "slc revoke key",
	CmdSLCRead:                 "slc read",
	CmdBootloaderVersionRead:   "bootloader version read",
	CmdPartTableRead:           "partition table read",
	CmdPartTableInstall:        "partition table install",
	CmdPartVerify:              "partition verify",
	CmdPartActivate:            "partition activate",
	CmdPartBPAKRead:            "partition bpak read",
	CmdPartErase:               "partition erase",
	CmdAuthenticate:            "authenticate",
	CmdAuthSetPassword:         "auth set password",
	CmdStreamInitialize:        "stream initialize",
	CmdStreamPrepareBuffer:     "stream prepare buffer",
	CmdStreamWriteBuffer:       "stream write buffer",
	CmdStreamFinalize:          "stream finalize",
	CmdBootPart:                "boot partition",
	CmdBootBPAK:                "boot bpak",
	CmdBoardCommand:            "board command",
	CmdBoardStatusRead:         "board status read",
	CmdStreamReadBuffer:        "stream read buffer",
	CmdPartResize:              "partition resize",
	CmdBootStatus:              "boot status",
}

// String returns the human-readable command name.
func (c Command) String() string {
	if int(c) < len(commandNames) {
		return commandNames[c]
	}
	return "unknown command"
}

// RequiresAuth reports whether the device demands an authenticated session
// before executing c. Only identification and authentication are open.
func (c Command) RequiresAuth() bool {
	switch c {
	case CmdDeviceIdentifierRead, CmdAuthenticate:
		return false
	default:
		return true
	}
}

// Authentication methods.
const (
	AuthInvalid   = 0x00
	AuthAsymToken = 0x01
	AuthPassword  = 0x02
)

// Partition flag bits as reported in the partition table.
const (
	PartFlagBootable         = 1 << 0
	PartFlagOTP              = 1 << 1
	PartFlagWritable         = 1 << 2
	PartFlagEraseBeforeWrite = 1 << 3
	PartFlagReadable         = 1 << 6
)

// Structure sizes used by the multi-phase exchanges.
const (
	// PartitionEntrySize is the size of one partition table entry
	PartitionEntrySize = 128

	// PartitionDescriptionSize is the description field size, NUL included
	PartitionDescriptionSize = 37

	// KeyStatusSize is the size of the key status block following an SLC read
	KeyStatusSize = 128

	// MaxKeySlots is the number of active and revoked key slots
	MaxKeySlots = 16

	// AuthDataSize is the padded size of authentication data and board command arguments
	AuthDataSize = 1024

	// BoardResponseBufferSize is the response size the host offers board commands
	BoardResponseBufferSize = 4096

	// BoardStatusBufferSize is the largest board status text accepted
	BoardStatusBufferSize = 512

	// BPAKHeaderSize is the size of a BPAK header as moved on the wire
	BPAKHeaderSize = 4096

	// BoardIDSize is the size of the board id string in the device identifier
	BoardIDSize = 16

	// BootStatusMessageSize is the size of the optional boot status message
	BootStatusMessageSize = 16
)

// USB identity of punchboot devices. The USB serial number string carries the device UUID.
const (
	USBVendorID  = 0x1209
	USBProductID = 0x2019
)

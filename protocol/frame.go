package protocol

import (
	"encoding/binary"
	"fmt"
)

// EncodeCommand constructs a command frame.
//
// Frame structure (FrameSize bytes):
//
//	[MAGIC(4)][CMD(1)][RESERVED(3)][REQUEST(504)]
func EncodeCommand(cmd Command, args []byte) ([]byte, error) {
	if len(args) > MaxRequestSize {
		return nil, fmt.Errorf("request too large: %d bytes, maximum is %d", len(args), MaxRequestSize)
	}

	frame := make([]byte, FrameSize)
	binary.LittleEndian.PutUint32(frame[0:4], Magic)
	frame[4] = byte(cmd)
	copy(frame[FrameHeaderSize:], args)

	return frame, nil
}

// DecodeCommand validates a command frame and returns the command code and
// its request area.
func DecodeCommand(frame []byte) (Command, []byte, error) {
	if err := checkFrame(frame); err != nil {
		return CmdInvalid, nil, err
	}
	return Command(frame[4]), frame[FrameHeaderSize:], nil
}

// EncodeResult constructs a result frame. code is the wire result code, that
// is zero or a negated Kind.
//
// Frame structure (FrameSize bytes):
//
//	[MAGIC(4)][RESULT_CODE(1)][RESERVED(3)][RESPONSE(504)]
func EncodeResult(code int8, response []byte) ([]byte, error) {
	if len(response) > MaxResponseSize {
		return nil, fmt.Errorf("response too large: %d bytes, maximum is %d", len(response), MaxResponseSize)
	}

	frame := make([]byte, FrameSize)
	binary.LittleEndian.PutUint32(frame[0:4], Magic)
	frame[4] = byte(code)
	copy(frame[FrameHeaderSize:], response)

	return frame, nil
}

// DecodeResult validates a result frame and returns the result code and the
// response area.
func DecodeResult(frame []byte) (int8, []byte, error) {
	if err := checkFrame(frame); err != nil {
		return 0, nil, err
	}
	return int8(frame[4]), frame[FrameHeaderSize:], nil
}

// ResultCode returns the wire result code reported for err: zero for nil,
// the negated Kind otherwise.
func ResultCode(err error) int8 {
	return -int8(KindOf(err))
}

func checkFrame(frame []byte) error {
	if len(frame) != FrameSize {
		return fmt.Errorf("frame length mismatch: got %d bytes, expected %d", len(frame), FrameSize)
	}
	if magic := binary.LittleEndian.Uint32(frame[0:4]); magic != Magic {
		return fmt.Errorf("invalid magic: got 0x%08X, expected 0x%08X", magic, uint32(Magic))
	}
	return nil
}

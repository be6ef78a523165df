package bpak

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Validation errors.
var (
	ErrBadMagic     = errors.New("bpak: bad magic")
	ErrBadAlignment = errors.New("bpak: part is not aligned")
	ErrMetaBounds   = errors.New("bpak: metadata out of bounds")
	ErrNoHashKind   = errors.New("bpak: hash kind not set")
)

// HasMagic reports whether b starts with the BPAK header magic.
// Inputs shorter than four bytes never match.
func HasMagic(b []byte) bool {
	return len(b) >= 4 && binary.LittleEndian.Uint32(b[0:4]) == Magic
}

// Parse decodes and validates a header from the first HeaderSize bytes of b.
//
// Validation rules:
//   - the magic must match
//   - every used part must have size + padding aligned to PartAlign
//   - every used metadata record must lie within the metadata area
//   - a hash kind must be set
//
// Example:
//
//	hdr, err := bpak.Parse(image)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d parts, hash %s\n", len(hdr.Parts), hdr.HashKind)
func Parse(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("header too short: got %d bytes, expected %d", len(b), HeaderSize)
	}
	if !HasMagic(b) {
		return nil, ErrBadMagic
	}

	h := &Header{}

	for i := 0; i < MaxMeta; i++ {
		e := b[metaOffset+i*metaEntrySize:]
		m := Meta{
			ID:        binary.LittleEndian.Uint32(e[0:4]),
			Size:      binary.LittleEndian.Uint16(e[4:6]),
			Offset:    binary.LittleEndian.Uint16(e[6:8]),
			PartIDRef: binary.LittleEndian.Uint32(e[8:12]),
		}
		if m.ID == 0 {
			break
		}
		if int(m.Size)+int(m.Offset) > MetadataBytes {
			return nil, fmt.Errorf("%w: meta 0x%08x", ErrMetaBounds, m.ID)
		}
		h.Meta = append(h.Meta, m)
	}

	for i := 0; i < MaxParts; i++ {
		e := b[partOffset+i*partEntrySize:]
		p := Part{
			ID:            binary.LittleEndian.Uint32(e[0:4]),
			Size:          binary.LittleEndian.Uint64(e[4:12]),
			Offset:        binary.LittleEndian.Uint64(e[12:20]),
			TransportSize: binary.LittleEndian.Uint64(e[20:28]),
			PadBytes:      binary.LittleEndian.Uint16(e[28:30]),
			Flags:         e[30],
		}
		if p.ID == 0 {
			break
		}
		if (p.Size+uint64(p.PadBytes))%PartAlign != 0 {
			return nil, fmt.Errorf("%w: part 0x%08x", ErrBadAlignment, p.ID)
		}
		h.Parts = append(h.Parts, p)
	}

	copy(h.Metadata[:], b[metadataOffset:metadataOffset+MetadataBytes])

	h.HashKind = HashKind(b[hashKindOffset])
	if h.HashKind == HashInvalid {
		return nil, ErrNoHashKind
	}
	h.SignatureKind = SignatureKind(b[signatureKindOffset])
	h.Alignment = binary.LittleEndian.Uint16(b[alignmentOffset:])
	copy(h.PayloadHash[:], b[payloadHashOffset:payloadHashOffset+PayloadHashSize])
	h.KeyID = binary.LittleEndian.Uint32(b[keyIDOffset:])
	h.KeystoreID = binary.LittleEndian.Uint32(b[keystoreIDOffset:])

	sigSize := int(binary.LittleEndian.Uint16(b[signatureSizeOffset:]))
	if sigSize > SignatureMaxBytes {
		sigSize = SignatureMaxBytes
	}
	h.Signature = append([]byte(nil), b[signatureOffset:signatureOffset+sigSize]...)

	return h, nil
}

// Valid reports whether b starts with a valid header.
func Valid(b []byte) bool {
	_, err := Parse(b)
	return err == nil
}

// ParseReader reads HeaderSize bytes from r and parses them.
func ParseReader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	return Parse(buf)
}

// ParseFile parses the header at the start of the file at path.
func ParseFile(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseReader(f)
}

// Encode serialises h into a HeaderSize byte buffer.
// The result is not signed; Signature is copied as is.
func (h *Header) Encode() ([]byte, error) {
	if len(h.Meta) > MaxMeta {
		return nil, fmt.Errorf("too many meta records: %d, maximum is %d", len(h.Meta), MaxMeta)
	}
	if len(h.Parts) > MaxParts {
		return nil, fmt.Errorf("too many parts: %d, maximum is %d", len(h.Parts), MaxParts)
	}
	if len(h.Signature) > SignatureMaxBytes {
		return nil, fmt.Errorf("signature too large: %d bytes", len(h.Signature))
	}

	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], Magic)

	for i, m := range h.Meta {
		e := b[metaOffset+i*metaEntrySize:]
		binary.LittleEndian.PutUint32(e[0:4], m.ID)
		binary.LittleEndian.PutUint16(e[4:6], m.Size)
		binary.LittleEndian.PutUint16(e[6:8], m.Offset)
		binary.LittleEndian.PutUint32(e[8:12], m.PartIDRef)
	}

	for i, p := range h.Parts {
		e := b[partOffset+i*partEntrySize:]
		binary.LittleEndian.PutUint32(e[0:4], p.ID)
		binary.LittleEndian.PutUint64(e[4:12], p.Size)
		binary.LittleEndian.PutUint64(e[12:20], p.Offset)
		binary.LittleEndian.PutUint64(e[20:28], p.TransportSize)
		binary.LittleEndian.PutUint16(e[28:30], p.PadBytes)
		e[30] = p.Flags
	}

	copy(b[metadataOffset:], h.Metadata[:])
	b[hashKindOffset] = byte(h.HashKind)
	b[signatureKindOffset] = byte(h.SignatureKind)
	binary.LittleEndian.PutUint16(b[alignmentOffset:], h.Alignment)
	copy(b[payloadHashOffset:], h.PayloadHash[:])
	binary.LittleEndian.PutUint32(b[keyIDOffset:], h.KeyID)
	binary.LittleEndian.PutUint32(b[keystoreIDOffset:], h.KeystoreID)
	copy(b[signatureOffset:], h.Signature)
	binary.LittleEndian.PutUint16(b[signatureSizeOffset:], uint16(len(h.Signature)))

	return b, nil
}

package bpak

// Header layout constants.
const (
	// Magic identifies a BPAK header
	Magic = 0x42504132

	// HeaderSize is the size of an encoded header in bytes
	HeaderSize = 4096

	// MaxMeta is the number of metadata descriptor slots
	MaxMeta = 32

	// MaxParts is the number of part descriptor slots
	MaxParts = 32

	// MetadataBytes is the size of the metadata area
	MetadataBytes = 1920

	// PartAlign is the alignment every part (size + padding) must satisfy
	PartAlign = 512

	// PayloadHashSize is the size of the payload hash field
	PayloadHashSize = 64

	// SignatureMaxBytes is the size of the signature field
	SignatureMaxBytes = 512
)

// Field offsets within the header.
const (
	metaOffset          = 8
	metaEntrySize       = 16
	partOffset          = metaOffset + MaxMeta*metaEntrySize
	partEntrySize       = 32
	metadataOffset      = partOffset + MaxParts*partEntrySize
	hashKindOffset      = metadataOffset + MetadataBytes
	signatureKindOffset = hashKindOffset + 1
	alignmentOffset     = hashKindOffset + 2
	payloadHashOffset   = hashKindOffset + 4
	keyIDOffset         = payloadHashOffset + PayloadHashSize
	keystoreIDOffset    = keyIDOffset + 4
	signatureOffset     = keystoreIDOffset + 4 + 42
	signatureSizeOffset = signatureOffset + SignatureMaxBytes
)

// Part flags.
const (
	// FlagExcludeFromHash marks a part that is not covered by the payload hash
	FlagExcludeFromHash = 1 << 0

	// FlagTransport marks a part stored in its transport encoding
	FlagTransport = 1 << 1
)

// HashKind is the payload hash algorithm.
type HashKind uint8

// Hash kinds.
const (
	HashInvalid HashKind = iota
	HashSHA256
	HashSHA384
	HashSHA512
)

func (h HashKind) String() string {
	switch h {
	case HashSHA256:
		return "sha256"
	case HashSHA384:
		return "sha384"
	case HashSHA512:
		return "sha512"
	default:
		return "Unknown"
	}
}

// SignatureKind is the header signature algorithm.
type SignatureKind uint8

// Signature kinds.
const (
	SignInvalid SignatureKind = iota
	SignRSA4096
	SignPrime256v1
	SignSECP384r1
	SignSECP521r1
)

func (s SignatureKind) String() string {
	switch s {
	case SignPrime256v1:
		return "prime256v1"
	case SignSECP384r1:
		return "secp384r1"
	case SignSECP521r1:
		return "secp521r1"
	case SignRSA4096:
		return "rsa4096"
	default:
		return "Unknown"
	}
}

// Header represents a decoded BPAK header.
type Header struct {
	// Meta holds the used metadata descriptors, in header order
	Meta []Meta

	// Parts holds the used part descriptors, in header order
	Parts []Part

	// Metadata is the raw metadata area referenced by Meta
	Metadata [MetadataBytes]byte

	HashKind      HashKind
	SignatureKind SignatureKind
	Alignment     uint16
	PayloadHash   [PayloadHashSize]byte
	KeyID         uint32
	KeystoreID    uint32
	Signature     []byte
}

// Meta describes one metadata record.
type Meta struct {
	ID     uint32
	Size   uint16
	Offset uint16

	// PartIDRef links the record to a part, zero if global
	PartIDRef uint32
}

// Part describes one payload part.
type Part struct {
	ID            uint32
	Size          uint64
	Offset        uint64
	TransportSize uint64
	PadBytes      uint16
	Flags         uint8
}

// StoredSize returns the number of bytes the part occupies in the image
// following the header.
func (p Part) StoredSize() uint64 {
	if p.Flags&FlagTransport != 0 {
		return p.TransportSize
	}
	return p.Size + uint64(p.PadBytes)
}

// PartOffset returns the offset of part id within an image, counted from the
// start of the header. Returns false if the part is not present.
func (h *Header) PartOffset(id uint32) (uint64, bool) {
	offset := uint64(HeaderSize)
	for _, p := range h.Parts {
		if p.ID == id {
			return offset, true
		}
		offset += p.StoredSize()
	}
	return 0, false
}

// ImageSize returns the size of a complete image: header plus every part.
func (h *Header) ImageSize() uint64 {
	size := uint64(HeaderSize)
	for _, p := range h.Parts {
		size += p.StoredSize()
	}
	return size
}

// MetaData returns the metadata bytes of record id. Returns false if absent.
func (h *Header) MetaData(id uint32) ([]byte, bool) {
	for _, m := range h.Meta {
		if m.ID == id {
			end := int(m.Offset) + int(m.Size)
			if end > MetadataBytes {
				return nil, false
			}
			return h.Metadata[m.Offset:end], true
		}
	}
	return nil, false
}

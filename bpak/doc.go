// Package bpak decodes BPAK container headers.
//
// # BPAK Format
//
// A BPAK image is a 4096 byte header followed by the payload parts:
//
//	[HEADER(4096)][PART 0][PART 1]...
//
// Header layout (little-endian):
//
//	[MAGIC(4)][RESERVED(4)][META(32*16)][PARTS(32*32)][METADATA(1920)]
//	[HASH_KIND(1)][SIGNATURE_KIND(1)][ALIGNMENT(2)][PAYLOAD_HASH(64)]
//	[KEY_ID(4)][KEYSTORE_ID(4)][RESERVED(42)][SIGNATURE(512)][SIGNATURE_SIZE(2)]
//
// Descriptor lists end at the first entry with a zero id. A part occupies
// size + pad_bytes bytes in the image, or transport_size bytes when it carries
// FlagTransport.
//
// # Usage
//
//	hdr, err := bpak.ParseFile("image.bpak")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, p := range hdr.Parts {
//	    off, _ := hdr.PartOffset(p.ID)
//	    fmt.Printf("part 0x%08x at %d, %d bytes\n", p.ID, off, p.StoredSize())
//	}
//
// The punchboot client only inspects headers; it never verifies signatures,
// that is done by the device.
package bpak

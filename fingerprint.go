package scion

import (
	"crypto/sha1" // skipcq: GSC-G505
	"encoding/binary"
	"fmt"
	"hash"
)

// FingerprintID is a 64-bit identifier taken from the leading bytes of a
// SHA-1 digest. It names a chain shape, not a security property.
type FingerprintID uint64

// AsHex renders the identifier as 16 lowercase hex digits.
func (id FingerprintID) AsHex() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// ChainFingerprint hashes the shape of an extension chain: per record
// the class, type, line count and body length, then the terminating
// layer-4 code. Body bytes stay out of the hash, so two chains with the
// same structure share an ID regardless of probe numbers or opaque
// contents.
func ChainFingerprint(extns []Extension, l4 L4ProtocolType) FingerprintID {
	h := sha1.New() // skipcq: GSC-G401
	for _, e := range extns {
		t := e.ExtnType()
		updateU8(h, uint8(t.Class))
		updateU8(h, t.Type)
		updateU8(h, e.NumLines())
		updateU32(h, uint32(len(e.Payload())))
	}
	updateU8(h, uint8(l4))
	return FingerprintID(binary.BigEndian.Uint64(h.Sum(nil)[:8]))
}

// Fingerprint computes the chain fingerprint and stores the identifier
// on the packet in both numeric and hex form for JSON output.
func (p *Packet) Fingerprint() FingerprintID {
	id := ChainFingerprint(p.Extns, p.L4)
	p.NumID = uint64(id)
	p.HexID = id.AsHex()
	return id
}

func updateU8(h hash.Hash, b uint8) {
	h.Write([]byte{b}) // skipcq: GSC-G104
}

func updateU32(h hash.Hash, i uint32) {
	binary.Write(h, binary.BigEndian, i) // skipcq: GSC-G104
}

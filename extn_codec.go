package scion

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

const (
	// LineLen is the unit in which header and extension lengths are
	// expressed on the wire.
	LineLen = 8

	// ExtnSubHdrLen counts the next-header, length and type bytes
	// prefixing every extension.
	ExtnSubHdrLen = 3

	// ExtnMaxLen is the largest on-wire size of a single extension,
	// reached when the length discriminant is at its maximum of 255.
	ExtnMaxLen = 256 * LineLen
)

var (
	ErrExtnsTooShort  = errors.New("buffer too short for extension chain")
	ErrChainInvariant = errors.New("extension chain breaks next-header linkage")
	ErrExtnNotFound   = errors.New("no extension with requested class and type")
	ErrBufferTooShort = errors.New("output buffer too short")
)

// ParseExtensions walks the extension region of a packet. nextHdr is the
// common header's next-header value and data starts right after the
// address and path region, bounded by the caller at the packet's total
// length. Records come back in wire order together with the terminating
// layer-4 code and the number of bytes consumed.
//
// On error nothing is retained: the partially decoded chain is dropped
// and the caller's packet stays without extensions.
func ParseExtensions(data []byte, nextHdr L4ProtocolType) ([]Extension, L4ProtocolType, int, error) {
	var extns []Extension
	s := cryptobyte.String(data)
	curr := nextHdr
	for !IsL4(curr) {
		offset := len(data) - len(s)

		var subHdr []byte
		if !s.ReadBytes(&subHdr, ExtnSubHdrLen) {
			return nil, 0, 0, fmt.Errorf("%w: extension %d subheader at offset %d", ErrExtnsTooShort, len(extns), offset)
		}
		next := L4ProtocolType(subHdr[0])
		numLines := subHdr[1]
		typ := subHdr[2]

		var body []byte
		if !s.ReadBytes(&body, (int(numLines)+1)*LineLen-ExtnSubHdrLen) {
			return nil, 0, 0, fmt.Errorf("%w: extension %d at offset %d wants %d lines, %d bytes left",
				ErrExtnsTooShort, len(extns), offset, int(numLines)+1, len(s))
		}

		extns = append(extns, newExtension(curr, typ, numLines, body))
		curr = next
	}
	return extns, curr, len(data) - len(s), nil
}

// newExtension materializes one decoded record. A path probe in its
// canonical single-line shape becomes a typed variant, everything else
// stays raw with the body copied out of the input buffer.
func newExtension(class L4ProtocolType, typ, numLines uint8, body []byte) Extension {
	if (ExtnType{class, typ}) == ExtnPathProbeType && numLines == 0 {
		return &PathProbeExtension{
			Ack:      body[0],
			ProbeNum: binary.BigEndian.Uint32(body[1:]),
		}
	}
	data := make([]byte, len(body))
	copy(data, body)
	return &RawExtension{Class: class, Type: typ, Data: data}
}

// ExtensionsLength returns the number of bytes the encoded chain
// occupies.
func ExtensionsLength(extns []Extension) int {
	var n int
	for _, e := range extns {
		n += extnWireLen(e)
	}
	return n
}

// extnWireLen is the padded on-wire size of one record.
func extnWireLen(e Extension) int {
	n := ExtnSubHdrLen + len(e.Payload())
	if rem := n % LineLen; rem != 0 {
		n += LineLen - rem
	}
	return n
}

// PackExtensions encodes the chain into a fresh buffer. l4 is the
// layer-4 code the last record's next-header names; an empty chain
// yields an empty buffer.
func PackExtensions(extns []Extension, l4 L4ProtocolType) ([]byte, error) {
	buf := make([]byte, ExtensionsLength(extns))
	if _, err := SerializeExtensionsTo(extns, l4, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// SerializeExtensionsTo encodes the chain into buf, which must hold at
// least ExtensionsLength(extns) bytes. Each record is emitted in order
// with its next-header byte derived from the successor's class, the last
// one naming l4. Returns the number of bytes written.
func SerializeExtensionsTo(extns []Extension, l4 L4ProtocolType, buf []byte) (int, error) {
	if len(extns) > 0 && !IsL4(l4) {
		return 0, fmt.Errorf("%w: terminal code %s is not a layer-4 protocol", ErrChainInvariant, l4)
	}
	offset := 0
	for i, e := range extns {
		if ExtnSubHdrLen+len(e.Payload()) > ExtnMaxLen {
			return 0, fmt.Errorf("%w: extension %d body exceeds the length discriminant", ErrChainInvariant, i)
		}
		wireLen := extnWireLen(e)
		if offset+wireLen > len(buf) {
			return 0, fmt.Errorf("%w: extension %d needs %d bytes at offset %d", ErrBufferTooShort, i, wireLen, offset)
		}

		next := l4
		if i < len(extns)-1 {
			next = extns[i+1].ExtnType().Class
		}
		packExtnSubHdr(buf[offset:], next, uint8(wireLen/LineLen-1), e.ExtnType().Type)

		n := copy(buf[offset+ExtnSubHdrLen:offset+wireLen], e.Payload())
		for j := offset + ExtnSubHdrLen + n; j < offset+wireLen; j++ {
			buf[j] = 0
		}
		offset += wireLen
	}
	return offset, nil
}

// packExtnSubHdr writes the three subheader bytes at buf[0:3].
func packExtnSubHdr(buf []byte, nextHdr L4ProtocolType, numLines, typ uint8) {
	buf[0] = uint8(nextHdr)
	buf[1] = numLines
	buf[2] = typ
}

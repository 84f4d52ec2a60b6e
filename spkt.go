package scion

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"

	"github.com/GioBar00/scion/internal/utils"
)

// CmnHdrLen is the size of the fixed common header.
const CmnHdrLen = 8

var (
	ErrCmnHdrTooShort = errors.New("buffer too short for common header")
	ErrCmnHdrInvalid  = errors.New("invalid common header")
)

// CommonHeader is the fixed 8-byte prefix of a packet. HdrLen counts
// 8-byte lines and covers the common header together with the address
// and path region, so the extension chain starts at HdrLen*LineLen.
// NextHdr names the class of the first extension, or the layer-4
// protocol when the packet carries none.
type CommonHeader struct {
	VerDstSrc uint16         `json:"ver_dst_src"`
	TotalLen  uint16         `json:"total_len"`
	HdrLen    uint8          `json:"hdr_len"`
	CurrIOF   uint8          `json:"curr_iof"`
	CurrOF    uint8          `json:"curr_of"`
	NextHdr   L4ProtocolType `json:"next_hdr"`
}

// PackVerDstSrc packs the version nibble and the two 6-bit address type
// codes into the first common header field.
func PackVerDstSrc(version, dstType, srcType uint8) uint16 {
	return uint16(version&0x0f)<<12 | uint16(dstType&0x3f)<<6 | uint16(srcType&0x3f)
}

// Version returns the 4-bit protocol version.
func (ch *CommonHeader) Version() uint8 {
	return uint8(ch.VerDstSrc >> 12)
}

// DstType returns the 6-bit destination address type code.
func (ch *CommonHeader) DstType() uint8 {
	return uint8(ch.VerDstSrc >> 6 & 0x3f)
}

// SrcType returns the 6-bit source address type code.
func (ch *CommonHeader) SrcType() uint8 {
	return uint8(ch.VerDstSrc & 0x3f)
}

// ExtnOffset returns the byte offset of the first extension.
func (ch *CommonHeader) ExtnOffset() int {
	return int(ch.HdrLen) * LineLen
}

// DecodeCommonHeader parses the fixed header at the start of data.
func DecodeCommonHeader(data []byte) (CommonHeader, error) {
	var ch CommonHeader
	s := cryptobyte.String(data)
	var verDstSrc, totalLen uint16
	var hdrLen, currIOF, currOF, nextHdr uint8
	if !s.ReadUint16(&verDstSrc) ||
		!s.ReadUint16(&totalLen) ||
		!s.ReadUint8(&hdrLen) ||
		!s.ReadUint8(&currIOF) ||
		!s.ReadUint8(&currOF) ||
		!s.ReadUint8(&nextHdr) {
		return ch, fmt.Errorf("%w: %d bytes", ErrCmnHdrTooShort, len(data))
	}
	ch = CommonHeader{
		VerDstSrc: verDstSrc,
		TotalLen:  totalLen,
		HdrLen:    hdrLen,
		CurrIOF:   currIOF,
		CurrOF:    currOF,
		NextHdr:   L4ProtocolType(nextHdr),
	}
	return ch, nil
}

// SerializeTo writes the 8 header bytes at buf[0:CmnHdrLen].
func (ch *CommonHeader) SerializeTo(buf []byte) error {
	if len(buf) < CmnHdrLen {
		return fmt.Errorf("%w: %d bytes for common header", ErrBufferTooShort, len(buf))
	}
	binary.BigEndian.PutUint16(buf[0:2], ch.VerDstSrc)
	binary.BigEndian.PutUint16(buf[2:4], ch.TotalLen)
	buf[4] = ch.HdrLen
	buf[5] = ch.CurrIOF
	buf[6] = ch.CurrOF
	buf[7] = uint8(ch.NextHdr)
	return nil
}

// Packet is the decoded view of a packet: the common header, the opaque
// address and path region, the extension chain in wire order, the
// terminating layer-4 code and the layer-4 payload. NumID and HexID are
// filled by Fingerprint.
type Packet struct {
	CmnHdr   CommonHeader   `json:"common_header"`
	AddrPath utils.Uint8Arr `json:"addr_path,omitempty"`
	Extns    []Extension    `json:"extensions,omitempty"`
	L4       L4ProtocolType `json:"l4"`
	Payload  utils.Uint8Arr `json:"payload,omitempty"`

	NumID uint64 `json:"num_id,omitempty"`
	HexID string `json:"hex_id,omitempty"`
}

// NextHdr returns the value the common header's next-header field must
// carry: the class of the first extension, or the layer-4 code when the
// chain is empty.
func (p *Packet) NextHdr() L4ProtocolType {
	if len(p.Extns) > 0 {
		return p.Extns[0].ExtnType().Class
	}
	return p.L4
}

// Length returns the encoded size of the packet.
func (p *Packet) Length() int {
	return CmnHdrLen + len(p.AddrPath) + ExtensionsLength(p.Extns) + len(p.Payload)
}

// DecodePacket parses a whole packet. The common header's total length
// bounds the packet; an address and path region the header cannot hold,
// or an extension chain running past the total length, fails with
// nothing attached to the returned packet.
func DecodePacket(data []byte) (*Packet, error) {
	ch, err := DecodeCommonHeader(data)
	if err != nil {
		return nil, err
	}
	extnOffset := ch.ExtnOffset()
	if extnOffset < CmnHdrLen {
		return nil, fmt.Errorf("%w: header of %d lines cannot hold the common header", ErrCmnHdrInvalid, ch.HdrLen)
	}
	if int(ch.TotalLen) < extnOffset || int(ch.TotalLen) > len(data) {
		return nil, fmt.Errorf("%w: total length %d outside [%d, %d]", ErrCmnHdrInvalid, ch.TotalLen, extnOffset, len(data))
	}

	extns, l4, read, err := ParseExtensions(data[extnOffset:ch.TotalLen], ch.NextHdr)
	if err != nil {
		return nil, err
	}

	p := &Packet{
		CmnHdr: ch,
		Extns:  extns,
		L4:     l4,
	}
	p.AddrPath = append([]byte(nil), data[CmnHdrLen:extnOffset]...)
	p.Payload = append([]byte(nil), data[extnOffset+read:ch.TotalLen]...)
	return p, nil
}

// SerializeTo encodes the packet into buf, which must hold Length()
// bytes. The header-length, total-length and next-header fields are
// derived from the in-memory contents, so the emitted bytes always
// satisfy the chain linkage no matter how the chain was edited.
func (p *Packet) SerializeTo(buf []byte) (int, error) {
	hdrBytes := CmnHdrLen + len(p.AddrPath)
	if hdrBytes%LineLen != 0 {
		return 0, fmt.Errorf("%w: address and path region of %d bytes breaks line alignment", ErrCmnHdrInvalid, len(p.AddrPath))
	}
	if hdrBytes/LineLen > 255 {
		return 0, fmt.Errorf("%w: address and path region of %d bytes overflows the header length", ErrCmnHdrInvalid, len(p.AddrPath))
	}
	if !IsL4(p.L4) {
		return 0, fmt.Errorf("%w: terminal code %s is not a layer-4 protocol", ErrChainInvariant, p.L4)
	}
	total := p.Length()
	if total > 0xffff {
		return 0, fmt.Errorf("%w: %d bytes overflow the total length", ErrCmnHdrInvalid, total)
	}
	if len(buf) < total {
		return 0, fmt.Errorf("%w: packet needs %d bytes", ErrBufferTooShort, total)
	}

	ch := p.CmnHdr
	ch.HdrLen = uint8(hdrBytes / LineLen)
	ch.TotalLen = uint16(total)
	ch.NextHdr = p.NextHdr()
	if err := ch.SerializeTo(buf); err != nil {
		return 0, err
	}
	copy(buf[CmnHdrLen:hdrBytes], p.AddrPath)

	n, err := SerializeExtensionsTo(p.Extns, p.L4, buf[hdrBytes:])
	if err != nil {
		return 0, err
	}
	copy(buf[hdrBytes+n:total], p.Payload)
	return total, nil
}

// Pack encodes the packet into a fresh buffer.
func (p *Packet) Pack() ([]byte, error) {
	buf := make([]byte, p.Length())
	if _, err := p.SerializeTo(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

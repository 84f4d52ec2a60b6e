package scion

import (
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// LayerTypeSCION is the gopacket layer type for the legacy packet
// format: common header, opaque address and path region, extension
// chain, layer-4 payload.
var LayerTypeSCION = gopacket.RegisterLayerType(
	1000,
	gopacket.LayerTypeMetadata{
		Name:    "SCION",
		Decoder: gopacket.DecodeFunc(decodeSCION),
	},
)

// SCION is the gopacket binding of the packet codec. DecodeFromBytes
// keeps the address and path region raw and materializes the extension
// chain; the bytes after the chain belong to the next layer.
type SCION struct {
	layers.BaseLayer
	CmnHdr   CommonHeader
	AddrPath []byte
	Extns    []Extension
	L4       L4ProtocolType
}

func (s *SCION) LayerType() gopacket.LayerType {
	return LayerTypeSCION
}

func (s *SCION) CanDecode() gopacket.LayerClass {
	return LayerTypeSCION
}

func (s *SCION) NextLayerType() gopacket.LayerType {
	switch s.L4 {
	case L4TCP:
		return layers.LayerTypeTCP
	case L4UDP:
		return layers.LayerTypeUDP
	}
	return gopacket.LayerTypePayload
}

func (s *SCION) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	p, err := DecodePacket(data)
	if err != nil {
		if errors.Is(err, ErrCmnHdrTooShort) || errors.Is(err, ErrExtnsTooShort) {
			df.SetTruncated()
		}
		return err
	}
	s.CmnHdr = p.CmnHdr
	s.AddrPath = p.AddrPath
	s.Extns = p.Extns
	s.L4 = p.L4
	hdrEnd := int(p.CmnHdr.TotalLen) - len(p.Payload)
	s.BaseLayer = layers.BaseLayer{
		Contents: data[:hdrEnd],
		Payload:  data[hdrEnd:p.CmnHdr.TotalLen],
	}
	return nil
}

// SerializeTo writes the common header, address and path region and
// extension chain in front of the buffer's current contents. With
// opts.FixLengths the header-length and total-length fields are
// recomputed from the serialized layout; the next-header field is
// always derived from the chain.
func (s *SCION) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	hdrBytes := CmnHdrLen + len(s.AddrPath)
	if hdrBytes%LineLen != 0 {
		return fmt.Errorf("%w: address and path region of %d bytes breaks line alignment", ErrCmnHdrInvalid, len(s.AddrPath))
	}
	if hdrBytes/LineLen > 255 {
		return fmt.Errorf("%w: address and path region of %d bytes overflows the header length", ErrCmnHdrInvalid, len(s.AddrPath))
	}
	if !IsL4(s.L4) {
		return fmt.Errorf("%w: terminal code %s is not a layer-4 protocol", ErrChainInvariant, s.L4)
	}
	extnLen := ExtensionsLength(s.Extns)
	payloadLen := len(b.Bytes())

	buf, err := b.PrependBytes(hdrBytes + extnLen)
	if err != nil {
		return err
	}

	s.CmnHdr.NextHdr = s.L4
	if len(s.Extns) > 0 {
		s.CmnHdr.NextHdr = s.Extns[0].ExtnType().Class
	}
	if opts.FixLengths {
		total := hdrBytes + extnLen + payloadLen
		if total > 0xffff {
			return fmt.Errorf("%w: %d bytes overflow the total length", ErrCmnHdrInvalid, total)
		}
		s.CmnHdr.HdrLen = uint8(hdrBytes / LineLen)
		s.CmnHdr.TotalLen = uint16(total)
	}
	if err := s.CmnHdr.SerializeTo(buf); err != nil {
		return err
	}
	copy(buf[CmnHdrLen:hdrBytes], s.AddrPath)

	_, err = SerializeExtensionsTo(s.Extns, s.L4, buf[hdrBytes:])
	return err
}

func decodeSCION(data []byte, pb gopacket.PacketBuilder) error {
	s := &SCION{}
	if err := s.DecodeFromBytes(data, pb); err != nil {
		return err
	}
	pb.AddLayer(s)
	return pb.NextDecoder(s.NextLayerType())
}

// Interface guards
var (
	_ gopacket.Layer             = (*SCION)(nil)
	_ gopacket.DecodingLayer     = (*SCION)(nil)
	_ gopacket.SerializableLayer = (*SCION)(nil)
)

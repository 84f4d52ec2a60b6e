package utils

import (
	"errors"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var ErrNoUDPLayer = errors.New("no UDP layer in packet")

// UDPPayload returns the UDP payload and destination port of a decoded
// frame, walking whatever link and network layers precede it. Frames
// without UDP report ErrNoUDPLayer.
func UDPPayload(pkt gopacket.Packet) ([]byte, uint16, error) {
	l := pkt.Layer(layers.LayerTypeUDP)
	if l == nil {
		return nil, 0, ErrNoUDPLayer
	}

	udp, ok := l.(*layers.UDP)
	if !ok {
		return nil, 0, ErrNoUDPLayer
	}
	return udp.Payload, uint16(udp.DstPort), nil
}

// ParseUDPPacket parses buf as a standalone UDP packet, for callers
// holding the transport bytes without the enclosing frame.
func ParseUDPPacket(buf []byte) (*layers.UDP, error) {
	udp := &layers.UDP{}
	if err := udp.DecodeFromBytes(buf, gopacket.NilDecodeFeedback); err != nil {
		return nil, err
	}
	return udp, nil
}

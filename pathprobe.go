package scion

import "encoding/binary"

// pathProbeLen is the probe body: one ack byte and a 4-byte probe number.
const pathProbeLen = 5

// PathProbeExtension is the end-to-end path probe, either a reachability
// request or the acknowledgment echoing it. Ack is carried as the raw
// wire byte; senders use 0 and 1 but other values survive a decode and
// encode round trip untouched. ProbeNum is kept in host order and
// converted to network order only on encode.
type PathProbeExtension struct {
	Ack      uint8  `json:"ack"`
	ProbeNum uint32 `json:"probe_num"`
}

// NewPathProbeExtension builds a probe record. On the wire it occupies a
// single line.
func NewPathProbeExtension(probeNum uint32, ack uint8) *PathProbeExtension {
	return &PathProbeExtension{
		Ack:      ack,
		ProbeNum: probeNum,
	}
}

func (e *PathProbeExtension) ExtnType() ExtnType {
	return ExtnPathProbeType
}

func (e *PathProbeExtension) NumLines() uint8 {
	return 0
}

// Payload lays out the probe body: the ack byte followed by the probe
// number in network order.
func (e *PathProbeExtension) Payload() []byte {
	body := make([]byte, pathProbeLen)
	body[0] = e.Ack
	binary.BigEndian.PutUint32(body[1:], e.ProbeNum)
	return body
}

// AddPathProbe appends a probe record to the packet's chain and returns
// it for further mutation.
func AddPathProbe(p *Packet, probeNum uint32, ack uint8) *PathProbeExtension {
	e := NewPathProbeExtension(probeNum, ack)
	p.AppendExtn(e)
	return e
}

// FindPathProbe returns the first probe record in the packet's chain.
// Packets without one report ErrExtnNotFound, an ordinary outcome for
// traffic not carrying probes. A record with the probe's class and type
// but a non-canonical length decodes as RawExtension and is not
// returned here.
func FindPathProbe(p *Packet) (*PathProbeExtension, error) {
	e, err := p.FindExtn(ExtnPathProbeType)
	if err != nil {
		return nil, err
	}
	probe, ok := e.(*PathProbeExtension)
	if !ok {
		return nil, ErrExtnNotFound
	}
	return probe, nil
}

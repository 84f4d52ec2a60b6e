package scion

import (
	"github.com/GioBar00/scion/internal/utils"
)

// Extension is one record of a packet's extension chain. Decoded records
// are either typed variants such as PathProbeExtension or RawExtension
// for everything without a dedicated type. The next-header byte linking
// a record to its successor is not part of the record: it is derived
// from the chain each time the chain is encoded.
type Extension interface {
	// ExtnType returns the class and type pair identifying the record.
	ExtnType() ExtnType

	// NumLines returns the length discriminant from the subheader: the
	// record occupies (NumLines()+1)*LineLen bytes on the wire.
	NumLines() uint8

	// Payload returns the record body as encoded, without the subheader
	// and without trailing padding.
	Payload() []byte
}

// RawExtension carries an extension of any class and type with its body
// kept verbatim. Records decoded from the wire hold a body that fills
// whole lines; hand-built records may hold any body and are zero-padded
// to the next line boundary when encoded.
type RawExtension struct {
	Class L4ProtocolType `json:"class"`
	Type  uint8          `json:"type"`
	Data  utils.Uint8Arr `json:"data,omitempty"`
}

func (e *RawExtension) ExtnType() ExtnType {
	return ExtnType{e.Class, e.Type}
}

func (e *RawExtension) NumLines() uint8 {
	return uint8((ExtnSubHdrLen+len(e.Data)+LineLen-1)/LineLen - 1)
}

func (e *RawExtension) Payload() []byte {
	return e.Data
}

// AppendExtn appends e at the tail of the packet's extension chain,
// leaving the rest of the chain in place.
func (p *Packet) AppendExtn(e Extension) {
	p.Extns = append(p.Extns, e)
}

// FindExtn returns the first record matching t, scanning from the head
// of the chain. When no record matches it returns ErrExtnNotFound; a
// packet without the extension is an ordinary outcome, not corruption.
func (p *Packet) FindExtn(t ExtnType) (Extension, error) {
	for _, e := range p.Extns {
		if e.ExtnType() == t {
			return e, nil
		}
	}
	return nil, ErrExtnNotFound
}

// RemoveExtn drops the first record matching t and keeps the order of
// the remaining records. It returns ErrExtnNotFound when no record
// matches.
func (p *Packet) RemoveExtn(t ExtnType) error {
	for i, e := range p.Extns {
		if e.ExtnType() == t {
			p.Extns = append(p.Extns[:i], p.Extns[i+1:]...)
			return nil
		}
	}
	return ErrExtnNotFound
}

// WalkExtns visits every record in chain order. A non-nil error from
// visit stops the walk and is returned as is.
func (p *Packet) WalkExtns(visit func(Extension) error) error {
	for _, e := range p.Extns {
		if err := visit(e); err != nil {
			return err
		}
	}
	return nil
}

// NumExtensions returns the number of records in the chain.
func (p *Packet) NumExtensions() int {
	return len(p.Extns)
}

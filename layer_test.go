package scion_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	. "github.com/GioBar00/scion"
)

var (
	testLayerAddrPath = []byte{0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10, 0x11}
	testLayerPayload  = []byte{0xDE, 0xAD, 0xBE, 0xEF}
)

// header of 2 lines, one probe record, SSP terminal
func testLayerBytes() []byte {
	var b []byte
	b = append(b, 0x00, 0x00, 0x00, 0x1C, 0x02, 0x00, 0x00, 0xDE)
	b = append(b, testLayerAddrPath...)
	b = append(b, 0x98, 0x00, 0x01, 0x01, 0x00, 0x00, 0x00, 0x07)
	b = append(b, testLayerPayload...)
	return b
}

type decodeFeedback struct {
	truncated bool
}

func (df *decodeFeedback) SetTruncated() {
	df.truncated = true
}

func TestSCIONDecodeFromBytes(t *testing.T) {
	data := testLayerBytes()

	s := &SCION{}
	if err := s.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		t.Fatalf("DecodeFromBytes error: %v", err)
	}

	if s.CmnHdr.TotalLen != 28 || s.CmnHdr.NextHdr != End2EndClass {
		t.Errorf("CmnHdr = %+v, want total 28 next %v", s.CmnHdr, End2EndClass)
	}
	if !bytes.Equal(s.AddrPath, testLayerAddrPath) {
		t.Errorf("AddrPath = %v, want %v", s.AddrPath, testLayerAddrPath)
	}
	if len(s.Extns) != 1 {
		t.Fatalf("decoded %v records, want 1", len(s.Extns))
	}
	probe, ok := s.Extns[0].(*PathProbeExtension)
	if !ok || probe.ProbeNum != 7 || probe.Ack != 1 {
		t.Errorf("Extns[0] = %+v, want probe 7 ack 1", s.Extns[0])
	}
	if s.L4 != L4SSP {
		t.Errorf("L4 = %v, want %v", s.L4, L4SSP)
	}
	if !bytes.Equal(s.LayerPayload(), testLayerPayload) {
		t.Errorf("LayerPayload() = %v, want %v", s.LayerPayload(), testLayerPayload)
	}
	if !bytes.Equal(s.LayerContents(), data[:24]) {
		t.Errorf("LayerContents() = %v, want header and chain bytes", s.LayerContents())
	}
}

func TestSCIONDecodeTruncated(t *testing.T) {
	data := testLayerBytes()

	df := &decodeFeedback{}
	s := &SCION{}
	if err := s.DecodeFromBytes(data[:5], df); !errors.Is(err, ErrCmnHdrTooShort) {
		t.Fatalf("DecodeFromBytes error = %v, want %v", err, ErrCmnHdrTooShort)
	}
	if !df.truncated {
		t.Error("SetTruncated not called for cut header")
	}

	df = &decodeFeedback{}
	cut := append([]byte(nil), data...)
	cut[2], cut[3] = 0x00, 0x14 // total length cuts the chain
	if err := s.DecodeFromBytes(cut, df); !errors.Is(err, ErrExtnsTooShort) {
		t.Fatalf("DecodeFromBytes error = %v, want %v", err, ErrExtnsTooShort)
	}
	if !df.truncated {
		t.Error("SetTruncated not called for cut chain")
	}
}

var mapNextLayerTypes = map[L4ProtocolType]gopacket.LayerType{
	L4TCP:  layers.LayerTypeTCP,
	L4UDP:  layers.LayerTypeUDP,
	L4SSP:  gopacket.LayerTypePayload,
	L4SCMP: gopacket.LayerTypePayload,
	L4None: gopacket.LayerTypePayload,
}

func TestSCIONNextLayerType(t *testing.T) {
	for l4, want := range mapNextLayerTypes {
		s := &SCION{L4: l4}
		if got := s.NextLayerType(); got != want {
			t.Errorf("NextLayerType() = %v for %v, want %v", got, l4, want)
		}
	}
}

func TestSCIONPacketDecode(t *testing.T) {
	pkt := gopacket.NewPacket(testLayerBytes(), LayerTypeSCION, gopacket.Default)
	if el := pkt.ErrorLayer(); el != nil {
		t.Fatalf("packet decode error: %v", el.Error())
	}

	layer := pkt.Layer(LayerTypeSCION)
	if layer == nil {
		t.Fatal("no SCION layer decoded")
	}
	s, ok := layer.(*SCION)
	if !ok {
		t.Fatalf("layer is %T, want *SCION", layer)
	}
	if s.L4 != L4SSP || len(s.Extns) != 1 {
		t.Errorf("layer = %v records terminal %v, want 1 record terminal %v", len(s.Extns), s.L4, L4SSP)
	}

	app := pkt.ApplicationLayer()
	if app == nil {
		t.Fatal("no payload layer decoded")
	}
	if !bytes.Equal(app.Payload(), testLayerPayload) {
		t.Errorf("payload = %v, want %v", app.Payload(), testLayerPayload)
	}
}

func TestSCIONSerialize(t *testing.T) {
	s := &SCION{
		AddrPath: testLayerAddrPath,
		Extns:    []Extension{NewPathProbeExtension(7, 1)},
		L4:       L4SSP,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, s, gopacket.Payload(testLayerPayload)); err != nil {
		t.Fatalf("SerializeLayers error: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), testLayerBytes()) {
		t.Fatalf("SerializeLayers = %#v, want %#v", buf.Bytes(), testLayerBytes())
	}

	if s.CmnHdr.TotalLen != 28 || s.CmnHdr.HdrLen != 2 {
		t.Errorf("CmnHdr = %+v after FixLengths, want total 28 over 2 lines", s.CmnHdr)
	}
}

func TestSCIONSerializeMisaligned(t *testing.T) {
	s := &SCION{AddrPath: make([]byte, 5), L4: L4TCP}
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, s)
	if !errors.Is(err, ErrCmnHdrInvalid) {
		t.Errorf("SerializeLayers error = %v, want %v", err, ErrCmnHdrInvalid)
	}
}

func TestSCIONDecodingLayerParser(t *testing.T) {
	s := &SCION{}
	payload := &gopacket.Payload{}
	parser := gopacket.NewDecodingLayerParser(LayerTypeSCION, s, payload)

	decoded := []gopacket.LayerType{}
	if err := parser.DecodeLayers(testLayerBytes(), &decoded); err != nil {
		t.Fatalf("DecodeLayers error: %v", err)
	}

	want := []gopacket.LayerType{LayerTypeSCION, gopacket.LayerTypePayload}
	if len(decoded) != len(want) || decoded[0] != want[0] || decoded[1] != want[1] {
		t.Fatalf("DecodeLayers = %v, want %v", decoded, want)
	}
	if !bytes.Equal(*payload, testLayerPayload) {
		t.Errorf("payload = %v, want %v", *payload, testLayerPayload)
	}
}

package scion

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// L4ProtocolType is a single-byte code carried in next-header fields.
// It names either a layer-4 protocol or an extension class: a next-header
// holding a layer-4 code terminates the extension chain, anything else
// announces one more extension of that class.
type L4ProtocolType uint8

const (
	L4None L4ProtocolType = 254
	L4SCMP L4ProtocolType = 1
	L4TCP  L4ProtocolType = 6
	L4UDP  L4ProtocolType = 17
	L4SSP  L4ProtocolType = 152

	HopByHopClass L4ProtocolType = 0
	End2EndClass  L4ProtocolType = 222
)

func (p L4ProtocolType) String() string {
	switch p {
	case L4None:
		return "None"
	case L4SCMP:
		return "SCMP"
	case L4TCP:
		return "TCP"
	case L4UDP:
		return "UDP"
	case L4SSP:
		return "SSP"
	case HopByHopClass:
		return "HopByHop"
	case End2EndClass:
		return "End2End"
	}
	return fmt.Sprintf("UNKNOWN (%d)", uint8(p))
}

// l4Protocols holds every code IsL4 recognizes. L4None is a real member:
// it terminates chains on packets without a layer-4 payload.
var l4Protocols = []L4ProtocolType{L4SCMP, L4TCP, L4UDP, L4SSP, L4None}

// IsL4 reports whether code names a layer-4 protocol rather than an
// extension class.
func IsL4(code L4ProtocolType) bool {
	return slices.Contains(l4Protocols, code)
}

// RegisterL4Proto adds code to the set recognized by IsL4. Surrounding
// protocols call this once at startup; the registry is not safe for
// concurrent mutation.
func RegisterL4Proto(code L4ProtocolType) {
	l4Protocols = append(l4Protocols, code)
	slices.Sort(l4Protocols)
	l4Protocols = slices.Compact(l4Protocols)
}

package scion

import "fmt"

// ExtnType identifies an extension: the class named by the predecessor's
// next-header field plus the type code from the extension's own subheader.
type ExtnType struct {
	Class L4ProtocolType
	Type  uint8
}

var (
	ExtnTracerouteType = ExtnType{HopByHopClass, 0}
	ExtnSIBRAType      = ExtnType{HopByHopClass, 1}
	ExtnSCMPType       = ExtnType{HopByHopClass, 2}
	ExtnOneHopPathType = ExtnType{HopByHopClass, 3}
	ExtnPathTransType  = ExtnType{End2EndClass, 0}
	ExtnPathProbeType  = ExtnType{End2EndClass, 1}
)

func (e ExtnType) String() string {
	switch e {
	case ExtnTracerouteType:
		return "Traceroute"
	case ExtnSIBRAType:
		return "SIBRA"
	case ExtnSCMPType:
		return "SCMP"
	case ExtnOneHopPathType:
		return "OneHopPath"
	case ExtnPathTransType:
		return "PathTrans"
	case ExtnPathProbeType:
		return "PathProbe"
	}
	return fmt.Sprintf("UNKNOWN (%d-%d)", uint8(e.Class), e.Type)
}

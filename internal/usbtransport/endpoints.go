package usbtransport

import "github.com/google/gousb"

// endpointPair is the IN/OUT bulk endpoint pair located on a single
// claimed interface.
type endpointPair struct {
	configNumber    int
	interfaceNumber int
	inAddress       int
	outAddress      int
}

// adbClass/adbSubClass/adbProtocol identify the vendor-specific ADB
// interface (class=0xff, subclass=0x42, protocol=0x01).
const (
	adbClass    = 0xff
	adbSubClass = 0x42
	adbProtocol = 0x01
)

// bulkClass/bulkSubClass/bulkProtocol identify the Android "bulk"
// file-transfer mode interface that some devices expose before USB
// debugging is enabled (class=0xdc, subclass=0x02, protocol=0x01).
const (
	bulkClass    = 0xdc
	bulkSubClass = 0x02
	bulkProtocol = 0x01
)

// isADBInterface reports whether an alt-setting is the vendor-specific
// ADB interface used to locate the transport's bulk endpoint pair.
func isADBInterface(s gousb.InterfaceSetting) bool {
	return uint8(s.Class) == adbClass && uint8(s.SubClass) == adbSubClass && uint8(s.Protocol) == adbProtocol
}

// isADBQualifyingInterface reports whether an alt-setting qualifies a
// device as an ADB candidate during autodetection: either the
// vendor-specific ADB triple or the Android bulk file-transfer triple.
func isADBQualifyingInterface(s gousb.InterfaceSetting) bool {
	if isADBInterface(s) {
		return true
	}
	return uint8(s.Class) == bulkClass && uint8(s.SubClass) == bulkSubClass && uint8(s.Protocol) == bulkProtocol
}

// findEndpoints walks configurations -> interfaces -> alt-settings ->
// endpoints looking for the first alt-setting that qualifies as the ADB
// interface and exposes one bulk IN and one bulk OUT endpoint.
func findEndpoints(desc *gousb.DeviceDesc) (endpointPair, bool) {
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if !isADBInterface(alt) {
					continue
				}
				var inAddr, outAddr int
				haveIn, haveOut := false, false
				for addr, ep := range alt.Endpoints {
					if ep.TransferType != gousb.TransferTypeBulk {
						continue
					}
					switch addr.Direction() {
					case gousb.EndpointDirectionIn:
						inAddr, haveIn = int(addr), true
					case gousb.EndpointDirectionOut:
						outAddr, haveOut = int(addr), true
					}
				}
				if haveIn && haveOut {
					return endpointPair{
						configNumber:    cfg.Number,
						interfaceNumber: alt.Number,
						inAddress:       inAddr,
						outAddress:      outAddr,
					}, true
				}
			}
		}
	}
	return endpointPair{}, false
}

// deviceQualifies reports whether desc exposes at least one interface
// matching the ADB or bulk file-transfer class triples, for use during
// autodetection (§4.6 of the specification).
func deviceQualifies(desc *gousb.DeviceDesc) bool {
	for _, cfg := range desc.Configs {
		for _, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if isADBQualifyingInterface(alt) {
					return true
				}
			}
		}
	}
	return false
}

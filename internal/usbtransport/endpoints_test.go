package usbtransport

import (
	"testing"

	"github.com/google/gousb"
)

func makeSetting(class, subClass, protocol uint8, endpoints map[gousb.EndpointAddress]gousb.EndpointDesc) gousb.InterfaceSetting {
	return gousb.InterfaceSetting{
		Number:    0,
		Alternate: 0,
		Class:     gousb.Class(class),
		SubClass:  gousb.Class(subClass),
		Protocol:  gousb.Protocol(protocol),
		Endpoints: endpoints,
	}
}

func TestIsADBInterface(t *testing.T) {
	cases := []struct {
		name                     string
		class, subClass, proto uint8
		want                     bool
	}{
		{"adb triple", 0xff, 0x42, 0x01, true},
		{"bulk triple not adb", 0xdc, 0x02, 0x01, false},
		{"unrelated", 0x08, 0x06, 0x50, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := isADBInterface(makeSetting(tc.class, tc.subClass, tc.proto, nil))
			if got != tc.want {
				t.Errorf("isADBInterface(%02x,%02x,%02x) = %v, want %v", tc.class, tc.subClass, tc.proto, got, tc.want)
			}
		})
	}
}

func TestIsADBQualifyingInterface(t *testing.T) {
	cases := []struct {
		name                    string
		class, subClass, proto uint8
		want                    bool
	}{
		{"adb triple", 0xff, 0x42, 0x01, true},
		{"bulk triple", 0xdc, 0x02, 0x01, true},
		{"unrelated", 0x08, 0x06, 0x50, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := isADBQualifyingInterface(makeSetting(tc.class, tc.subClass, tc.proto, nil))
			if got != tc.want {
				t.Errorf("isADBQualifyingInterface(%02x,%02x,%02x) = %v, want %v", tc.class, tc.subClass, tc.proto, got, tc.want)
			}
		})
	}
}

func TestFindEndpointsLocatesBulkPair(t *testing.T) {
	inAddr := gousb.EndpointAddress(0x81)
	outAddr := gousb.EndpointAddress(0x01)

	endpoints := map[gousb.EndpointAddress]gousb.EndpointDesc{
		inAddr:  {Address: inAddr, TransferType: gousb.TransferTypeBulk},
		outAddr: {Address: outAddr, TransferType: gousb.TransferTypeBulk},
	}

	desc := &gousb.DeviceDesc{
		Configs: map[int]gousb.ConfigDesc{
			1: {
				Number: 1,
				Interfaces: []gousb.InterfaceDesc{
					{
						Number:      0,
						AltSettings: []gousb.InterfaceSetting{makeSetting(0xff, 0x42, 0x01, endpoints)},
					},
				},
			},
		},
	}

	pair, ok := findEndpoints(desc)
	if !ok {
		t.Fatal("expected to find endpoint pair")
	}
	if pair.inAddress != int(inAddr) || pair.outAddress != int(outAddr) {
		t.Errorf("unexpected endpoint pair: %+v", pair)
	}
}

func TestFindEndpointsFailsWithoutADBInterface(t *testing.T) {
	desc := &gousb.DeviceDesc{
		Configs: map[int]gousb.ConfigDesc{
			1: {
				Number: 1,
				Interfaces: []gousb.InterfaceDesc{
					{Number: 0, AltSettings: []gousb.InterfaceSetting{makeSetting(0x08, 0x06, 0x50, nil)}},
				},
			},
		},
	}

	if _, ok := findEndpoints(desc); ok {
		t.Fatal("expected no endpoint pair for a non-ADB interface")
	}
}

func TestDeviceQualifiesAcceptsBulkModeInterface(t *testing.T) {
	desc := &gousb.DeviceDesc{
		Configs: map[int]gousb.ConfigDesc{
			1: {
				Number: 1,
				Interfaces: []gousb.InterfaceDesc{
					{Number: 0, AltSettings: []gousb.InterfaceSetting{makeSetting(0xdc, 0x02, 0x01, nil)}},
				},
			},
		},
	}

	if !deviceQualifies(desc) {
		t.Fatal("expected bulk file-transfer interface to qualify")
	}
}

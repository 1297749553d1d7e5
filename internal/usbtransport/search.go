package usbtransport

import (
	"github.com/google/gousb"

	"github.com/guiperry/adbhostusb/internal/adberr"
)

// Search enumerates attached USB devices and returns the vendor and
// product IDs of the single device qualifying as ADB (§4.6): at least
// one interface matching the vendor-specific ADB class triple or the
// Android bulk file-transfer triple. More than one match fails with
// KindAmbiguous naming both candidates, mirroring the upstream
// implementation's behavior of reporting the first two matches found
// rather than collecting an unbounded list.
func Search() (vendorID, productID uint16, err error) {
	const op = "usbtransport.Search"

	ctx := gousb.NewContext()
	defer ctx.Close()

	var first, second *[2]uint16

	devices, openErr := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return deviceQualifies(desc)
	})
	// OpenDevices returns devices it successfully opened alongside any
	// per-device open errors; a non-nil openErr here does not mean the
	// whole enumeration failed, so we only bail if devices is also empty.
	if len(devices) == 0 {
		if openErr != nil {
			return 0, 0, adberr.Wrap(op, adberr.KindIOError, openErr)
		}
		return 0, 0, adberr.New(op, adberr.KindNotFound, "no USB device matches the ADB interface signature")
	}

	for _, d := range devices {
		pair := [2]uint16{uint16(d.Desc.Vendor), uint16(d.Desc.Product)}
		d.Close()

		if first == nil {
			first = &pair
			continue
		}
		if second == nil {
			second = &pair
			break
		}
	}

	if second != nil {
		return 0, 0, adberr.NewAmbiguous(op, *first, *second)
	}

	return first[0], first[1], nil
}

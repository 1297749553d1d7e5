// Package usbtransport implements the USB transport layer of the ADB
// host client: bulk-endpoint discovery on the vendor-specific ADB
// interface, claim discipline, and timeout-bounded bulk read/write of
// framed ADB messages, on top of github.com/google/gousb.
package usbtransport

import (
	"context"
	"time"

	"github.com/google/gousb"

	"github.com/guiperry/adbhostusb/internal/adberr"
	"github.com/guiperry/adbhostusb/internal/wire"
)

// bulkReader and bulkWriter are the minimal surface Transport needs
// from gousb's InEndpoint/OutEndpoint, factored out so tests can supply
// a fake without real USB hardware.
type bulkReader interface {
	Read(p []byte) (int, error)
}

type bulkWriter interface {
	Write(p []byte) (int, error)
}

// Transport is a single-owner, synchronous USB transport for ADB
// messages. It is created detached and transitions to connected on
// Connect.
type Transport struct {
	vendorID, productID gousb.ID

	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface

	epIn  bulkReader
	epOut bulkWriter

	connected bool
}

// New returns a detached Transport targeting the first USB device
// matching vendorID:productID.
func New(vendorID, productID uint16) *Transport {
	return &Transport{vendorID: gousb.ID(vendorID), productID: gousb.ID(productID)}
}

// Connect opens the underlying USB device, locates the ADB interface,
// claims it, and records the IN/OUT bulk endpoints.
func (t *Transport) Connect() error {
	const op = "usbtransport.Transport.Connect"

	ctx := gousb.NewContext()
	device, err := ctx.OpenDeviceWithVIDPID(t.vendorID, t.productID)
	if err != nil {
		ctx.Close()
		return adberr.Wrap(op, adberr.KindIOError, err)
	}
	if device == nil {
		ctx.Close()
		return adberr.New(op, adberr.KindNotFound, "no USB device matching vendor:product")
	}

	pair, ok := findEndpoints(device.Desc)
	if !ok {
		device.Close()
		ctx.Close()
		return adberr.New(op, adberr.KindNoDescriptor, "no qualifying bulk endpoint pair found")
	}

	config, err := device.Config(pair.configNumber)
	if err != nil {
		device.Close()
		ctx.Close()
		return adberr.Wrap(op, adberr.KindPermissionDenied, err)
	}

	intf, err := config.Interface(pair.interfaceNumber, 0)
	if err != nil {
		config.Close()
		device.Close()
		ctx.Close()
		return adberr.Wrap(op, adberr.KindPermissionDenied, err)
	}

	epIn, err := intf.InEndpoint(pair.inAddress)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		ctx.Close()
		return adberr.Wrap(op, adberr.KindNoDescriptor, err)
	}

	epOut, err := intf.OutEndpoint(pair.outAddress)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		ctx.Close()
		return adberr.Wrap(op, adberr.KindNoDescriptor, err)
	}

	t.ctx = ctx
	t.device = device
	t.config = config
	t.intf = intf
	t.epIn = epIn
	t.epOut = epOut
	t.connected = true

	return nil
}

// Disconnect sends a best-effort CLSE message, releases the claimed
// interface, and transitions back to disconnected. It is safe to call
// more than once and safe to call on a transport that never connected.
func (t *Transport) Disconnect() error {
	if !t.connected {
		return nil
	}

	_ = t.WriteMessage(wire.NewMessage(wire.CmdCLSE, 0, 0, nil), 2*time.Second)

	if t.intf != nil {
		t.intf.Close()
	}
	if t.config != nil {
		t.config.Close()
	}
	if t.device != nil {
		t.device.Close()
	}
	if t.ctx != nil {
		t.ctx.Close()
	}

	t.epIn, t.epOut = nil, nil
	t.intf, t.config, t.device, t.ctx = nil, nil, nil, nil
	t.connected = false

	return nil
}

// Connected reports whether the transport currently holds a claimed
// interface.
func (t *Transport) Connected() bool { return t.connected }

const defaultOverallCeilingMultiple = 10

// WriteMessage writes the header then, if non-empty, the payload, both
// as repeated bulk-out transfers bounded by timeout per call. A single
// bulk call exceeding timeout fails with KindTimeout; an overall
// ceiling of 10*timeout additionally bounds a stuck multi-chunk write.
func (t *Transport) WriteMessage(msg wire.Message, timeout time.Duration) error {
	const op = "usbtransport.Transport.WriteMessage"
	if !t.connected {
		return adberr.New(op, adberr.KindIOError, "not connected")
	}

	if err := writeAllBulk(t.epOut, msg.Header.Encode(), timeout); err != nil {
		return adberr.Wrap(op, errKindForWriteRead(err), err)
	}
	if len(msg.Payload) > 0 {
		if err := writeAllBulk(t.epOut, msg.Payload, timeout); err != nil {
			return adberr.Wrap(op, errKindForWriteRead(err), err)
		}
	}
	return nil
}

// ReadMessage reads exactly 24 header bytes, decodes them, then reads
// data_length payload bytes if non-zero, verifying checksum integrity
// before returning.
func (t *Transport) ReadMessage(timeout time.Duration) (wire.Message, error) {
	const op = "usbtransport.Transport.ReadMessage"
	if !t.connected {
		return wire.Message{}, adberr.New(op, adberr.KindIOError, "not connected")
	}

	headerBuf := make([]byte, wire.HeaderSize)
	if err := readAllBulk(t.epIn, headerBuf, timeout); err != nil {
		return wire.Message{}, adberr.Wrap(op, errKindForWriteRead(err), err)
	}

	header, err := wire.DecodeHeader(headerBuf)
	if err != nil {
		return wire.Message{}, err
	}

	if header.DataLength == 0 {
		return wire.FromHeaderAndPayload(header, nil), nil
	}

	payload := make([]byte, header.DataLength)
	if err := readAllBulk(t.epIn, payload, timeout); err != nil {
		return wire.Message{}, adberr.Wrap(op, errKindForWriteRead(err), err)
	}

	msg := wire.FromHeaderAndPayload(header, payload)
	if err := msg.CheckIntegrity(); err != nil {
		return wire.Message{}, err
	}
	return msg, nil
}

func errKindForWriteRead(err error) adberr.Kind {
	if err == context.DeadlineExceeded {
		return adberr.KindTimeout
	}
	return adberr.KindIOError
}

// Package wire implements the ADB transport message framing: a 24-byte
// little-endian header with a sum-of-bytes integrity field, paired with
// an arbitrary-length payload.
package wire

import (
	"encoding/binary"

	"github.com/guiperry/adbhostusb/internal/adberr"
)

// Command is one of the ADB wire protocol's command identifiers.
type Command uint32

// The seven ADB wire commands. Values match the ASCII bytes of the
// command name packed little-endian, per the upstream protocol.
const (
	CmdCNXN Command = 0x4e584e43
	CmdAUTH Command = 0x48545541
	CmdOPEN Command = 0x4e45504f
	CmdOKAY Command = 0x59414b4f
	CmdCLSE Command = 0x45534c43
	CmdWRTE Command = 0x45545257
	CmdSYNC Command = 0x434e5953
)

func (c Command) String() string {
	switch c {
	case CmdCNXN:
		return "CNXN"
	case CmdAUTH:
		return "AUTH"
	case CmdOPEN:
		return "OPEN"
	case CmdOKAY:
		return "OKAY"
	case CmdCLSE:
		return "CLSE"
	case CmdWRTE:
		return "WRTE"
	case CmdSYNC:
		return "SYNC"
	default:
		return "UNKNOWN"
	}
}

// HeaderSize is the fixed wire size of a Header, in bytes.
const HeaderSize = 24

// AUTH subtypes carried in arg0 of an AUTH message.
const (
	AuthToken        = 1
	AuthSignature    = 2
	AuthRSAPublicKey = 3
)

// Version is the only protocol version this module speaks.
const Version = 0x01000000

// MaxData is the maximum payload size this host advertises in its
// initial CNXN.
const MaxData = 1048576

// Header is the 24-byte ADB transport message header.
type Header struct {
	Command    Command
	Arg0       uint32
	Arg1       uint32
	DataLength uint32
	DataCRC32  uint32
	Magic      uint32
}

// NewHeader builds a Header for the given command/args and payload,
// deriving DataLength, DataCRC32 and Magic.
func NewHeader(command Command, arg0, arg1 uint32, payload []byte) Header {
	return Header{
		Command:    command,
		Arg0:       arg0,
		Arg1:       arg1,
		DataLength: uint32(len(payload)),
		DataCRC32:  Checksum(payload),
		Magic:      ^uint32(command),
	}
}

// Encode writes the header's six fields as little-endian uint32s.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Command))
	binary.LittleEndian.PutUint32(buf[4:8], h.Arg0)
	binary.LittleEndian.PutUint32(buf[8:12], h.Arg1)
	binary.LittleEndian.PutUint32(buf[12:16], h.DataLength)
	binary.LittleEndian.PutUint32(buf[16:20], h.DataCRC32)
	binary.LittleEndian.PutUint32(buf[20:24], h.Magic)
	return buf
}

// DecodeHeader parses a 24-byte buffer into a Header and verifies that
// magic is the bitwise complement of command.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, adberr.New("wire.DecodeHeader", adberr.KindInvalidHeader, "short read")
	}
	h := Header{
		Command:    Command(binary.LittleEndian.Uint32(buf[0:4])),
		Arg0:       binary.LittleEndian.Uint32(buf[4:8]),
		Arg1:       binary.LittleEndian.Uint32(buf[8:12]),
		DataLength: binary.LittleEndian.Uint32(buf[12:16]),
		DataCRC32:  binary.LittleEndian.Uint32(buf[16:20]),
		Magic:      binary.LittleEndian.Uint32(buf[20:24]),
	}
	if h.Magic != ^uint32(h.Command) {
		return Header{}, adberr.New("wire.DecodeHeader", adberr.KindInvalidHeader, "magic does not match command")
	}
	return h, nil
}

// Checksum computes the ADB "CRC32" field: the unsigned sum of payload
// bytes, wrapping modulo 2^32. Despite the field's name this is not a
// true CRC32 — the protocol has always used a plain byte sum, and a
// real CRC32 implementation will not interoperate with adbd.
func Checksum(payload []byte) uint32 {
	var sum uint32
	for _, b := range payload {
		sum += uint32(b)
	}
	return sum
}

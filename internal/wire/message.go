package wire

import "github.com/guiperry/adbhostusb/internal/adberr"

// Message is a Header paired with its payload.
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage constructs a Message, deriving the header's DataLength and
// DataCRC32 from payload.
func NewMessage(command Command, arg0, arg1 uint32, payload []byte) Message {
	return Message{
		Header:  NewHeader(command, arg0, arg1, payload),
		Payload: payload,
	}
}

// FromHeaderAndPayload builds a Message from an already-decoded header
// and a payload read separately, without recomputing the header.
func FromHeaderAndPayload(h Header, payload []byte) Message {
	return Message{Header: h, Payload: payload}
}

// CheckIntegrity recomputes the payload checksum and compares it to the
// header's DataCRC32 field.
func (m Message) CheckIntegrity() error {
	if m.Header.DataLength == 0 {
		return nil
	}
	actual := Checksum(m.Payload)
	if actual != m.Header.DataCRC32 {
		return adberr.NewIntegrity("wire.Message.CheckIntegrity", m.Header.DataCRC32, actual)
	}
	return nil
}

// AssertCommand returns a protocol error if the message's command is
// not want.
func (m Message) AssertCommand(want Command) error {
	if m.Header.Command != want {
		return adberr.New("wire.Message.AssertCommand", adberr.KindProtocolError,
			want.String()+" expected, got "+m.Header.Command.String())
	}
	return nil
}

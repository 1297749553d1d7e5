package session

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guiperry/adbhostusb/internal/adberr"
	"github.com/guiperry/adbhostusb/internal/rsakey"
	"github.com/guiperry/adbhostusb/internal/wire"
)

// fakeTransport replays a scripted sequence of inbound messages and
// records outbound ones, so the handshake can be exercised without
// real USB hardware.
type fakeTransport struct {
	inbound  []wire.Message
	timeouts []bool // parallel to inbound: true means ReadMessage should time out instead
	sent     []wire.Message

	connectErr error
	idx        int
}

func (f *fakeTransport) Connect() error    { return f.connectErr }
func (f *fakeTransport) Disconnect() error { return nil }

func (f *fakeTransport) WriteMessage(msg wire.Message, timeout time.Duration) error {
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) ReadMessage(timeout time.Duration) (wire.Message, error) {
	if f.idx >= len(f.inbound) {
		return wire.Message{}, adberr.New("fakeTransport.ReadMessage", adberr.KindIOError, "no more scripted messages")
	}
	i := f.idx
	f.idx++
	if i < len(f.timeouts) && f.timeouts[i] {
		return wire.Message{}, adberr.New("fakeTransport.ReadMessage", adberr.KindTimeout, "simulated timeout")
	}
	return f.inbound[i], nil
}

func newTestKey(t *testing.T) *rsakey.Key {
	t.Helper()
	key, err := rsakey.Generate()
	require.NoError(t, err)
	return key
}

func TestConnectNoAuthDevice(t *testing.T) {
	transport := &fakeTransport{
		inbound: []wire.Message{
			wire.NewMessage(wire.CmdCNXN, wire.Version, 0x40000, []byte("device::...\x00")),
		},
	}
	s := New(transport, newTestKey(t), "adbhostusb", time.Second)

	require.NoError(t, s.Connect())
	assert.Equal(t, uint32(0x40000), s.MaxData)
	assert.True(t, s.Authenticated)
}

func TestConnectSignatureAccepted(t *testing.T) {
	key := newTestKey(t)
	token := make([]byte, 20)
	_, err := rand.Read(token)
	require.NoError(t, err)

	transport := &fakeTransport{
		inbound: []wire.Message{
			wire.NewMessage(wire.CmdAUTH, wire.AuthToken, 0, token),
			wire.NewMessage(wire.CmdCNXN, wire.Version, 0x100000, []byte("device::...\x00")),
		},
	}
	s := New(transport, key, "adbhostusb", time.Second)

	require.NoError(t, s.Connect())
	assert.Equal(t, uint32(0x100000), s.MaxData)
	assert.True(t, s.Authenticated)

	// The second outbound message must be the signature over the token.
	require.Len(t, transport.sent, 2)
	sigMsg := transport.sent[1]
	assert.Equal(t, wire.CmdAUTH, sigMsg.Header.Command)
	assert.Equal(t, uint32(wire.AuthSignature), sigMsg.Header.Arg0)
	assert.NoError(t, key.Verify(token, sigMsg.Payload))
}

func TestConnectPublicKeyEnrollmentAccepted(t *testing.T) {
	key := newTestKey(t)
	token := make([]byte, 20)
	_, _ = rand.Read(token)

	transport := &fakeTransport{
		inbound: []wire.Message{
			wire.NewMessage(wire.CmdAUTH, wire.AuthToken, 0, token),
			wire.NewMessage(wire.CmdAUTH, wire.AuthToken, 0, token), // signature rejected
			wire.NewMessage(wire.CmdCNXN, wire.Version, 0x100000, []byte("device::...\x00")),
		},
	}
	s := New(transport, key, "adbhostusb", time.Second)

	require.NoError(t, s.Connect())
	assert.Equal(t, uint32(0x100000), s.MaxData)
	assert.True(t, s.Authenticated)

	require.Len(t, transport.sent, 3)
	pubkeyMsg := transport.sent[2]
	assert.Equal(t, wire.CmdAUTH, pubkeyMsg.Header.Command)
	assert.Equal(t, uint32(wire.AuthRSAPublicKey), pubkeyMsg.Header.Arg0)
	assert.Equal(t, byte(0), pubkeyMsg.Payload[len(pubkeyMsg.Payload)-1], "pubkey payload must be NUL-terminated")
}

func TestConnectUserRejectsPromptTimesOut(t *testing.T) {
	key := newTestKey(t)
	token := make([]byte, 20)
	_, _ = rand.Read(token)

	transport := &fakeTransport{
		inbound: []wire.Message{
			wire.NewMessage(wire.CmdAUTH, wire.AuthToken, 0, token),
			wire.NewMessage(wire.CmdAUTH, wire.AuthToken, 0, token),
			{}, // placeholder, overridden by timeouts below
		},
		timeouts: []bool{false, false, true},
	}
	s := New(transport, key, "adbhostusb", time.Second)

	err := s.Connect()
	require.Error(t, err)
	assert.True(t, adberr.Is(err, adberr.KindAuthTimeout))
}

func TestConnectCorruptedPayloadSurfacesIntegrityError(t *testing.T) {
	good := wire.NewMessage(wire.CmdCNXN, wire.Version, 0x40000, []byte("device::...\x00"))
	// Simulate the transport layer having already detected the
	// corruption (ReadMessage in usbtransport returns the integrity
	// error before the message ever reaches Session).
	corrupted := adberr.NewIntegrity("usbtransport.Transport.ReadMessage", good.Header.DataCRC32, good.Header.DataCRC32+1)

	transport := &corruptingTransport{err: corrupted}
	s := New(transport, newTestKey(t), "adbhostusb", time.Second)

	err := s.Connect()
	require.Error(t, err)
	assert.True(t, adberr.Is(err, adberr.KindInvalidIntegrity))
}

type corruptingTransport struct {
	err error
}

func (c *corruptingTransport) Connect() error    { return nil }
func (c *corruptingTransport) Disconnect() error { return nil }
func (c *corruptingTransport) WriteMessage(wire.Message, time.Duration) error {
	return nil
}
func (c *corruptingTransport) ReadMessage(time.Duration) (wire.Message, error) {
	return wire.Message{}, c.err
}

func TestConnectRejectsWrongAuthType(t *testing.T) {
	transport := &fakeTransport{
		inbound: []wire.Message{
			wire.NewMessage(wire.CmdAUTH, 99, 0, nil), // arg0 != TOKEN
		},
	}
	s := New(transport, newTestKey(t), "adbhostusb", time.Second)

	err := s.Connect()
	require.Error(t, err)
	assert.True(t, adberr.Is(err, adberr.KindProtocolError))
}

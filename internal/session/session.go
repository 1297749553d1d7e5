// Package session drives the ADB CNXN/AUTH handshake state machine over
// a framed message transport and records the negotiated max_data. A
// Session has no message send/receive methods of its own; after
// Connect, messages are exchanged through the Transport it was given.
package session

import (
	"time"

	"github.com/guiperry/adbhostusb/internal/adberr"
	"github.com/guiperry/adbhostusb/internal/rsakey"
	"github.com/guiperry/adbhostusb/internal/wire"
)

// Transport is the framed message channel a Session drives. Both
// *usbtransport.Transport and test fakes satisfy it.
type Transport interface {
	Connect() error
	Disconnect() error
	WriteMessage(msg wire.Message, timeout time.Duration) error
	ReadMessage(timeout time.Duration) (wire.Message, error)
}

// maxTokenRounds bounds how many times Connect will re-send the RSA
// public key after the device responds with another AUTH TOKEN instead
// of CNXN. Upstream adbd does not standardize this case; this module
// tolerates a couple of rounds before giving up with ProtocolError.
const maxTokenRounds = 2

// authTimeout is applied to the read following public-key enrollment:
// the user must accept the RSA fingerprint prompt on the device.
const authTimeout = 10 * time.Second

// Session drives the handshake over a Transport and, once Connected,
// exposes the negotiated max_data to upper layers. A Session is
// single-owner and not safe for concurrent use.
type Session struct {
	transport Transport
	key       *rsakey.Key
	productID string
	timeout   time.Duration

	MaxData       uint32
	Authenticated bool
}

// New returns a Session that will drive transport's handshake,
// authenticating with key and advertising productID in the CNXN
// banner. timeout bounds every read/write except the reads that
// follow public-key enrollment, which always use the fixed 10-second
// auth timeout window.
func New(transport Transport, key *rsakey.Key, productID string, timeout time.Duration) *Session {
	return &Session{transport: transport, key: key, productID: productID, timeout: timeout}
}

// Connect opens the transport and drives the CNXN/AUTH handshake to
// completion, setting MaxData and Authenticated on success.
func (s *Session) Connect() error {
	const op = "session.Session.Connect"

	if err := s.transport.Connect(); err != nil {
		return err
	}

	banner := []byte("host::" + s.productID + "\x00")
	cnxn := wire.NewMessage(wire.CmdCNXN, wire.Version, wire.MaxData, banner)
	if err := s.transport.WriteMessage(cnxn, s.timeout); err != nil {
		return err
	}

	first, err := s.transport.ReadMessage(s.timeout)
	if err != nil {
		return err
	}
	if first.Header.Command == wire.CmdCNXN {
		// Device requires no authentication.
		s.MaxData = first.Header.Arg1
		s.Authenticated = true
		return nil
	}
	if first.Header.Command != wire.CmdAUTH || first.Header.Arg0 != wire.AuthToken {
		return adberr.New(op, adberr.KindProtocolError, "unexpected message after initial CNXN: "+first.Header.Command.String())
	}

	sig, err := s.key.Sign(first.Payload)
	if err != nil {
		return err
	}
	signatureMsg := wire.NewMessage(wire.CmdAUTH, wire.AuthSignature, 0, sig)
	if err := s.transport.WriteMessage(signatureMsg, s.timeout); err != nil {
		return err
	}

	afterSig, err := s.transport.ReadMessage(s.timeout)
	if err != nil {
		return err
	}
	switch {
	case afterSig.Header.Command == wire.CmdCNXN:
		s.MaxData = afterSig.Header.Arg1
		s.Authenticated = true
		return nil
	case afterSig.Header.Command == wire.CmdAUTH && afterSig.Header.Arg0 == wire.AuthToken:
		// Device rejected the signature; proceed to public-key enrollment.
	default:
		return adberr.New(op, adberr.KindProtocolError, "unexpected message after AUTH SIGNATURE: "+afterSig.Header.Command.String())
	}

	blob, err := s.key.AndroidPublicKeyBlob("adbhostusb@host")
	if err != nil {
		return err
	}
	pubkeyPayload := append([]byte(blob), 0)
	pubkeyMsg := wire.NewMessage(wire.CmdAUTH, wire.AuthRSAPublicKey, 0, pubkeyPayload)

	for round := 0; ; round++ {
		if err := s.transport.WriteMessage(pubkeyMsg, s.timeout); err != nil {
			return err
		}

		final, err := s.transport.ReadMessage(authTimeout)
		if err != nil {
			if adberr.Is(err, adberr.KindTimeout) {
				return adberr.New(op, adberr.KindAuthTimeout, "no response within 10s of RSA public key enrollment")
			}
			return err
		}

		if final.Header.Command == wire.CmdCNXN {
			s.MaxData = final.Header.Arg1
			s.Authenticated = true
			return nil
		}
		if final.Header.Command == wire.CmdAUTH && final.Header.Arg0 == wire.AuthToken && round < maxTokenRounds {
			continue
		}
		return adberr.New(op, adberr.KindProtocolError, "unexpected message after AUTH RSAPUBLICKEY: "+final.Header.Command.String())
	}
}

// Disconnect releases the underlying transport.
func (s *Session) Disconnect() error {
	return s.transport.Disconnect()
}

// Package rsakey implements the RSA key operations the ADB USB
// handshake needs: loading or generating a 2048-bit key, signing the
// device's auth token, and emitting adbd's custom public-key blob
// encoding.
package rsakey

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/guiperry/adbhostusb/internal/adberr"
)

// KeyBits is the RSA modulus size this module generates and expects to
// load; adbd only accepts 2048-bit keys.
const KeyBits = 2048

const (
	modulusSizeWords = KeyBits / 32 // 64
	modulusSizeBytes = KeyBits / 8  // 256
	blobSize         = 4 + 4 + modulusSizeBytes + modulusSizeBytes + 4
)

// Key wraps an RSA private key and memoizes the Android public-key blob,
// since computing it involves a modular inverse and a large modular
// exponentiation that are wasteful to repeat.
type Key struct {
	private *rsa.PrivateKey

	blobOnce sync.Once
	blob     string
	blobErr  error
}

// Generate creates a fresh 2048-bit RSA key using crypto/rand, the
// operating system's cryptographically secure RNG.
func Generate() (*Key, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, adberr.Wrap("rsakey.Generate", adberr.KindIOError, err)
	}
	return &Key{private: priv}, nil
}

// LoadPKCS8 parses a PKCS#8 PEM-encoded private key.
func LoadPKCS8(pemText string) (*Key, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, adberr.New("rsakey.LoadPKCS8", adberr.KindInvalidKey, "no PEM block found")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, adberr.Wrap("rsakey.LoadPKCS8", adberr.KindInvalidKey, err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, adberr.New("rsakey.LoadPKCS8", adberr.KindInvalidKey, "PEM does not contain an RSA private key")
	}
	if priv.N.BitLen() != KeyBits {
		return nil, adberr.New("rsakey.LoadPKCS8", adberr.KindInvalidKey,
			fmt.Sprintf("expected a %d-bit key, got %d bits", KeyBits, priv.N.BitLen()))
	}
	return &Key{private: priv}, nil
}

// LoadOrGenerate loads a PKCS#8 PEM key from path, generating and
// returning a fresh in-memory key (never written back to disk) if the
// file is absent or fails to parse. The core never persists a freshly
// generated key; that is left to the caller.
func LoadOrGenerate(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Generate()
		}
		return nil, adberr.Wrap("rsakey.LoadOrGenerate", adberr.KindIOError, err)
	}
	key, err := LoadPKCS8(string(data))
	if err != nil {
		return Generate()
	}
	return key, nil
}

// Sign produces a PKCS#1 v1.5 signature over a 20-byte token using the
// SHA-1 ASN.1 DigestInfo prefix. The token is the device's pre-hashed
// challenge and must not be hashed again here.
func (k *Key) Sign(token []byte) ([]byte, error) {
	if len(token) != 20 {
		return nil, adberr.New("rsakey.Key.Sign", adberr.KindProtocolError,
			fmt.Sprintf("token must be 20 bytes, got %d", len(token)))
	}
	sig, err := rsa.SignPKCS1v15(rand.Reader, k.private, crypto.SHA1, token)
	if err != nil {
		return nil, adberr.Wrap("rsakey.Key.Sign", adberr.KindIOError, err)
	}
	return sig, nil
}

// Verify checks a signature produced by Sign against this key's public
// half. It exists primarily to make the sign/verify round trip testable.
func (k *Key) Verify(token, sig []byte) error {
	return rsa.VerifyPKCS1v15(&k.private.PublicKey, crypto.SHA1, token, sig)
}

// AndroidPublicKeyBlob returns adbd's custom RSAPublicKey encoding:
// base64(modulus_size_words, n0inv, n[64], rr[64], e) + " " + userLabel.
// The result is memoized; repeated calls on the same Key return an
// identical string.
func (k *Key) AndroidPublicKeyBlob(userLabel string) (string, error) {
	k.blobOnce.Do(func() {
		k.blob, k.blobErr = k.encodeAndroidPublicKey()
	})
	if k.blobErr != nil {
		return "", k.blobErr
	}
	return k.blob + " " + userLabel, nil
}

func (k *Key) encodeAndroidPublicKey() (string, error) {
	n := k.private.N

	mod2_32 := new(big.Int).Lsh(big.NewInt(1), 32)
	n0 := new(big.Int).Mod(n, mod2_32)
	inv := new(big.Int).ModInverse(n0, mod2_32)
	if inv == nil {
		return "", adberr.New("rsakey.Key.encodeAndroidPublicKey", adberr.KindInvalidKey, "modulus has no inverse mod 2^32 (even modulus?)")
	}
	n0inv := new(big.Int).Sub(mod2_32, inv)
	n0inv.Mod(n0inv, mod2_32)

	// R = 2^(32*modulusSizeWords); rr = R^2 mod n.
	rBits := uint(32 * modulusSizeWords)
	rr := new(big.Int).Exp(big.NewInt(2), big.NewInt(int64(2*rBits)), n)

	buf := make([]byte, blobSize)
	putUint32LE(buf[0:4], uint32(modulusSizeWords))
	putUint32LE(buf[4:8], uint32(n0inv.Uint64()))
	if err := putLimbsLE(buf[8:8+modulusSizeBytes], n); err != nil {
		return "", err
	}
	if err := putLimbsLE(buf[8+modulusSizeBytes:8+2*modulusSizeBytes], rr); err != nil {
		return "", err
	}
	putUint32LE(buf[8+2*modulusSizeBytes:], uint32(k.private.E))

	return base64.StdEncoding.EncodeToString(buf), nil
}

func putUint32LE(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

// putLimbsLE writes v as modulusSizeBytes little-endian bytes. Since the
// blob's word array is little-endian both across words and within each
// word, this is equivalent to writing v's full little-endian byte
// representation and grouping it into 4-byte words in order.
func putLimbsLE(dst []byte, v *big.Int) error {
	if v.Sign() < 0 || v.BitLen() > len(dst)*8 {
		return adberr.New("rsakey.putLimbsLE", adberr.KindInvalidKey, "value does not fit in the expected word width")
	}
	be := v.Bytes() // big-endian, no leading zero padding
	for i := 0; i < len(be); i++ {
		dst[i] = be[len(be)-1-i]
	}
	return nil
}

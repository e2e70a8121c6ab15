// Package signature provides the asymmetric primitives every replica and
// client relies on: key pairs over the Ed25519 group, Schnorr signatures over
// delimiter-free concatenations of byte fields, and the fixed-width nonces
// used for challenge/response freshness and per-account sequencing.
package signature

import (
	"bytes"
	"encoding/base64"

	"github.com/pkg/errors"
	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/suites"
)

// ErrMalformedKey is returned when a byte sequence is not a valid encoded point.
var ErrMalformedKey = errors.New("malformed public key")

var suite suites.Suite = suites.MustFind("Ed25519")

// PublicKey is the identity of an account or a replica.
// Two keys are equal iff their canonical encodings are equal.
type PublicKey struct {
	point   kyber.Point
	encoded []byte
}

// KeyPair holds a private scalar together with its public point.
type KeyPair struct {
	Private kyber.Scalar
	Public  PublicKey
}

// GenerateKey draws a fresh key pair from the suite's random stream.
func GenerateKey() KeyPair {
	priv := suite.Scalar().Pick(suite.RandomStream())
	return keyPairFromScalar(priv)
}

func keyPairFromScalar(priv kyber.Scalar) KeyPair {
	pub := suite.Point().Mul(priv, nil)
	encoded, err := pub.MarshalBinary()
	if err != nil {
		// points produced by the suite always marshal
		panic(err)
	}
	return KeyPair{Private: priv, Public: PublicKey{point: pub, encoded: encoded}}
}

// ParsePublicKey decodes the canonical encoding of a public key.
func ParsePublicKey(b []byte) (PublicKey, error) {
	if len(b) != suite.PointLen() {
		return PublicKey{}, errors.Wrapf(ErrMalformedKey, "expected %d bytes, got %d", suite.PointLen(), len(b))
	}
	p := suite.Point()
	if err := p.UnmarshalBinary(b); err != nil {
		return PublicKey{}, errors.Wrap(ErrMalformedKey, err.Error())
	}
	encoded := make([]byte, len(b))
	copy(encoded, b)
	return PublicKey{point: p, encoded: encoded}, nil
}

// ParsePublicKeyString decodes a base64 encoded public key.
func ParsePublicKeyString(s string) (PublicKey, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return PublicKey{}, errors.Wrap(ErrMalformedKey, err.Error())
	}
	return ParsePublicKey(b)
}

// Bytes returns the canonical encoding. The caller must not modify it.
func (k PublicKey) Bytes() []byte { return k.encoded }

// String returns the base64 form of the key, which is also its table key.
func (k PublicKey) String() string { return base64.StdEncoding.EncodeToString(k.encoded) }

// IsZero reports whether k was never set.
func (k PublicKey) IsZero() bool { return len(k.encoded) == 0 }

func (k PublicKey) Equal(o PublicKey) bool { return bytes.Equal(k.encoded, o.encoded) }

// Less orders keys by their encoding; account locks are taken in this order.
func (k PublicKey) Less(o PublicKey) bool { return bytes.Compare(k.encoded, o.encoded) < 0 }

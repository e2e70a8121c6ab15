package signature

import (
	"encoding/base64"

	"github.com/pkg/errors"
)

// NonceSize is the width of every nonce in bytes.
const NonceSize = 16

// Nonce is a fixed-width replay counter.
//
// Next treats the bytes as a little-endian counter; there is no ordering
// beyond successor matching and the all-0xff nonce wraps to all zeroes.
type Nonce [NonceSize]byte

// NewNonce returns a random nonce.
func NewNonce() Nonce {
	var n Nonce
	suite.RandomStream().XORKeyStream(n[:], n[:])
	return n
}

// Next returns the successor of n.
func (n Nonce) Next() Nonce {
	for i := 0; i < NonceSize; i++ {
		n[i]++
		if n[i] != 0 {
			break
		}
	}
	return n
}

func (n Nonce) Bytes() []byte { return n[:] }

func (n Nonce) String() string { return base64.StdEncoding.EncodeToString(n[:]) }

// NonceFromBytes copies b into a nonce; b must be exactly NonceSize long.
func NonceFromBytes(b []byte) (Nonce, error) {
	var n Nonce
	if len(b) != NonceSize {
		return n, errors.Errorf("nonce must be %d bytes, got %d", NonceSize, len(b))
	}
	copy(n[:], b)
	return n, nil
}

// ParseNonce decodes the base64 form produced by String.
func ParseNonce(s string) (Nonce, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Nonce{}, errors.Wrap(err, "decode nonce")
	}
	return NonceFromBytes(b)
}

func (n Nonce) MarshalText() ([]byte, error) { return []byte(n.String()), nil }

func (n *Nonce) UnmarshalText(text []byte) error {
	parsed, err := ParseNonce(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

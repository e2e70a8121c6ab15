package signature

import (
	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/sign/schnorr"
)

func concat(fields [][]byte) []byte {
	n := 0
	for _, f := range fields {
		n += len(f)
	}
	msg := make([]byte, 0, n)
	for _, f := range fields {
		msg = append(msg, f...)
	}
	return msg
}

// Sign signs the concatenation of fields, in order and without delimiters.
// Callers are responsible for choosing field layouts whose boundaries cannot
// be shifted, e.g. by keeping at most one variable-length field.
func Sign(priv kyber.Scalar, fields ...[]byte) ([]byte, error) {
	return schnorr.Sign(suite, priv, concat(fields))
}

// MustSign is Sign for keys known to be valid.
func (kp KeyPair) MustSign(fields ...[]byte) []byte {
	sig, err := Sign(kp.Private, fields...)
	if err != nil {
		panic(err)
	}
	return sig
}

// Verify reports whether sig is a valid signature by pub over the
// concatenation of fields. Malformed input yields false, never a panic.
func Verify(pub PublicKey, sig []byte, fields ...[]byte) (ok bool) {
	if pub.point == nil || len(sig) == 0 {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return schnorr.Verify(suite, pub.point, concat(fields), sig) == nil
}

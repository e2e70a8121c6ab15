package signature

import (
	"encoding/base64"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// SaveKey writes the private scalar of kp to path, base64 encoded.
func SaveKey(path string, kp KeyPair) error {
	b, err := kp.Private.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "marshal private key")
	}
	data := base64.StdEncoding.EncodeToString(b) + "\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		return errors.Wrapf(err, "write key file %s", path)
	}
	return nil
}

// LoadKey reads a key pair written by SaveKey.
func LoadKey(path string) (KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeyPair{}, errors.Wrapf(err, "read key file %s", path)
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return KeyPair{}, errors.Wrapf(err, "decode key file %s", path)
	}
	priv := suite.Scalar()
	if err := priv.UnmarshalBinary(b); err != nil {
		return KeyPair{}, errors.Wrapf(err, "parse key file %s", path)
	}
	return keyPairFromScalar(priv), nil
}

// LoadOrGenerateKey loads the key at path, creating it first if the file does not exist.
func LoadOrGenerateKey(path string) (KeyPair, bool, error) {
	kp, err := LoadKey(path)
	if err == nil {
		return kp, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return KeyPair{}, false, err
	}
	kp = GenerateKey()
	if err := SaveKey(path, kp); err != nil {
		return KeyPair{}, false, err
	}
	return kp, true, nil
}

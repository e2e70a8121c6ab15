package ledger

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/luca-patrignani/byzantine-bank/signature"
)

// Kind names the operation a record applies.
type Kind string

const (
	KindCreate Kind = "create"
	KindAdd    Kind = "add"
	KindAccept Kind = "accept"
	KindReject Kind = "reject"
)

// Separator delimits the fields of an encoded record. It cannot occur in
// base64 or decimal text.
const Separator = ";"

// ErrMalformedRecord is returned for lines that do not decode to a record.
var ErrMalformedRecord = errors.New("malformed ledger record")

// Record is one entry in the ledger.
//
// For KindCreate only Source (the new account) and Nonce are set.
// KindReject carries no signature.
type Record struct {
	Kind        Kind
	Source      signature.PublicKey
	Destination signature.PublicKey
	Amount      decimal.Decimal
	Nonce       signature.Nonce
	Signature   []byte
}

// CreateRecord builds the record for a newly opened account.
func CreateRecord(account signature.PublicKey, nonce signature.Nonce) Record {
	return Record{Kind: KindCreate, Source: account, Nonce: nonce}
}

func (r Record) String() string {
	if r.Kind == KindCreate {
		return fmt.Sprintf("%s(%s)", r.Kind, r.Source)
	}
	return fmt.Sprintf("%s(%s -> %s, %s)", r.Kind, r.Source, r.Destination, r.Amount)
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// MarshalLine encodes r as a single newline-terminated line.
func (r Record) MarshalLine() ([]byte, error) {
	var fields []string
	switch r.Kind {
	case KindCreate:
		fields = []string{string(r.Kind), r.Source.String(), r.Nonce.String()}
	case KindAdd, KindAccept:
		fields = []string{string(r.Kind), r.Source.String(), r.Destination.String(),
			r.Amount.String(), r.Nonce.String(), b64(r.Signature)}
	case KindReject:
		fields = []string{string(r.Kind), r.Source.String(), r.Destination.String(),
			r.Amount.String(), r.Nonce.String()}
	default:
		return nil, errors.Wrapf(ErrMalformedRecord, "unknown kind %q", r.Kind)
	}
	return []byte(strings.Join(fields, Separator) + "\n"), nil
}

// ParseLine decodes a line produced by MarshalLine, without its terminator.
func ParseLine(line string) (Record, error) {
	fields := strings.Split(line, Separator)
	var r Record
	r.Kind = Kind(fields[0])

	want := map[Kind]int{KindCreate: 3, KindAdd: 6, KindAccept: 6, KindReject: 5}
	n, ok := want[r.Kind]
	if !ok {
		return Record{}, errors.Wrapf(ErrMalformedRecord, "unknown kind %q", fields[0])
	}
	if len(fields) != n {
		return Record{}, errors.Wrapf(ErrMalformedRecord, "%s record has %d fields, want %d", r.Kind, len(fields), n)
	}

	var err error
	if r.Source, err = signature.ParsePublicKeyString(fields[1]); err != nil {
		return Record{}, errors.Wrap(ErrMalformedRecord, err.Error())
	}
	if r.Kind == KindCreate {
		if r.Nonce, err = signature.ParseNonce(fields[2]); err != nil {
			return Record{}, errors.Wrap(ErrMalformedRecord, err.Error())
		}
		return r, nil
	}

	if r.Destination, err = signature.ParsePublicKeyString(fields[2]); err != nil {
		return Record{}, errors.Wrap(ErrMalformedRecord, err.Error())
	}
	if r.Amount, err = ParseAmount(fields[3]); err != nil {
		return Record{}, errors.Wrap(ErrMalformedRecord, err.Error())
	}
	if r.Nonce, err = signature.ParseNonce(fields[4]); err != nil {
		return Record{}, errors.Wrap(ErrMalformedRecord, err.Error())
	}
	if r.Kind == KindReject {
		return r, nil
	}
	if r.Signature, err = base64.StdEncoding.DecodeString(fields[5]); err != nil {
		return Record{}, errors.Wrap(ErrMalformedRecord, err.Error())
	}
	return r, nil
}

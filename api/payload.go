package api

import (
	"encoding/binary"

	"github.com/luca-patrignani/byzantine-bank/signature"
)

// The payload functions fix the field order of every signature. Keys and
// nonces have fixed widths; each layout has at most one variable-length field
// except the read responses, which are length-prefixed.

func OpenAccountPayload(key []byte, challenge signature.Nonce) [][]byte {
	return [][]byte{key, challenge.Bytes()}
}

func NonceRequestPayload(challenge signature.Nonce, key []byte) [][]byte {
	return [][]byte{challenge.Bytes(), key}
}

func SendPayload(tx Transaction, nonce signature.Nonce) [][]byte {
	return [][]byte{tx.Source, tx.Destination, []byte(tx.Amount), nonce.Bytes()}
}

func ReceivePayload(tx Transaction, accept bool, nonce signature.Nonce) [][]byte {
	flag := []byte{0}
	if accept {
		flag[0] = 1
	}
	return [][]byte{tx.Source, tx.Destination, []byte(tx.Amount), nonce.Bytes(), flag}
}

// ResponsePayload is what a replica signs on OpenAccount, SendAmount and
// ReceiveAmount responses: the echoed nonce followed by the status.
func ResponsePayload(nonce signature.Nonce, status Status) [][]byte {
	return [][]byte{nonce.Bytes(), status.Bytes()}
}

func NonceResponsePayload(challenge, nonce signature.Nonce, status Status) [][]byte {
	return [][]byte{challenge.Bytes(), nonce.Bytes(), status.Bytes()}
}

func appendField(buf, field []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(field)))
	return append(buf, field...)
}

func appendTransactions(buf []byte, txs []Transaction) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(txs)))
	for _, tx := range txs {
		buf = appendField(buf, tx.Source)
		buf = appendField(buf, tx.Destination)
		buf = appendField(buf, []byte(tx.Amount))
	}
	return buf
}

// CheckAccountPayload serialises a balance answer canonically: status,
// version, balance and each pending transaction, every variable field
// prefixed by its big-endian uint32 length.
func CheckAccountPayload(status Status, version uint64, balance string, pending []Transaction) [][]byte {
	buf := appendField(nil, status.Bytes())
	buf = binary.BigEndian.AppendUint64(buf, version)
	buf = appendField(buf, []byte(balance))
	return [][]byte{appendTransactions(buf, pending)}
}

// AuditPayload serialises a history answer like CheckAccountPayload.
func AuditPayload(status Status, version uint64, history []Transaction) [][]byte {
	buf := appendField(nil, status.Bytes())
	buf = binary.BigEndian.AppendUint64(buf, version)
	return [][]byte{appendTransactions(buf, history)}
}

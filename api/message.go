package api

import (
	"context"

	"github.com/luca-patrignani/byzantine-bank/signature"
)

// Transaction is the wire form of a transfer. Keys are raw encoded points,
// base64 in JSON; the amount is a decimal string.
type Transaction struct {
	Source      []byte `json:"source"`
	Destination []byte `json:"destination"`
	Amount      string `json:"amount"`
}

type OpenAccountRequest struct {
	PublicKey []byte          `json:"public_key"`
	Challenge signature.Nonce `json:"challenge"`
	Signature []byte          `json:"sig"`
}

type OpenAccountResponse struct {
	Status    Status          `json:"status"`
	Challenge signature.Nonce `json:"challenge"`
	Signature []byte          `json:"sig"`
}

type NonceRequest struct {
	PublicKey []byte          `json:"public_key"`
	Challenge signature.Nonce `json:"challenge"`
	Signature []byte          `json:"sig"`
}

type NonceResponse struct {
	Status    Status          `json:"status"`
	Challenge signature.Nonce `json:"challenge"`
	Nonce     signature.Nonce `json:"nonce"`
	Signature []byte          `json:"sig"`
}

type SendAmountRequest struct {
	Transaction Transaction     `json:"transaction"`
	Nonce       signature.Nonce `json:"nonce"`
	Signature   []byte          `json:"sig"`
}

type SendAmountResponse struct {
	Status    Status          `json:"status"`
	Nonce     signature.Nonce `json:"nonce"`
	Signature []byte          `json:"sig"`
}

// ReceiveAmountRequest is signed by the destination of Transaction.
type ReceiveAmountRequest struct {
	Transaction Transaction     `json:"transaction"`
	Accept      bool            `json:"accept"`
	Nonce       signature.Nonce `json:"nonce"`
	Signature   []byte          `json:"sig"`
}

type ReceiveAmountResponse struct {
	Status    Status          `json:"status"`
	Nonce     signature.Nonce `json:"nonce"`
	Signature []byte          `json:"sig"`
}

type CheckAccountRequest struct {
	PublicKey []byte `json:"public_key"`
}

// CheckAccountResponse carries the balance and the pending queue. Version
// identifies the account state the answer was read from.
type CheckAccountResponse struct {
	Status    Status        `json:"status"`
	Version   uint64        `json:"version"`
	Balance   string        `json:"balance"`
	Pending   []Transaction `json:"pending"`
	Signature []byte        `json:"sig"`
}

type AuditRequest struct {
	PublicKey []byte `json:"public_key"`
}

type AuditResponse struct {
	Status    Status        `json:"status"`
	Version   uint64        `json:"version"`
	History   []Transaction `json:"history"`
	Signature []byte        `json:"sig"`
}

// Replica is the RPC surface of one replica. The in-process engine and the
// HTTP client both implement it. A non-nil error means the call produced no
// trustworthy answer at all (transport or storage failure).
type Replica interface {
	OpenAccount(ctx context.Context, req OpenAccountRequest) (OpenAccountResponse, error)
	NonceNegotiation(ctx context.Context, req NonceRequest) (NonceResponse, error)
	SendAmount(ctx context.Context, req SendAmountRequest) (SendAmountResponse, error)
	ReceiveAmount(ctx context.Context, req ReceiveAmountRequest) (ReceiveAmountResponse, error)
	CheckAccount(ctx context.Context, req CheckAccountRequest) (CheckAccountResponse, error)
	Audit(ctx context.Context, req AuditRequest) (AuditResponse, error)
}

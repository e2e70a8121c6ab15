package api

import "github.com/luca-patrignani/byzantine-bank/signature"

// Sign fills r.Signature using the account key.
func (r *OpenAccountRequest) Sign(kp signature.KeyPair) {
	r.Signature = kp.MustSign(OpenAccountPayload(r.PublicKey, r.Challenge)...)
}

func (r *NonceRequest) Sign(kp signature.KeyPair) {
	r.Signature = kp.MustSign(NonceRequestPayload(r.Challenge, r.PublicKey)...)
}

func (r *SendAmountRequest) Sign(kp signature.KeyPair) {
	r.Signature = kp.MustSign(SendPayload(r.Transaction, r.Nonce)...)
}

func (r *ReceiveAmountRequest) Sign(kp signature.KeyPair) {
	r.Signature = kp.MustSign(ReceivePayload(r.Transaction, r.Accept, r.Nonce)...)
}

func (r *OpenAccountResponse) Sign(kp signature.KeyPair) {
	r.Signature = kp.MustSign(ResponsePayload(r.Challenge, r.Status)...)
}

func (r *NonceResponse) Sign(kp signature.KeyPair) {
	r.Signature = kp.MustSign(NonceResponsePayload(r.Challenge, r.Nonce, r.Status)...)
}

func (r *SendAmountResponse) Sign(kp signature.KeyPair) {
	r.Signature = kp.MustSign(ResponsePayload(r.Nonce, r.Status)...)
}

func (r *ReceiveAmountResponse) Sign(kp signature.KeyPair) {
	r.Signature = kp.MustSign(ResponsePayload(r.Nonce, r.Status)...)
}

func (r *CheckAccountResponse) Sign(kp signature.KeyPair) {
	r.Signature = kp.MustSign(CheckAccountPayload(r.Status, r.Version, r.Balance, r.Pending)...)
}

func (r *AuditResponse) Sign(kp signature.KeyPair) {
	r.Signature = kp.MustSign(AuditPayload(r.Status, r.Version, r.History)...)
}

// VerifySignature checks the replica's signature on a response.
func (r OpenAccountResponse) VerifySignature(server signature.PublicKey) bool {
	return signature.Verify(server, r.Signature, ResponsePayload(r.Challenge, r.Status)...)
}

func (r NonceResponse) VerifySignature(server signature.PublicKey) bool {
	return signature.Verify(server, r.Signature, NonceResponsePayload(r.Challenge, r.Nonce, r.Status)...)
}

func (r SendAmountResponse) VerifySignature(server signature.PublicKey) bool {
	return signature.Verify(server, r.Signature, ResponsePayload(r.Nonce, r.Status)...)
}

func (r ReceiveAmountResponse) VerifySignature(server signature.PublicKey) bool {
	return signature.Verify(server, r.Signature, ResponsePayload(r.Nonce, r.Status)...)
}

func (r CheckAccountResponse) VerifySignature(server signature.PublicKey) bool {
	return signature.Verify(server, r.Signature, CheckAccountPayload(r.Status, r.Version, r.Balance, r.Pending)...)
}

func (r AuditResponse) VerifySignature(server signature.PublicKey) bool {
	return signature.Verify(server, r.Signature, AuditPayload(r.Status, r.Version, r.History)...)
}

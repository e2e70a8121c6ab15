// Package network binds the replica protocol to HTTP.
//
// # Core Components
//
// Server: serves one api.Replica under /v1 with JSON bodies, plus the
// replica identity and its Prometheus metrics.
//
// Client: an api.Replica that forwards every call to a Server. A
// consensus.Coordinator holds one Client per replica.
//
// # Routes
//
//	POST /v1/accounts              OpenAccount
//	POST /v1/nonce                 NonceNegotiation
//	POST /v1/send                  SendAmount
//	POST /v1/receive               ReceiveAmount
//	GET  /v1/accounts/{key}        CheckAccount
//	GET  /v1/accounts/{key}/audit  Audit
//	GET  /v1/identity              replica name and public key
//	GET  /metrics                  Prometheus exposition
//
// Keys in paths are unpadded URL-safe base64. A protocol rejection is still
// a 200 with a signed body; non-2xx codes mean the replica produced no
// answer at all.
//
// # TLS
//
// WithCertificate and WithLimitedCAs switch both sides to HTTPS, the latter
// with mutual authentication against the given pool.
package network

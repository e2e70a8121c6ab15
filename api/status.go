// Package api defines the request/response contract between clients and
// replicas: message types, status codes and the exact byte layouts that
// each side signs.
package api

// Status is the outcome reported in every response.
type Status string

const (
	StatusSuccess              Status = "SUCCESS"
	StatusAlreadyExisted       Status = "ALREADY_EXISTED"
	StatusInvalidSignature     Status = "INVALID_SIGNATURE"
	StatusInvalidMessageFormat Status = "INVALID_MESSAGE_FORMAT"
	StatusKeyFailure           Status = "KEY_FAILURE"
	StatusInvalidKey           Status = "INVALID_KEY"
	StatusInvalidKeyFormat     Status = "INVALID_KEY_FORMAT"
	StatusSourceInvalid        Status = "SOURCE_INVALID"
	StatusDestinationInvalid   Status = "DESTINATION_INVALID"
	StatusNotEnoughBalance     Status = "NOT_ENOUGH_BALANCE"
	StatusInvalidNumberFormat  Status = "INVALID_NUMBER_FORMAT"
	StatusNoSuchTransaction    Status = "NO_SUCH_TRANSACTION"
	StatusWrongNonce           Status = "WRONG_NONCE"
)

// Statuses lists the whole vocabulary.
var Statuses = []Status{
	StatusSuccess, StatusAlreadyExisted, StatusInvalidSignature, StatusInvalidMessageFormat,
	StatusKeyFailure, StatusInvalidKey, StatusInvalidKeyFormat, StatusSourceInvalid,
	StatusDestinationInvalid, StatusNotEnoughBalance, StatusInvalidNumberFormat,
	StatusNoSuchTransaction, StatusWrongNonce,
}

func (s Status) OK() bool { return s == StatusSuccess }

func (s Status) Bytes() []byte { return []byte(s) }

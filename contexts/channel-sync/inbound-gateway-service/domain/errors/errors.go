package errors

import "errors"

var (
	ErrAuthenticationFailed = errors.New("inbound authentication failed")
	ErrInvalidEnvelope      = errors.New("inbound envelope is not valid soap")
	ErrUnknownRoot          = errors.New("inbound payload root is not supported")
	ErrMessageNotFound      = errors.New("processed message not found")
)

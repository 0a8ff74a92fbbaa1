package errors

import "errors"

var (
	ErrInvalidJobInput   = errors.New("invalid queue job input")
	ErrJobNotFound       = errors.New("queue job not found")
	ErrJobNotCancellable = errors.New("queue job is no longer cancellable")
	ErrLeaseHeld         = errors.New("stream lease is held by another dispatcher")
	ErrLogNotFound       = errors.New("message log entry not found")
	ErrBreakerOpen       = errors.New("authentication circuit breaker is open for this property")
	ErrKindDisabled      = errors.New("message kind is disabled for this property")
)

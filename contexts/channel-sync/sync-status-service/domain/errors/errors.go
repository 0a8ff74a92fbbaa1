package errors

import "errors"

var (
	ErrInvalidStatusInput = errors.New("invalid sync status input")
	ErrStatusNotFound     = errors.New("sync status not found")
	ErrInvalidTransition  = errors.New("invalid sync status transition")
	ErrConflict           = errors.New("sync status conflict")
)

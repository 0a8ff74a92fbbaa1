package htngerr

import (
	"context"
	"errors"
)

// FromRepository maps a PMS repository failure into the taxonomy. Context
// expiry is a timeout; everything the repository reports as a domain problem
// is business_logic; the rest is unknown.
func FromRepository(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(KindTimeout, "CON_TIMEOUT", "repository call timed out", err)
	}
	var domain RepositoryError
	if errors.As(err, &domain) {
		return Wrap(KindBusinessLogic, "BUS_REPOSITORY", domain.Error(), err)
	}
	return Wrap(KindUnknown, "", err.Error(), err)
}

// RepositoryError marks errors the PMS repository wants classified as
// business_logic rather than unknown.
type RepositoryError interface {
	error
	RepositoryError()
}

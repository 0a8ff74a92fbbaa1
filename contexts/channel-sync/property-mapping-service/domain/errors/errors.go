package errors

import "errors"

var (
	ErrInvalidMappingInput = errors.New("invalid property mapping input")
	ErrInvalidHotelCode    = errors.New("hotel code must be 1-10 decimal digits")
	ErrMappingNotFound     = errors.New("property mapping not found")
	ErrMappingInactive     = errors.New("property mapping is inactive")
	ErrDuplicateMapping    = errors.New("an active mapping already exists for this property or hotel code")
	ErrConflict            = errors.New("property mapping conflict")
)

// Package htngerr is the error taxonomy shared by the sync engine.
// Every failure that crosses a component boundary is carried as an *Error
// so retry decisions stay uniform across outbound and inbound paths.
package htngerr

import (
	"fmt"
	"time"
)

type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindValidation     Kind = "validation"
	KindBusinessLogic  Kind = "business_logic"
	KindSOAPXML        Kind = "soap_xml"
	KindConnection     Kind = "connection"
	KindTimeout        Kind = "timeout"
	KindRateLimit      Kind = "rate_limit"
	KindWarning        Kind = "warning"
	KindUnknown        Kind = "unknown"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Policy is the fixed retry semantics of a kind.
type Policy struct {
	CanRetry   bool
	RetryDelay time.Duration
	Severity   Severity
}

var policies = map[Kind]Policy{
	KindAuthentication: {CanRetry: false, Severity: SeverityCritical},
	KindValidation:     {CanRetry: false, Severity: SeverityHigh},
	KindBusinessLogic:  {CanRetry: false, Severity: SeverityHigh},
	KindSOAPXML:        {CanRetry: false, Severity: SeverityMedium},
	KindConnection:     {CanRetry: true, RetryDelay: 30 * time.Second, Severity: SeverityMedium},
	KindTimeout:        {CanRetry: true, RetryDelay: 60 * time.Second, Severity: SeverityMedium},
	KindRateLimit:      {CanRetry: true, RetryDelay: 120 * time.Second, Severity: SeverityMedium},
	KindWarning:        {CanRetry: false, Severity: SeverityLow},
	KindUnknown:        {CanRetry: true, RetryDelay: 60 * time.Second, Severity: SeverityMedium},
}

// PolicyFor returns the retry policy for a kind. Unlisted kinds fall back to
// the unknown policy.
func PolicyFor(kind Kind) Policy {
	if p, ok := policies[kind]; ok {
		return p
	}
	return policies[KindUnknown]
}

// Error carries a classified failure across component boundaries.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	Severity   Severity
	CanRetry   bool
	RetryDelay time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an error with the kind's default retry policy applied.
func New(kind Kind, code, message string) *Error {
	p := PolicyFor(kind)
	return &Error{
		Kind:       kind,
		Code:       code,
		Message:    message,
		Severity:   p.Severity,
		CanRetry:   p.CanRetry,
		RetryDelay: p.RetryDelay,
	}
}

// Wrap is New with a preserved cause.
func Wrap(kind Kind, code, message string, cause error) *Error {
	e := New(kind, code, message)
	e.Cause = cause
	return e
}

// Validation is shorthand for the most common builder failure.
func Validation(message string) *Error {
	return New(KindValidation, "VAL_RULE", message)
}

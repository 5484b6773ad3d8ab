package domain

import (
	"errors"
	"fmt"
)

// Error type labels carried on error records.
const (
	ErrorTypeHostLookup = "gaierror"
	ErrorTypeTimeout    = "timeout"
	ErrorTypeDNS        = "dns"
	ErrorTypeOS         = "oserror"
)

// LookupKind classifies a host-lookup failure from the system resolver.
type LookupKind int

const (
	// LookupNotFound is a definitive "no such host" answer.
	LookupNotFound LookupKind = iota
	// LookupAgain is a transient failure worth retrying.
	LookupAgain
	// LookupOther is any other address-info failure.
	LookupOther
)

// HostLookupError is a failure from the host's address-info lookup.
type HostLookupError struct {
	Kind LookupKind
	Msg  string
}

func (e *HostLookupError) Error() string {
	return e.Msg
}

// TimeoutError is a DNS query that exceeded its deadline.
type TimeoutError struct {
	Msg string
}

func (e *TimeoutError) Error() string {
	return e.Msg
}

// NoRcode marks a QueryError without an associated DNS response code.
const NoRcode = -1

// QueryError is a DNS protocol failure from the pinned resolver: a rejected
// RCODE, or a response the wire decoder could not make sense of.
type QueryError struct {
	Msg   string
	Rcode int
}

func (e *QueryError) Error() string {
	if e.Rcode == NoRcode {
		return e.Msg
	}
	return fmt.Sprintf("%s (rcode=%d)", e.Msg, e.Rcode)
}

// RcodeNXDomain is the DNS name-error response code.
const RcodeNXDomain = 3

// IsNXDomain reports whether err is an NXDOMAIN query error.
func IsNXDomain(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe) && qe.Rcode == RcodeNXDomain
}

// SocketError is a transport-level failure (connect, read, write).
type SocketError struct {
	Msg  string
	Code *int
	Err  error
}

func (e *SocketError) Error() string {
	return e.Msg
}

func (e *SocketError) Unwrap() error {
	return e.Err
}

// IsRetryableResolveError reports whether a resolve failure is worth another
// attempt: timeouts, and "try again" host-lookup failures.
func IsRetryableResolveError(errType string, err error) bool {
	switch errType {
	case ErrorTypeTimeout:
		return true
	case ErrorTypeHostLookup:
		var hle *HostLookupError
		return errors.As(err, &hle) && hle.Kind == LookupAgain
	default:
		return false
	}
}

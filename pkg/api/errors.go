package api

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes platform failures by response status. The mapping is
// total: unknown statuses become KindUnknown instead of failing the lookup.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindAuthenticationRequired
	KindAuthorizationDenied
	KindNotFound
	KindConflict
	KindRateLimited
	KindInternal
	KindUnavailable
)

// String returns the kind's display name.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthenticationRequired:
		return "authentication required"
	case KindAuthorizationDenied:
		return "authorization denied"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate limited"
	case KindInternal:
		return "internal"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// KindForStatus maps an HTTP or envelope status code to an ErrorKind.
func KindForStatus(status int) ErrorKind {
	switch status {
	case 400:
		return KindValidation
	case 401:
		return KindAuthenticationRequired
	case 403:
		return KindAuthorizationDenied
	case 404:
		return KindNotFound
	case 409:
		return KindConflict
	case 429:
		return KindRateLimited
	case 500:
		return KindInternal
	case 502, 503, 504:
		return KindUnavailable
	default:
		return KindUnknown
	}
}

// PlatformError is a non-2xx answer from a platform endpoint.
type PlatformError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("hubble %s failed: status %d (%s): %s",
		e.Endpoint, e.Status, e.Kind(), e.Message)
}

// Kind returns the error category derived from the status code.
func (e *PlatformError) Kind() ErrorKind {
	return KindForStatus(e.Status)
}

// AuthenticationFailedError is a credential the platform rejected. Recoverable
// by re-login; never retried automatically.
type AuthenticationFailedError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *AuthenticationFailedError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "credential rejected"
	}
	return fmt.Sprintf("hubble %s: authentication failed (status %d): %s",
		e.Endpoint, e.Status, msg)
}

// IsAuthenticationFailed reports whether err is an AuthenticationFailedError
// anywhere in its chain.
func IsAuthenticationFailed(err error) bool {
	var authErr *AuthenticationFailedError
	return errors.As(err, &authErr)
}

// TransportError is a network-level failure reaching the platform. It is
// propagated, never retried, by the SDK; retry policy belongs to the caller.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("hubble %s unreachable: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

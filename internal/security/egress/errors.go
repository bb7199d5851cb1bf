package egress

import (
	"errors"
	"fmt"
)

// Reason classifies why a request was denied.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonInvalidInput      Reason = "invalid_input"
	ReasonUnsupportedScheme Reason = "unsupported_scheme"
	ReasonLocalAddress      Reason = "local_address_blocked"
	ReasonPrivateNetwork    Reason = "private_network_blocked"
	ReasonDangerousPort     Reason = "dangerous_port_blocked"
	ReasonResolutionFailed  Reason = "resolution_failed"
)

var (
	// ErrDenied matches every *DeniedError via errors.Is.
	ErrDenied = errors.New("egress denied")

	ErrEmptyURL       = errors.New("url is empty")
	ErrMalformedURL   = errors.New("malformed url")
	ErrNonStringInput = errors.New("url must be a string")

	ErrNotInstalled = errors.New("egress transport is not installed")
)

// DeniedError is returned to callers whose request was blocked. It is raised
// before any connection is attempted.
type DeniedError struct {
	Reason  Reason
	Method  string
	URL     string
	Message string
	Err     error
}

func (e *DeniedError) Error() string {
	if e == nil {
		return ErrDenied.Error()
	}
	return fmt.Sprintf("egress denied [%s] %s %s: %s", e.Reason, e.Method, e.URL, e.Message)
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

func (e *DeniedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ReasonOf extracts the denial reason from err, or ReasonNone.
func ReasonOf(err error) Reason {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied.Reason
	}
	return ReasonNone
}

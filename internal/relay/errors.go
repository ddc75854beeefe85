package relay

import "errors"

// FailureKind classifies upstream poll failures. Everything else in the relay
// path is handled in place: malformed updates normalize to nothing, and
// delivery failures are per-tenant and never surface past the router.
type FailureKind int

const (
	// FailureTransient covers network and timeout errors. The cycle skips the
	// credential and retries next time; nothing is lost because the cursor was
	// never advanced.
	FailureTransient FailureKind = iota

	// FailureUnauthorized means the upstream rejected the credential itself.
	// The credential is flagged for the operator; tenants are never unlinked
	// automatically.
	FailureUnauthorized
)

func (k FailureKind) String() string {
	switch k {
	case FailureUnauthorized:
		return "unauthorized"
	default:
		return "transient"
	}
}

// PollError wraps an upstream failure with its classification.
type PollError struct {
	Kind FailureKind
	Err  error
}

func (e *PollError) Error() string {
	if e.Err == nil {
		return "poll failed: " + e.Kind.String()
	}
	return "poll failed (" + e.Kind.String() + "): " + e.Err.Error()
}

func (e *PollError) Unwrap() error { return e.Err }

func Transient(err error) error {
	return &PollError{Kind: FailureTransient, Err: err}
}

func Unauthorized(err error) error {
	return &PollError{Kind: FailureUnauthorized, Err: err}
}

// FailureOf extracts the failure kind; unclassified errors count as transient.
func FailureOf(err error) FailureKind {
	var pe *PollError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return FailureTransient
}

// IsUnauthorized reports whether err is a credential rejection.
func IsUnauthorized(err error) bool {
	return err != nil && FailureOf(err) == FailureUnauthorized
}

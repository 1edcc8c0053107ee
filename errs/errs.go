// Package errs defines the sentinel error taxonomy shared across pktwire's
// packages, in the style of go-git's plumbing/transport error values: a
// wrapped sentinel that callers match with errors.Is, plus an Unwrap so the
// underlying cause survives.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedFrame             = errors.New("pktwire: malformed pkt-line frame")
	ErrMalformedAdvertisement     = errors.New("pktwire: malformed ref advertisement")
	ErrUnknownCapabilityAsserted  = errors.New("pktwire: unknown capability asserted")
	ErrRemote                     = errors.New("pktwire: remote error")
	ErrBadChecksum                = errors.New("pktwire: packfile checksum mismatch")
	ErrDeltaChainTooDeep          = errors.New("pktwire: delta chain exceeds maximum depth")
	ErrBadObjectHeader            = errors.New("pktwire: malformed packfile object header")
	ErrNegotiationStalled         = errors.New("pktwire: negotiation made no progress")
	ErrStore                      = errors.New("pktwire: store error")
	ErrTransport                  = errors.New("pktwire: transport error")
	ErrTransportTimeout           = errors.New("pktwire: transport timeout")
	ErrCommandRejected            = errors.New("pktwire: command rejected")
)

// Wrap annotates cause with sentinel, preserving both for errors.Is/As.
func Wrap(sentinel error, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// Wrapf is Wrap with a formatted detail message in place of a cause; the
// detail is text only, so errors.Is matches the sentinel alone.
func Wrapf(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// CommandRejected is the per-ref push rejection carried by
// packp.ReportStatus (§3 Command_rejected: rejections are per-ref, never
// top-level), wrapping ErrCommandRejected so callers can errors.Is it while
// still recovering the ref name and remote message.
type CommandRejected struct {
	RefName string
	Reason  string
}

func (e *CommandRejected) Error() string {
	return fmt.Sprintf("pktwire: command rejected for %s: %s", e.RefName, e.Reason)
}

func (e *CommandRejected) Unwrap() error {
	return ErrCommandRejected
}

// NewCommandRejected builds a CommandRejected for ref, with reason as the
// remote's rejection message.
func NewCommandRejected(ref, reason string) *CommandRejected {
	return &CommandRejected{RefName: ref, Reason: reason}
}

package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamNotFound is returned by Verify, Ledger and certificate
	// compilation when the stream has no blocks.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrStoreUnavailable wraps transient store I/O failures. Callers may
	// retry the operation; no partial state was left behind.
	ErrStoreUnavailable = errors.New("ledger store unavailable")

	// ErrHeadConflict is returned by Store.Insert when the stream's latest
	// hash no longer equals the expected previous hash. The append service
	// re-reads the head and retries; surfacing it to a caller means the
	// retry budget was exhausted.
	ErrHeadConflict = errors.New("stream head advanced during append")
)

// Verification reasons attached to invalid blocks in a Report.
const (
	ReasonPreviousHashMismatch = "previous-hash-mismatch"
	ReasonHashMismatch         = "hash-mismatch"
)

// ValidationError rejects malformed input before any store access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrStoreUnavailable, err))
}

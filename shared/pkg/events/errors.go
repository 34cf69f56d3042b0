package events

import (
	"errors"
	"fmt"
)

var (
	// ErrWriteFailed means the local order + outbox unit of work did not commit.
	ErrWriteFailed = errors.New("write failed")
	// ErrPublishFailed means the transport did not durably accept the envelope.
	ErrPublishFailed = errors.New("publish failed")
	// ErrSchemaMismatch means an envelope or payload does not match the schema of its declared type.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrUnknownEventType means no schema is registered for the event type.
	ErrUnknownEventType = errors.New("unknown event type")

	ErrHandlerTransient = errors.New("handler transient failure")
	ErrHandlerPermanent = errors.New("handler permanent failure")
)

// Transient marks err as retriable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrHandlerTransient, err)
}

// Permanent marks err as non-retriable; the message goes to dead-letter without retry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrHandlerPermanent, err)
}

// IsRetriable reports whether a handler error should be redelivered.
// Schema mismatches and permanent failures are never retried; anything else is.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSchemaMismatch) || errors.Is(err, ErrHandlerPermanent) || errors.Is(err, ErrUnknownEventType) {
		return false
	}
	return true
}

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaMismatch, fmt.Sprintf(format, args...))
}

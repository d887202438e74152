package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQueryTooShort is returned when a query is empty or below the minimum length
	ErrQueryTooShort = errors.New("query below minimum length")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrInvalidBarcode is returned when a barcode fails GTIN validation
	ErrInvalidBarcode = errors.New("invalid barcode")

	// ErrProductNotFound is returned when a source has no matching product
	ErrProductNotFound = errors.New("product not found")

	// ErrSourceTimeout is returned when a source exceeds its timeout budget
	ErrSourceTimeout = errors.New("source timed out")

	// ErrSourceFailure is returned on transport or parse failures of a source
	ErrSourceFailure = errors.New("source request failed")

	// ErrSuperseded signals that a newer request replaced this one.
	// It is not a failure and is never logged as one.
	ErrSuperseded = errors.New("request superseded")

	// ErrVerificationFailed is returned when every attempted source errored
	ErrVerificationFailed = errors.New("could not verify product")

	// ErrSessionNotFound is returned when a session id is unknown or expired
	ErrSessionNotFound = errors.New("session not found")
)

// SourceError records which source failed, during which operation, and why.
// errors.Is matches ErrSourceTimeout or ErrSourceFailure depending on Timeout.
type SourceError struct {
	SourceID string
	Op       string
	Timeout  bool
	Err      error
}

func (e *SourceError) Error() string {
	kind := "failed"
	if e.Timeout {
		kind = "timed out"
	}
	if e.Err == nil {
		return fmt.Sprintf("source %s: %s %s", e.SourceID, e.Op, kind)
	}
	return fmt.Sprintf("source %s: %s %s: %v", e.SourceID, e.Op, kind, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

func (e *SourceError) Is(target error) bool {
	switch target {
	case ErrSourceTimeout:
		return e.Timeout
	case ErrSourceFailure:
		return !e.Timeout
	}
	return false
}

package tally

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy. Each is distinct at the component
// boundary so callers can branch with errors.Is without string matching.
var (
	// ErrSourceUnreachable is a transport failure contacting Tally (connection
	// refused, DNS failure, dial timeout). Retried up to MaxRetries attempts.
	ErrSourceUnreachable = errors.New("tally: source unreachable")

	// ErrSourceProtocolError is an HTTP status outside 2xx. Retried as an
	// ordinary failure.
	ErrSourceProtocolError = errors.New("tally: source protocol error")

	// ErrSourceLogicalError is STATUS != 1 with a message. Never retried —
	// Tally explicitly rejected the request.
	ErrSourceLogicalError = errors.New("tally: source logical error")

	// ErrRetryExhausted is returned once MaxRetries attempts have failed.
	ErrRetryExhausted = errors.New("tally: retry attempts exhausted")
)

// SourceError wraps a sentinel with request context for logging.
type SourceError struct {
	Kind    error
	Message string
}

func (e *SourceError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Message)
}

func (e *SourceError) Unwrap() error {
	return e.Kind
}

func unreachable(msg string) error {
	return &SourceError{Kind: ErrSourceUnreachable, Message: msg}
}

func protocolError(msg string) error {
	return &SourceError{Kind: ErrSourceProtocolError, Message: msg}
}

func logicalError(msg string) error {
	return &SourceError{Kind: ErrSourceLogicalError, Message: msg}
}

// IsRetryable reports whether err should trigger another attempt:
// SourceUnreachable and SourceProtocolError are retried, SourceLogicalError never is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrSourceUnreachable) || errors.Is(err, ErrSourceProtocolError)
}

// ParseWarning records a record-level parse problem, local to the offending
// record; the rest of the fetch is still processed. Vouchers that raise a
// warning are kept (with a defaulted date or header amount); opening bills
// without a NAME are skipped.
type ParseWarning struct {
	// Context identifies what was being parsed (e.g. "voucher 3", "ledger Acme Distributors").
	Context string
	Reason  string
}

func (w ParseWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Context, w.Reason)
}

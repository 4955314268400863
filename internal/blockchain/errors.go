package blockchain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means the registry cannot be built from its config.
	// It is local and never retried.
	ErrConfiguration = errors.New("ledger configuration error")

	// ErrLedger is matched by every *LedgerError.
	ErrLedger = errors.New("ledger error")

	// ErrInvalidSnapshot means the campaign snapshot cannot be encoded for the contract.
	ErrInvalidSnapshot = errors.New("invalid campaign snapshot")
)

// LedgerError reports a failure after the call left this process.
type LedgerError struct {
	Op        string
	TxHash    string
	Retryable bool
	Err       error
}

func (e *LedgerError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("ledger %s (tx %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

func (e *LedgerError) Is(target error) bool { return target == ErrLedger }

// IsRetryable reports whether err is a ledger failure that may succeed on a
// later attempt.
func IsRetryable(err error) bool {
	var le *LedgerError
	return errors.As(err, &le) && le.Retryable
}

// ErrorKind classifies err for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrInvalidSnapshot):
		return "invalid_snapshot"
	case errors.Is(err, ErrLedger):
		return "ledger"
	default:
		return "unknown"
	}
}

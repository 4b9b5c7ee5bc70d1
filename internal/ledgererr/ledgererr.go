// Package ledgererr defines the error taxonomy shared across the ledger
// surface. The teacher repo raised with log.Panic on every validation
// failure; here only storage corruption is fatal, everything else is
// returned to the caller as a Kind the CLI can map to an exit code.
package ledgererr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a ledger error, independent of the
// human-readable message. CLI surfaces map a Kind to an exit code.
type Kind string

const (
	KindInsufficientFunds    Kind = "InsufficientFunds"
	KindSignatureMismatch    Kind = "SignatureMismatch"
	KindBadTxid              Kind = "BadTxid"
	KindUnknownInput         Kind = "UnknownInput"
	KindDoubleSpendInBlock   Kind = "DoubleSpendInBlock"
	KindDoubleSpendInMempool Kind = "DoubleSpendInMempool"
	KindNegativeOrZeroAmount Kind = "NegativeOrZeroAmount"
	KindInsufficientInputs   Kind = "InsufficientInputs"
	KindMalformedKey         Kind = "MalformedKey"
	KindInvalidSignature     Kind = "InvalidSignature"
	KindMalformedProof       Kind = "MalformedProof"

	KindBadBlockLink Kind = "BadBlockLink"
	KindBadPoW       Kind = "BadPoW"
	KindBadMerkleRoot Kind = "BadMerkleRoot"
	KindBadCoinbase  Kind = "BadCoinbase"
	KindBadTimestamp Kind = "BadTimestamp"

	KindInvalidCandidateChain Kind = "InvalidCandidateChain"
	KindStorageCorrupt        Kind = "StorageCorrupt"
	KindMiningStalled         Kind = "MiningStalled"
	KindMiningCancelled       Kind = "MiningCancelled"

	KindPeerUnavailable Kind = "PeerUnavailable"
	KindPeerMalformed   Kind = "PeerMalformed"
	KindTimeout         Kind = "Timeout"
)

// LedgerError wraps a Kind with a contextual message and an optional
// underlying cause, and supports errors.Is/As against its Kind.
type LedgerError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *LedgerError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *LedgerError) Unwrap() error { return e.Cause }

// Is reports whether target is a *LedgerError with the same Kind, so
// callers can write errors.Is(err, ledgererr.New(ledgererr.KindBadPoW, "")).
func (e *LedgerError) Is(target error) bool {
	var other *LedgerError
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New constructs a LedgerError of the given Kind.
func New(kind Kind, format string, args ...any) *LedgerError {
	return &LedgerError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs a LedgerError of the given Kind around an existing error.
func Wrap(kind Kind, cause error, format string, args ...any) *LedgerError {
	return &LedgerError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err, if it is (or wraps) a *LedgerError.
func KindOf(err error) (Kind, bool) {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind, true
	}
	return "", false
}

// ExitCode maps a Kind to the process exit code documented in spec.md §6:
// 0 success, 1 validation failure, 2 I/O/network failure, 3 bad arguments.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	kind, ok := KindOf(err)
	if !ok {
		return 2
	}
	switch kind {
	case KindPeerUnavailable, KindPeerMalformed, KindTimeout, KindStorageCorrupt:
		return 2
	case KindInsufficientFunds, KindSignatureMismatch, KindBadTxid, KindUnknownInput,
		KindDoubleSpendInBlock, KindDoubleSpendInMempool, KindNegativeOrZeroAmount,
		KindInsufficientInputs, KindBadBlockLink, KindBadPoW, KindBadMerkleRoot,
		KindBadCoinbase, KindBadTimestamp, KindInvalidCandidateChain,
		KindMalformedKey, KindInvalidSignature, KindMalformedProof:
		return 1
	default:
		return 1
	}
}

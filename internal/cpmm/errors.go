// internal/cpmm/errors.go
package cpmm

import (
	"errors"
	"fmt"
	"strings"

	solclient "github.com/eldarkhamitov/solana-cpmm/internal/blockchain/solana"
)

var (
	// ErrPoolNotFound means the pool identifier did not resolve to any known
	// pool, on the index or on chain.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrUnsupportedPoolType means the resolved account is not owned by the
	// constant-product swap program.
	ErrUnsupportedPoolType = errors.New("unsupported pool type")

	// ErrMintMismatch means the requested mint is neither side of the pool.
	ErrMintMismatch = errors.New("mint does not belong to pool")

	// ErrInvalidAmount means the requested amount is zero or otherwise
	// unusable.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidSlippage means the slippage tolerance exceeds 100%.
	ErrInvalidSlippage = errors.New("invalid slippage tolerance")

	// ErrInsufficientLiquidity means the requested output meets or exceeds
	// the pool's output-side reserve; no input amount can satisfy it.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrSwapDisabled means the pool's status flags forbid swapping.
	ErrSwapDisabled = errors.New("pool has swaps disabled")

	// ErrAmountOverflow means an intermediate or final value of the swap
	// computation does not fit in 64 bits.
	ErrAmountOverflow = errors.New("amount exceeds uint64 range")

	// ErrConfirmationTimeout re-exports the client sentinel so callers can
	// match it without importing the transport package.
	ErrConfirmationTimeout = solclient.ErrConfirmationTimeout
)

// On-chain custom error emitted by the swap program when the encoded input
// bound is exhausted before the exact output is produced: ExceededSlippage,
// code 6005 (0x1775).
const (
	slippageCustomErrorCode uint64 = 6005
	slippageErrorCodeHex           = "0x1775"
	slippageErrorCodeName          = "ExceededSlippage"
)

// SlippageExceededError is returned when the on-chain program rejects the
// swap because satisfying the exact output would cost more than the encoded
// maximum input.
type SlippageExceededError struct {
	MaxAmountIn uint64
	Err         error
}

func (e *SlippageExceededError) Error() string {
	return fmt.Sprintf("slippage exceeded: required input above bound %d: %v", e.MaxAmountIn, e.Err)
}

func (e *SlippageExceededError) Unwrap() error {
	return e.Err
}

// SigningError wraps a failure to sign the assembled transaction.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("failed to sign transaction: %v", e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

// SubmissionError wraps a broadcast failure. Nothing was committed on chain
// unless the transaction was already accepted before the error surfaced.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("failed to submit transaction: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// IsSlippageError reports whether err carries the program's exceeded-slippage
// custom error: as a typed SlippageExceededError, as the structured status
// error of a landed transaction, or as raw RPC error text.
func IsSlippageError(err error) bool {
	if err == nil {
		return false
	}
	var slippageErr *SlippageExceededError
	if errors.As(err, &slippageErr) {
		return true
	}
	var txErr *solclient.TransactionError
	if errors.As(err, &txErr) {
		if code, ok := txErr.CustomErrorCode(); ok {
			return code == slippageCustomErrorCode
		}
	}
	msg := err.Error()
	return strings.Contains(msg, slippageErrorCodeHex) ||
		strings.Contains(msg, slippageErrorCodeName)
}

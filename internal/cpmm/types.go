// internal/cpmm/types.go
package cpmm

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/eldarkhamitov/solana-cpmm/internal/blockchain/solana/programs/computebudget"
)

const (
	// FeeRateDenominator is the fixed-point denominator of trade fee rates:
	// a rate of 2500 means 0.25%.
	FeeRateDenominator uint64 = 1_000_000

	// SlippageDenominator is the fixed-point denominator of slippage
	// tolerances expressed in basis points.
	SlippageDenominator uint64 = 10_000
)

// Mint describes one side of a pool.
type Mint struct {
	Address  solana.PublicKey
	Program  solana.PublicKey
	Decimals uint8
}

// Pool is the read-only descriptor of a constant-product pool: addresses,
// mints and the trade fee rate. Fetched fresh per swap request and never
// mutated here.
type Pool struct {
	ID          solana.PublicKey
	AmmConfig   solana.PublicKey
	Authority   solana.PublicKey
	Observation solana.PublicKey

	BaseMint  Mint
	QuoteMint Mint

	BaseVault  solana.PublicKey
	QuoteVault solana.PublicKey

	// TradeFeeRate is in parts per FeeRateDenominator.
	TradeFeeRate uint64
}

// ReserveSnapshot is the point-in-time reserve state of a pool, in smallest
// units, net of fees accrued to the protocol inside the vaults. Staleness
// between the read and on-chain execution is absorbed by the slippage bound.
type ReserveSnapshot struct {
	PoolID       solana.PublicKey
	BaseReserve  uint64
	QuoteReserve uint64
	FetchedAt    time.Time
}

// TipConfig describes the optional tip transfer appended to a swap
// transaction. The tip rides in the same atomic bundle as the swap.
type TipConfig struct {
	Recipient solana.PublicKey
	Lamports  uint64
}

// SwapBaseOutParams is the caller intent for an exact-output swap. Omitted
// optional fields fall back to the named defaults configured on the engine;
// every substitution is logged.
type SwapBaseOutParams struct {
	// PoolID is the pool address; empty means the configured default pool.
	PoolID string
	// OutputMint is the mint the caller wants to receive; empty means the
	// configured default output mint.
	OutputMint string
	// OutputAmount is the exact amount to receive, in smallest units of the
	// output mint; zero means the configured default amount.
	OutputAmount uint64
	// SlippageBps bounds how much the encoded max input may exceed the
	// computed input. Nil means the configured default; an explicit 0 pins
	// the max input to the computed input exactly.
	SlippageBps *uint64
	// BaseIn forces which mint is treated as the input side; nil derives the
	// direction from OutputMint.
	BaseIn *bool

	Tip    *TipConfig
	Budget *computebudget.Config

	// AwaitConfirmation blocks until the cluster confirms the transaction
	// (or ConfirmTimeout elapses); otherwise the call returns right after
	// broadcast.
	AwaitConfirmation bool
	ConfirmTimeout    time.Duration
}

// SwapBaseInParams is the caller intent for an exact-input swap.
type SwapBaseInParams struct {
	PoolID      string
	InputMint   string
	InputAmount uint64
	SlippageBps *uint64
	BaseIn      *bool

	Tip    *TipConfig
	Budget *computebudget.Config

	AwaitConfirmation bool
	ConfirmTimeout    time.Duration
}

// SwapComputation is the pure result of applying the constant-product formula
// to one reserve snapshot.
type SwapComputation struct {
	// AmountIn is the gross required input including the trading fee.
	AmountIn uint64
	// TradingFee is the fee portion of AmountIn, in input-mint units.
	TradingFee uint64
	// AmountOut is the exact output the computation guarantees.
	AmountOut uint64
	// BaseIn reports whether the base mint is the input side.
	BaseIn bool
}

// SwapOutcome is returned after a successful broadcast. The output amount is
// exact by construction; the input side is the computed amount, bounded on
// chain by MaxAmountIn.
type SwapOutcome struct {
	Signature   solana.Signature
	AmountIn    uint64
	MaxAmountIn uint64
	AmountOut   uint64
	TradingFee  uint64
}

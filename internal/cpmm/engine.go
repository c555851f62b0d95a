// internal/cpmm/engine.go
package cpmm

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/eldarkhamitov/solana-cpmm/internal/blockchain/solana/programs/computebudget"
	"github.com/eldarkhamitov/solana-cpmm/internal/config"
	"github.com/eldarkhamitov/solana-cpmm/internal/logger"
	"github.com/eldarkhamitov/solana-cpmm/internal/wallet"
)

const blockhashMaxRetries = 3

// Submitter is the slice of the RPC client the engine needs to broadcast.
type Submitter interface {
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	WaitForConfirmation(ctx context.Context, signature solana.Signature, timeout time.Duration) error
}

// Defaults are the values substituted for fields a swap request omits. Every
// substitution is logged at warn level so demo fallbacks never pass silently.
type Defaults struct {
	PoolID         string
	OutputMint     string
	OutputAmount   uint64
	SlippageBps    uint64
	TipRecipient   string
	TipLamports    uint64
	Budget         computebudget.Config
	ConfirmTimeout time.Duration
}

// DefaultsFromConfig maps the loaded configuration into engine defaults.
func DefaultsFromConfig(cfg *config.Config) Defaults {
	return Defaults{
		PoolID:       cfg.PoolID,
		OutputMint:   cfg.OutputMint,
		OutputAmount: cfg.OutputAmount,
		SlippageBps:  cfg.SlippageBps,
		TipRecipient: cfg.TipRecipient,
		TipLamports:  cfg.TipLamports,
		Budget: computebudget.Config{
			Units:     cfg.ComputeUnitLimit,
			UnitPrice: cfg.ComputeUnitPrice,
		},
		ConfirmTimeout: time.Duration(cfg.ConfirmTimeout) * time.Second,
	}
}

// NewResolverForNetwork selects the pool-state source for the network: the
// aggregated index backs mainnet, everything else reads chain only. The
// choice is explicit and logged instead of buried in request handling.
func NewResolverForNetwork(network config.Network, indexBaseURL string, chain AccountReader, log *logger.Logger) PoolResolver {
	if network == config.NetworkMainnet && indexBaseURL != "" {
		log.Info("using index-backed pool resolver",
			zap.String("network", string(network)),
			zap.String("index_base_url", indexBaseURL))
		return NewIndexResolver(indexBaseURL, chain, log.Logger)
	}
	log.Info("using chain-only pool resolver", zap.String("network", string(network)))
	return NewChainResolver(chain, log.Logger)
}

// Engine executes constant-product swaps: it resolves pool state, runs the
// exact-output (or exact-input) computation, assembles one atomic
// transaction, signs it and broadcasts it. The engine keeps no state between
// calls; every request re-reads the pool.
type Engine struct {
	resolver  PoolResolver
	submitter Submitter
	wallet    *wallet.Wallet
	defaults  Defaults
	logger    *logger.Logger
}

func NewEngine(resolver PoolResolver, submitter Submitter, w *wallet.Wallet, defaults Defaults, log *logger.Logger) *Engine {
	return &Engine{
		resolver:  resolver,
		submitter: submitter,
		wallet:    w,
		defaults:  defaults,
		logger:    log,
	}
}

// swapSides is a pool viewed from one trade direction.
type swapSides struct {
	in         Mint
	out        Mint
	inVault    solana.PublicKey
	outVault   solana.PublicKey
	reserveIn  uint64
	reserveOut uint64
}

func poolSides(pool *Pool, snapshot *ReserveSnapshot, baseIn bool) swapSides {
	if baseIn {
		return swapSides{
			in:         pool.BaseMint,
			out:        pool.QuoteMint,
			inVault:    pool.BaseVault,
			outVault:   pool.QuoteVault,
			reserveIn:  snapshot.BaseReserve,
			reserveOut: snapshot.QuoteReserve,
		}
	}
	return swapSides{
		in:         pool.QuoteMint,
		out:        pool.BaseMint,
		inVault:    pool.QuoteVault,
		outVault:   pool.BaseVault,
		reserveIn:  snapshot.QuoteReserve,
		reserveOut: snapshot.BaseReserve,
	}
}

// QuoteBaseOut computes what an exact-output swap would cost right now,
// without touching the chain beyond the pool read. The numbers are only as
// fresh as the reserve snapshot behind them.
func (e *Engine) QuoteBaseOut(ctx context.Context, params SwapBaseOutParams) (*SwapComputation, error) {
	log := e.logger.WithOperation("quote_base_out")
	e.applyBaseOutDefaults(&params, log)

	_, _, computation, _, err := e.prepareBaseOut(ctx, &params, log)
	if err != nil {
		return nil, err
	}
	return computation, nil
}

// SwapBaseOut executes an exact-output swap: the caller receives exactly the
// requested output amount or the transaction fails as a whole. The encoded
// input bound is the computed requirement widened by the slippage tolerance.
func (e *Engine) SwapBaseOut(ctx context.Context, params SwapBaseOutParams) (*SwapOutcome, error) {
	log := e.logger.WithOperation("swap_base_out")
	e.applyBaseOutDefaults(&params, log)

	pool, sides, computation, maxAmountIn, err := e.prepareBaseOut(ctx, &params, log)
	if err != nil {
		return nil, err
	}

	log.Info("computed swap",
		zap.Uint64("amount_out", computation.AmountOut),
		zap.Uint64("amount_in", computation.AmountIn),
		zap.Uint64("max_amount_in", maxAmountIn),
		zap.Uint64("trading_fee", computation.TradingFee),
		zap.Bool("base_in", computation.BaseIn))

	accounts, err := e.swapAccounts(pool, sides)
	if err != nil {
		return nil, err
	}
	swapInstruction, err := NewSwapBaseOutputInstruction(accounts, maxAmountIn, computation.AmountOut)
	if err != nil {
		return nil, err
	}

	signature, err := e.execute(ctx, params.budget(e.defaults), sides.out, swapInstruction, e.tipFor(params.Tip, log), params.AwaitConfirmation, params.confirmTimeout(e.defaults), log)
	if err != nil {
		if IsSlippageError(err) {
			return nil, &SlippageExceededError{MaxAmountIn: maxAmountIn, Err: err}
		}
		return nil, err
	}

	return &SwapOutcome{
		Signature:   signature,
		AmountIn:    computation.AmountIn,
		MaxAmountIn: maxAmountIn,
		AmountOut:   computation.AmountOut,
		TradingFee:  computation.TradingFee,
	}, nil
}

// SwapBaseIn executes an exact-input swap: the caller spends exactly the
// given input amount and receives at least the computed output narrowed by
// the slippage tolerance.
func (e *Engine) SwapBaseIn(ctx context.Context, params SwapBaseInParams) (*SwapOutcome, error) {
	log := e.logger.WithOperation("swap_base_in")

	if params.PoolID == "" {
		log.Warn("no pool specified, using default pool", zap.String("pool_id", e.defaults.PoolID))
		params.PoolID = e.defaults.PoolID
	}
	if params.InputMint == "" {
		return nil, fmt.Errorf("%w: input mint is required", ErrMintMismatch)
	}
	if params.InputAmount == 0 {
		return nil, fmt.Errorf("%w: input amount is zero", ErrInvalidAmount)
	}
	slippageBps := e.defaults.SlippageBps
	if params.SlippageBps != nil {
		slippageBps = *params.SlippageBps
	} else {
		log.Warn("no slippage specified, using default", zap.Uint64("slippage_bps", slippageBps))
	}

	poolID, err := solana.PublicKeyFromBase58(params.PoolID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed pool id %q", ErrPoolNotFound, params.PoolID)
	}
	inputMint, err := solana.PublicKeyFromBase58(params.InputMint)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed mint %q", ErrMintMismatch, params.InputMint)
	}

	pool, snapshot, err := e.resolver.Resolve(ctx, poolID)
	if err != nil {
		return nil, err
	}

	baseIn, err := directionFromInputMint(pool, inputMint)
	if err != nil {
		return nil, err
	}
	if params.BaseIn != nil && *params.BaseIn != baseIn {
		log.Warn("direction override contradicts input mint, honoring override",
			zap.Bool("derived_base_in", baseIn),
			zap.Bool("override_base_in", *params.BaseIn))
		baseIn = *params.BaseIn
	}
	sides := poolSides(pool, snapshot, baseIn)

	amountOut, fee, err := ExpectedOutput(sides.reserveIn, sides.reserveOut, pool.TradeFeeRate, params.InputAmount)
	if err != nil {
		return nil, err
	}
	minAmountOut, err := MinAmountOutWithSlippage(amountOut, slippageBps)
	if err != nil {
		return nil, err
	}

	log.Info("computed swap",
		zap.Uint64("amount_in", params.InputAmount),
		zap.Uint64("amount_out", amountOut),
		zap.Uint64("min_amount_out", minAmountOut),
		zap.Uint64("trading_fee", fee),
		zap.Bool("base_in", baseIn))

	accounts, err := e.swapAccounts(pool, sides)
	if err != nil {
		return nil, err
	}
	swapInstruction, err := NewSwapBaseInputInstruction(accounts, params.InputAmount, minAmountOut)
	if err != nil {
		return nil, err
	}

	signature, err := e.execute(ctx, paramsBudget(params.Budget, e.defaults), sides.out, swapInstruction, e.tipFor(params.Tip, log), params.AwaitConfirmation, confirmTimeoutOrDefault(params.ConfirmTimeout, e.defaults), log)
	if err != nil {
		if IsSlippageError(err) {
			return nil, &SlippageExceededError{MaxAmountIn: params.InputAmount, Err: err}
		}
		return nil, err
	}

	return &SwapOutcome{
		Signature:  signature,
		AmountIn:   params.InputAmount,
		AmountOut:  amountOut,
		TradingFee: fee,
	}, nil
}

// applyBaseOutDefaults fills omitted request fields from the configured
// defaults, logging each substitution.
func (e *Engine) applyBaseOutDefaults(params *SwapBaseOutParams, log *zap.Logger) {
	if params.PoolID == "" {
		log.Warn("no pool specified, using default pool", zap.String("pool_id", e.defaults.PoolID))
		params.PoolID = e.defaults.PoolID
	}
	if params.OutputMint == "" {
		log.Warn("no output mint specified, using default mint", zap.String("output_mint", e.defaults.OutputMint))
		params.OutputMint = e.defaults.OutputMint
	}
	if params.OutputAmount == 0 {
		log.Warn("no output amount specified, using default amount", zap.Uint64("output_amount", e.defaults.OutputAmount))
		params.OutputAmount = e.defaults.OutputAmount
	}
	if params.SlippageBps == nil {
		slippage := e.defaults.SlippageBps
		log.Warn("no slippage specified, using default", zap.Uint64("slippage_bps", slippage))
		params.SlippageBps = &slippage
	}
}

// prepareBaseOut runs the shared resolve-guard-compute pipeline of quoting
// and swapping.
func (e *Engine) prepareBaseOut(ctx context.Context, params *SwapBaseOutParams, log *zap.Logger) (*Pool, swapSides, *SwapComputation, uint64, error) {
	poolID, err := solana.PublicKeyFromBase58(params.PoolID)
	if err != nil {
		return nil, swapSides{}, nil, 0, fmt.Errorf("%w: malformed pool id %q", ErrPoolNotFound, params.PoolID)
	}
	outputMint, err := solana.PublicKeyFromBase58(params.OutputMint)
	if err != nil {
		return nil, swapSides{}, nil, 0, fmt.Errorf("%w: malformed mint %q", ErrMintMismatch, params.OutputMint)
	}
	if params.OutputAmount == 0 {
		return nil, swapSides{}, nil, 0, fmt.Errorf("%w: output amount is zero", ErrInvalidAmount)
	}
	if *params.SlippageBps > SlippageDenominator {
		return nil, swapSides{}, nil, 0, fmt.Errorf("%w: %d bps", ErrInvalidSlippage, *params.SlippageBps)
	}

	pool, snapshot, err := e.resolver.Resolve(ctx, poolID)
	if err != nil {
		return nil, swapSides{}, nil, 0, err
	}

	baseIn, err := directionFromOutputMint(pool, outputMint)
	if err != nil {
		return nil, swapSides{}, nil, 0, err
	}
	if params.BaseIn != nil && *params.BaseIn != baseIn {
		log.Warn("direction override contradicts output mint, honoring override",
			zap.Bool("derived_base_in", baseIn),
			zap.Bool("override_base_in", *params.BaseIn))
		baseIn = *params.BaseIn
	}
	sides := poolSides(pool, snapshot, baseIn)

	amountIn, fee, err := RequiredInput(sides.reserveIn, sides.reserveOut, pool.TradeFeeRate, params.OutputAmount)
	if err != nil {
		return nil, swapSides{}, nil, 0, err
	}
	maxAmountIn, err := MaxAmountInWithSlippage(amountIn, *params.SlippageBps)
	if err != nil {
		return nil, swapSides{}, nil, 0, err
	}

	computation := &SwapComputation{
		AmountIn:   amountIn,
		TradingFee: fee,
		AmountOut:  params.OutputAmount,
		BaseIn:     baseIn,
	}
	return pool, sides, computation, maxAmountIn, nil
}

// directionFromOutputMint derives the trade direction from which side of the
// pool the caller wants to receive.
func directionFromOutputMint(pool *Pool, outputMint solana.PublicKey) (bool, error) {
	switch {
	case outputMint.Equals(pool.QuoteMint.Address):
		return true, nil
	case outputMint.Equals(pool.BaseMint.Address):
		return false, nil
	default:
		return false, fmt.Errorf("%w: mint %s not in pool %s", ErrMintMismatch, outputMint, pool.ID)
	}
}

func directionFromInputMint(pool *Pool, inputMint solana.PublicKey) (bool, error) {
	switch {
	case inputMint.Equals(pool.BaseMint.Address):
		return true, nil
	case inputMint.Equals(pool.QuoteMint.Address):
		return false, nil
	default:
		return false, fmt.Errorf("%w: mint %s not in pool %s", ErrMintMismatch, inputMint, pool.ID)
	}
}

// swapAccounts assembles the account list of a swap instruction from the
// wallet's associated token accounts and the pool descriptor.
func (e *Engine) swapAccounts(pool *Pool, sides swapSides) (SwapAccounts, error) {
	inputTokenAccount, err := e.wallet.GetATA(sides.in.Address, sides.in.Program)
	if err != nil {
		return SwapAccounts{}, fmt.Errorf("failed to derive input token account: %w", err)
	}
	outputTokenAccount, err := e.wallet.GetATA(sides.out.Address, sides.out.Program)
	if err != nil {
		return SwapAccounts{}, fmt.Errorf("failed to derive output token account: %w", err)
	}
	return SwapAccounts{
		Payer:              e.wallet.PublicKey,
		Authority:          pool.Authority,
		AmmConfig:          pool.AmmConfig,
		PoolState:          pool.ID,
		InputTokenAccount:  inputTokenAccount,
		OutputTokenAccount: outputTokenAccount,
		InputVault:         sides.inVault,
		OutputVault:        sides.outVault,
		InputTokenProgram:  sides.in.Program,
		OutputTokenProgram: sides.out.Program,
		InputMint:          sides.in.Address,
		OutputMint:         sides.out.Address,
		Observation:        pool.Observation,
	}, nil
}

// tipFor resolves the effective tip: an explicit request wins, otherwise the
// configured default. A nil return means no tip instruction is appended.
func (e *Engine) tipFor(requested *TipConfig, log *zap.Logger) *TipConfig {
	if requested != nil {
		if requested.Lamports == 0 {
			return nil
		}
		return requested
	}
	if e.defaults.TipLamports == 0 || e.defaults.TipRecipient == "" {
		return nil
	}
	recipient, err := solana.PublicKeyFromBase58(e.defaults.TipRecipient)
	if err != nil {
		log.Warn("default tip recipient is malformed, skipping tip",
			zap.String("tip_recipient", e.defaults.TipRecipient))
		return nil
	}
	return &TipConfig{Recipient: recipient, Lamports: e.defaults.TipLamports}
}

// execute assembles the atomic transaction in fixed order (compute budget,
// idempotent output-account create, swap, optional tip), signs it and
// broadcasts it. The blockhash fetch is the only retried step; the broadcast
// itself is never retried because a duplicate send can double-spend the
// intent.
func (e *Engine) execute(
	ctx context.Context,
	budget computebudget.Config,
	outputMint Mint,
	swapInstruction solana.Instruction,
	tip *TipConfig,
	awaitConfirmation bool,
	confirmTimeout time.Duration,
	log *zap.Logger,
) (solana.Signature, error) {
	budgetInstructions, err := computebudget.BuildInstructions(budget)
	if err != nil {
		return solana.Signature{}, err
	}

	instructions := make([]solana.Instruction, 0, len(budgetInstructions)+3)
	instructions = append(instructions, budgetInstructions...)
	instructions = append(instructions, e.wallet.CreateATAIdempotentInstruction(outputMint.Address, outputMint.Program))
	instructions = append(instructions, swapInstruction)
	if tip != nil {
		instructions = append(instructions, NewTipInstruction(e.wallet.PublicKey, *tip))
	}

	blockhash, err := backoff.Retry(ctx, func() (solana.Hash, error) {
		return e.submitter.GetLatestBlockhash(ctx)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(blockhashMaxRetries))
	if err != nil {
		return solana.Signature{}, &SubmissionError{Err: fmt.Errorf("failed to fetch blockhash: %w", err)}
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(e.wallet.PublicKey))
	if err != nil {
		return solana.Signature{}, &SubmissionError{Err: fmt.Errorf("failed to build transaction: %w", err)}
	}
	if err := e.wallet.SignTransaction(tx); err != nil {
		return solana.Signature{}, &SigningError{Err: err}
	}

	signature, err := e.submitter.SendTransaction(ctx, tx)
	if err != nil {
		if IsSlippageError(err) {
			return solana.Signature{}, err
		}
		return solana.Signature{}, &SubmissionError{Err: err}
	}

	txLog := logger.WithTransaction(log, signature.String())
	txLog.Info("transaction broadcast")

	if awaitConfirmation {
		if err := e.submitter.WaitForConfirmation(ctx, signature, confirmTimeout); err != nil {
			txLog.Error("confirmation failed", zap.Error(err))
			return solana.Signature{}, fmt.Errorf("transaction %s: %w", signature, err)
		}
		txLog.Info("transaction confirmed")
	}
	return signature, nil
}

func (p *SwapBaseOutParams) budget(defaults Defaults) computebudget.Config {
	return paramsBudget(p.Budget, defaults)
}

func (p *SwapBaseOutParams) confirmTimeout(defaults Defaults) time.Duration {
	return confirmTimeoutOrDefault(p.ConfirmTimeout, defaults)
}

func paramsBudget(requested *computebudget.Config, defaults Defaults) computebudget.Config {
	if requested != nil {
		return *requested
	}
	return defaults.Budget
}

func confirmTimeoutOrDefault(requested time.Duration, defaults Defaults) time.Duration {
	if requested > 0 {
		return requested
	}
	return defaults.ConfirmTimeout
}

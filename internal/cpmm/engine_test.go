// internal/cpmm/engine_test.go
package cpmm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	solclient "github.com/eldarkhamitov/solana-cpmm/internal/blockchain/solana"
	"github.com/eldarkhamitov/solana-cpmm/internal/blockchain/solana/programs/computebudget"
	"github.com/eldarkhamitov/solana-cpmm/internal/logger"
	"github.com/eldarkhamitov/solana-cpmm/internal/wallet"
)

type stubResolver struct {
	pool     *Pool
	snapshot *ReserveSnapshot
	err      error

	calls      int
	lastPoolID solana.PublicKey
}

func (r *stubResolver) Resolve(_ context.Context, poolID solana.PublicKey) (*Pool, *ReserveSnapshot, error) {
	r.calls++
	r.lastPoolID = poolID
	if r.err != nil {
		return nil, nil, r.err
	}
	return r.pool, r.snapshot, nil
}

type spySubmitter struct {
	blockhashErr error
	sendErr      error
	confirmErr   error

	sendCalls    int
	confirmCalls int
	lastTx       *solana.Transaction
}

func (s *spySubmitter) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	if s.blockhashErr != nil {
		return solana.Hash{}, s.blockhashErr
	}
	return solana.Hash{1}, nil
}

func (s *spySubmitter) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	s.sendCalls++
	s.lastTx = tx
	if s.sendErr != nil {
		return solana.Signature{}, s.sendErr
	}
	return solana.Signature{2}, nil
}

func (s *spySubmitter) WaitForConfirmation(context.Context, solana.Signature, time.Duration) error {
	s.confirmCalls++
	return s.confirmErr
}

type engineFixture struct {
	engine    *Engine
	resolver  *stubResolver
	submitter *spySubmitter
	pool      *Pool
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	privateKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	testWallet, err := wallet.NewWallet(privateKey.String())
	require.NoError(t, err)

	authority, err := PoolAuthority()
	require.NoError(t, err)

	pool := &Pool{
		ID:          solana.NewWallet().PublicKey(),
		AmmConfig:   solana.NewWallet().PublicKey(),
		Authority:   authority,
		Observation: solana.NewWallet().PublicKey(),
		BaseMint: Mint{
			Address:  solana.WrappedSol,
			Program:  solana.TokenProgramID,
			Decimals: 9,
		},
		QuoteMint: Mint{
			Address:  solana.NewWallet().PublicKey(),
			Program:  solana.TokenProgramID,
			Decimals: 6,
		},
		BaseVault:    solana.NewWallet().PublicKey(),
		QuoteVault:   solana.NewWallet().PublicKey(),
		TradeFeeRate: 2_500,
	}
	snapshot := &ReserveSnapshot{
		PoolID:       pool.ID,
		BaseReserve:  1_000_000_000,
		QuoteReserve: 50_000_000,
		FetchedAt:    time.Now(),
	}

	resolver := &stubResolver{pool: pool, snapshot: snapshot}
	submitter := &spySubmitter{}
	defaults := Defaults{
		PoolID:         pool.ID.String(),
		OutputMint:     pool.QuoteMint.Address.String(),
		OutputAmount:   1_000_000,
		SlippageBps:    50,
		Budget:         computebudget.DefaultConfig(),
		ConfirmTimeout: 5 * time.Second,
	}

	engine := NewEngine(resolver, submitter, testWallet, defaults, &logger.Logger{Logger: zap.NewNop()})
	return &engineFixture{
		engine:    engine,
		resolver:  resolver,
		submitter: submitter,
		pool:      pool,
	}
}

func TestSwapBaseOutReferenceOutcome(t *testing.T) {
	f := newEngineFixture(t)

	outcome, err := f.engine.SwapBaseOut(context.Background(), SwapBaseOutParams{})
	require.NoError(t, err)

	assert.Equal(t, uint64(1_000_000), outcome.AmountOut)
	assert.Equal(t, uint64(20_459_313), outcome.AmountIn)
	assert.Equal(t, uint64(51_149), outcome.TradingFee)
	assert.Equal(t, uint64(20_459_313+102_297), outcome.MaxAmountIn)
	assert.Equal(t, 1, f.submitter.sendCalls)
	assert.Equal(t, 0, f.submitter.confirmCalls)
}

func TestSwapBaseOutDefaultsSubstitution(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.SwapBaseOut(context.Background(), SwapBaseOutParams{})
	require.NoError(t, err)
	assert.Equal(t, f.pool.ID, f.resolver.lastPoolID)
	assert.Equal(t, 1, f.resolver.calls)
}

func TestSwapBaseOutTransactionShape(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.SwapBaseOut(context.Background(), SwapBaseOutParams{})
	require.NoError(t, err)
	require.NotNil(t, f.submitter.lastTx)

	// limit + price + idempotent create + swap, no tip configured
	assert.Len(t, f.submitter.lastTx.Message.Instructions, 4)
	assert.NotEmpty(t, f.submitter.lastTx.Signatures)
}

func TestSwapBaseOutAppendsTip(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.SwapBaseOut(context.Background(), SwapBaseOutParams{
		Tip: &TipConfig{
			Recipient: solana.NewWallet().PublicKey(),
			Lamports:  100_000,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, f.submitter.lastTx)
	assert.Len(t, f.submitter.lastTx.Message.Instructions, 5)
}

func TestSwapBaseOutMintMismatch(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.SwapBaseOut(context.Background(), SwapBaseOutParams{
		OutputMint: solana.NewWallet().PublicKey().String(),
	})
	assert.ErrorIs(t, err, ErrMintMismatch)
	assert.Equal(t, 0, f.submitter.sendCalls)
}

func TestSwapBaseOutPoolNotFound(t *testing.T) {
	f := newEngineFixture(t)
	f.resolver.err = ErrPoolNotFound

	_, err := f.engine.SwapBaseOut(context.Background(), SwapBaseOutParams{})
	assert.ErrorIs(t, err, ErrPoolNotFound)
	assert.Equal(t, 0, f.submitter.sendCalls)
}

func TestSwapBaseOutMalformedPoolID(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.SwapBaseOut(context.Background(), SwapBaseOutParams{
		PoolID: "not-a-pubkey",
	})
	assert.ErrorIs(t, err, ErrPoolNotFound)
	assert.Equal(t, 0, f.resolver.calls)
}

func TestSwapBaseOutInsufficientLiquidity(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.SwapBaseOut(context.Background(), SwapBaseOutParams{
		OutputAmount: 50_000_000,
	})
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	assert.Equal(t, 0, f.submitter.sendCalls)
}

func TestSwapBaseOutZeroSlippagePinsBound(t *testing.T) {
	f := newEngineFixture(t)
	zero := uint64(0)

	outcome, err := f.engine.SwapBaseOut(context.Background(), SwapBaseOutParams{
		SlippageBps: &zero,
	})
	require.NoError(t, err)
	assert.Equal(t, outcome.AmountIn, outcome.MaxAmountIn)
}

func TestSwapBaseOutInvalidSlippage(t *testing.T) {
	f := newEngineFixture(t)
	tooWide := uint64(10_001)

	_, err := f.engine.SwapBaseOut(context.Background(), SwapBaseOutParams{
		SlippageBps: &tooWide,
	})
	assert.ErrorIs(t, err, ErrInvalidSlippage)
	assert.Equal(t, 0, f.submitter.sendCalls)
}

func TestSwapBaseOutSlippageErrorFromBroadcast(t *testing.T) {
	f := newEngineFixture(t)
	f.submitter.sendErr = errors.New("transaction failed: custom program error: 0x1775")

	_, err := f.engine.SwapBaseOut(context.Background(), SwapBaseOutParams{})
	var slippageErr *SlippageExceededError
	require.ErrorAs(t, err, &slippageErr)
	assert.Equal(t, uint64(20_459_313+102_297), slippageErr.MaxAmountIn)
	assert.Equal(t, 0, f.submitter.confirmCalls)
}

func TestSwapBaseOutSlippageErrorFromConfirmation(t *testing.T) {
	// With preflight skipped, the bound violation only surfaces once the
	// landed transaction's status reports the program's custom error.
	f := newEngineFixture(t)
	f.submitter.confirmErr = &solclient.TransactionError{Err: map[string]interface{}{
		"InstructionError": []interface{}{
			float64(3),
			map[string]interface{}{"Custom": float64(6005)},
		},
	}}

	_, err := f.engine.SwapBaseOut(context.Background(), SwapBaseOutParams{
		AwaitConfirmation: true,
	})
	var slippageErr *SlippageExceededError
	require.ErrorAs(t, err, &slippageErr)
	assert.Equal(t, uint64(20_459_313+102_297), slippageErr.MaxAmountIn)
	assert.Equal(t, 1, f.submitter.confirmCalls)
}

func TestSwapBaseOutOtherProgramErrorIsNotSlippage(t *testing.T) {
	f := newEngineFixture(t)
	f.submitter.confirmErr = &solclient.TransactionError{Err: map[string]interface{}{
		"InstructionError": []interface{}{
			float64(3),
			map[string]interface{}{"Custom": float64(6004)},
		},
	}}

	_, err := f.engine.SwapBaseOut(context.Background(), SwapBaseOutParams{
		AwaitConfirmation: true,
	})
	require.Error(t, err)
	var slippageErr *SlippageExceededError
	assert.False(t, errors.As(err, &slippageErr))
}

func TestSwapBaseOutSubmissionFailure(t *testing.T) {
	f := newEngineFixture(t)
	f.submitter.sendErr = errors.New("connection refused")

	outcome, err := f.engine.SwapBaseOut(context.Background(), SwapBaseOutParams{
		AwaitConfirmation: true,
	})
	var submissionErr *SubmissionError
	require.ErrorAs(t, err, &submissionErr)
	assert.Nil(t, outcome)
	// a failed broadcast must never reach the confirmation wait
	assert.Equal(t, 0, f.submitter.confirmCalls)
}

func TestSwapBaseOutAwaitsConfirmation(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.SwapBaseOut(context.Background(), SwapBaseOutParams{
		AwaitConfirmation: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.submitter.confirmCalls)
}

func TestQuoteBaseOutDoesNotBroadcast(t *testing.T) {
	f := newEngineFixture(t)

	computation, err := f.engine.QuoteBaseOut(context.Background(), SwapBaseOutParams{})
	require.NoError(t, err)
	assert.Equal(t, uint64(20_459_313), computation.AmountIn)
	assert.Equal(t, uint64(51_149), computation.TradingFee)
	assert.Equal(t, uint64(1_000_000), computation.AmountOut)
	assert.True(t, computation.BaseIn)
	assert.Equal(t, 0, f.submitter.sendCalls)
}

func TestSwapBaseIn(t *testing.T) {
	f := newEngineFixture(t)

	outcome, err := f.engine.SwapBaseIn(context.Background(), SwapBaseInParams{
		InputMint:   f.pool.BaseMint.Address.String(),
		InputAmount: 20_459_313,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(20_459_313), outcome.AmountIn)
	assert.GreaterOrEqual(t, outcome.AmountOut, uint64(1_000_000))
	assert.Equal(t, 1, f.submitter.sendCalls)
}

func TestSwapBaseInRequiresInputMint(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.SwapBaseIn(context.Background(), SwapBaseInParams{
		InputAmount: 1_000,
	})
	assert.ErrorIs(t, err, ErrMintMismatch)

	_, err = f.engine.SwapBaseIn(context.Background(), SwapBaseInParams{
		InputMint: f.pool.BaseMint.Address.String(),
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, 0, f.submitter.sendCalls)
}

func TestSwapBaseOutDirectionOverride(t *testing.T) {
	f := newEngineFixture(t)
	forceQuoteIn := false

	// Receiving the quote mint normally means paying base; the override flips
	// the trade to pay quote and receive base.
	outcome, err := f.engine.SwapBaseOut(context.Background(), SwapBaseOutParams{
		BaseIn: &forceQuoteIn,
	})
	require.NoError(t, err)
	require.NotNil(t, outcome)

	computation, err := f.engine.QuoteBaseOut(context.Background(), SwapBaseOutParams{
		BaseIn: &forceQuoteIn,
	})
	require.NoError(t, err)
	assert.False(t, computation.BaseIn)
}

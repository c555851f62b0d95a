// internal/cpmm/resolver.go
package cpmm

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	solclient "github.com/eldarkhamitov/solana-cpmm/internal/blockchain/solana"
)

// AccountReader is the slice of the RPC client the resolvers need.
type AccountReader interface {
	GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetMultipleAccounts(ctx context.Context, pubkeys []solana.PublicKey) (*rpc.GetMultipleAccountsResult, error)
}

// PoolResolver turns a pool address into its descriptor and a fresh reserve
// snapshot. Implementations differ in where metadata comes from; reserves are
// always read live.
type PoolResolver interface {
	Resolve(ctx context.Context, poolID solana.PublicKey) (*Pool, *ReserveSnapshot, error)
}

// ChainResolver reads everything from chain: the pool state account, its fee
// configuration, and both vault balances. Used on networks the aggregated
// index does not cover.
type ChainResolver struct {
	client AccountReader
	logger *zap.Logger
}

func NewChainResolver(client AccountReader, logger *zap.Logger) *ChainResolver {
	return &ChainResolver{
		client: client,
		logger: logger.Named("chain-resolver"),
	}
}

// Resolve fetches and decodes the pool account, then batches the fee config
// and both vaults into one read so the snapshot is internally consistent.
func (r *ChainResolver) Resolve(ctx context.Context, poolID solana.PublicKey) (*Pool, *ReserveSnapshot, error) {
	account, err := r.client.GetAccountInfo(ctx, poolID)
	if err != nil {
		if solclient.IsAccountNotFoundError(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
		}
		return nil, nil, fmt.Errorf("failed to fetch pool account: %w", err)
	}
	if account == nil || account.Value == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
	}
	if !account.Value.Owner.Equals(ProgramID) {
		return nil, nil, fmt.Errorf("%w: account %s owned by %s", ErrUnsupportedPoolType, poolID, account.Value.Owner)
	}

	state, err := DecodePoolState(account.Value.Data.GetBinary())
	if err != nil {
		return nil, nil, err
	}

	batch, err := r.client.GetMultipleAccounts(ctx, []solana.PublicKey{
		state.AmmConfig,
		state.Token0Vault,
		state.Token1Vault,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch pool accounts: %w", err)
	}
	if len(batch.Value) != 3 || batch.Value[0] == nil || batch.Value[1] == nil || batch.Value[2] == nil {
		return nil, nil, fmt.Errorf("%w: missing config or vault accounts for %s", ErrPoolNotFound, poolID)
	}

	ammConfig, err := DecodeAmmConfig(batch.Value[0].Data.GetBinary())
	if err != nil {
		return nil, nil, err
	}
	vault0Amount, err := tokenAccountAmount(batch.Value[1].Data.GetBinary())
	if err != nil {
		return nil, nil, fmt.Errorf("base vault: %w", err)
	}
	vault1Amount, err := tokenAccountAmount(batch.Value[2].Data.GetBinary())
	if err != nil {
		return nil, nil, fmt.Errorf("quote vault: %w", err)
	}

	pool, err := poolFromState(poolID, state, ammConfig.TradeFeeRate)
	if err != nil {
		return nil, nil, err
	}
	snapshot := &ReserveSnapshot{
		PoolID:       poolID,
		BaseReserve:  saturatingSub(vault0Amount, state.ProtocolFeesToken0+state.FundFeesToken0),
		QuoteReserve: saturatingSub(vault1Amount, state.ProtocolFeesToken1+state.FundFeesToken1),
		FetchedAt:    time.Now(),
	}

	r.logger.Debug("resolved pool from chain",
		zap.String("pool", poolID.String()),
		zap.Uint64("base_reserve", snapshot.BaseReserve),
		zap.Uint64("quote_reserve", snapshot.QuoteReserve),
		zap.Uint64("trade_fee_rate", pool.TradeFeeRate))
	return pool, snapshot, nil
}

// poolFromState maps the decoded accounts into the engine's pool descriptor.
// Token 0 is treated as the base side.
func poolFromState(poolID solana.PublicKey, state *PoolState, tradeFeeRate uint64) (*Pool, error) {
	if state.SwapDisabled() {
		return nil, fmt.Errorf("%w: pool %s status %d", ErrSwapDisabled, poolID, state.Status)
	}
	authority, err := PoolAuthority()
	if err != nil {
		return nil, err
	}
	return &Pool{
		ID:          poolID,
		AmmConfig:   state.AmmConfig,
		Authority:   authority,
		Observation: state.ObservationKey,
		BaseMint: Mint{
			Address:  state.Token0Mint,
			Program:  state.Token0Program,
			Decimals: state.Mint0Decimals,
		},
		QuoteMint: Mint{
			Address:  state.Token1Mint,
			Program:  state.Token1Program,
			Decimals: state.Mint1Decimals,
		},
		BaseVault:    state.Token0Vault,
		QuoteVault:   state.Token1Vault,
		TradeFeeRate: tradeFeeRate,
	}, nil
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

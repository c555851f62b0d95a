// internal/cpmm/index.go
package cpmm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	solclient "github.com/eldarkhamitov/solana-cpmm/internal/blockchain/solana"
)

const (
	indexRequestTimeout = 10 * time.Second
	indexMaxRetries     = 3
)

// IndexResolver resolves pool metadata through the aggregated pool index and
// reads reserves live from chain. The index answer is authoritative for the
// trade fee rate and mint metadata; reserve numbers reported by the index are
// never used because they lag the chain.
type IndexResolver struct {
	baseURL    string
	httpClient *http.Client
	chain      AccountReader
	logger     *zap.Logger
}

func NewIndexResolver(baseURL string, chain AccountReader, logger *zap.Logger) *IndexResolver {
	return &IndexResolver{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: indexRequestTimeout,
		},
		chain:  chain,
		logger: logger.Named("index-resolver"),
	}
}

type indexResponse struct {
	Success bool        `json:"success"`
	Data    []indexPool `json:"data"`
}

type indexPool struct {
	ID           string    `json:"id"`
	ProgramID    string    `json:"programId"`
	MintA        indexMint `json:"mintA"`
	MintB        indexMint `json:"mintB"`
	TradeFeeRate uint64    `json:"tradeFeeRate"`
}

type indexMint struct {
	Address   string `json:"address"`
	ProgramID string `json:"programId"`
	Decimals  uint8  `json:"decimals"`
}

// Resolve fetches index metadata and the on-chain pool state concurrently,
// then reads both vault balances in a single batched call. The pool state is
// still read from chain because vault addresses and accrued protocol fees are
// not part of the index contract.
func (r *IndexResolver) Resolve(ctx context.Context, poolID solana.PublicKey) (*Pool, *ReserveSnapshot, error) {
	var (
		meta  *indexPool
		state *PoolState
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fetched, err := r.fetchIndexPool(gctx, poolID)
		if err != nil {
			return err
		}
		meta = fetched
		return nil
	})
	g.Go(func() error {
		fetched, err := r.fetchPoolState(gctx, poolID)
		if err != nil {
			return err
		}
		state = fetched
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if meta.MintA.Address != state.Token0Mint.String() || meta.MintB.Address != state.Token1Mint.String() {
		r.logger.Warn("index mint metadata disagrees with chain, trusting chain",
			zap.String("pool", poolID.String()),
			zap.String("index_mint_a", meta.MintA.Address),
			zap.String("index_mint_b", meta.MintB.Address))
	}

	batch, err := r.chain.GetMultipleAccounts(ctx, []solana.PublicKey{
		state.Token0Vault,
		state.Token1Vault,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch vault accounts: %w", err)
	}
	if len(batch.Value) != 2 || batch.Value[0] == nil || batch.Value[1] == nil {
		return nil, nil, fmt.Errorf("%w: missing vault accounts for %s", ErrPoolNotFound, poolID)
	}
	vault0Amount, err := tokenAccountAmount(batch.Value[0].Data.GetBinary())
	if err != nil {
		return nil, nil, fmt.Errorf("base vault: %w", err)
	}
	vault1Amount, err := tokenAccountAmount(batch.Value[1].Data.GetBinary())
	if err != nil {
		return nil, nil, fmt.Errorf("quote vault: %w", err)
	}

	pool, err := poolFromState(poolID, state, meta.TradeFeeRate)
	if err != nil {
		return nil, nil, err
	}
	snapshot := &ReserveSnapshot{
		PoolID:       poolID,
		BaseReserve:  saturatingSub(vault0Amount, state.ProtocolFeesToken0+state.FundFeesToken0),
		QuoteReserve: saturatingSub(vault1Amount, state.ProtocolFeesToken1+state.FundFeesToken1),
		FetchedAt:    time.Now(),
	}

	r.logger.Debug("resolved pool from index",
		zap.String("pool", poolID.String()),
		zap.Uint64("base_reserve", snapshot.BaseReserve),
		zap.Uint64("quote_reserve", snapshot.QuoteReserve),
		zap.Uint64("trade_fee_rate", pool.TradeFeeRate))
	return pool, snapshot, nil
}

// fetchIndexPool queries the index for one pool id, retrying transient
// failures with exponential backoff. A pool the index does not know and a
// pool owned by a different program are permanent failures.
func (r *IndexResolver) fetchIndexPool(ctx context.Context, poolID solana.PublicKey) (*indexPool, error) {
	endpoint := fmt.Sprintf("%s/pools/info/ids?ids=%s", r.baseURL, url.QueryEscape(poolID.String()))

	operation := func() (*indexPool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := r.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrPoolNotFound, poolID))
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("index returned status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		var parsed indexResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse index response: %w", err)
		}
		if !parsed.Success || len(parsed.Data) == 0 {
			return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrPoolNotFound, poolID))
		}
		meta := parsed.Data[0]
		if meta.ProgramID != ProgramID.String() {
			return nil, backoff.Permanent(fmt.Errorf("%w: pool %s served by program %s", ErrUnsupportedPoolType, poolID, meta.ProgramID))
		}
		return &meta, nil
	}

	meta, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(indexMaxRetries))
	if err != nil {
		return nil, fmt.Errorf("index lookup failed: %w", err)
	}
	return meta, nil
}

func (r *IndexResolver) fetchPoolState(ctx context.Context, poolID solana.PublicKey) (*PoolState, error) {
	account, err := r.chain.GetAccountInfo(ctx, poolID)
	if err != nil {
		if solclient.IsAccountNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
		}
		return nil, fmt.Errorf("failed to fetch pool account: %w", err)
	}
	if account == nil || account.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
	}
	if !account.Value.Owner.Equals(ProgramID) {
		return nil, fmt.Errorf("%w: account %s owned by %s", ErrUnsupportedPoolType, poolID, account.Value.Owner)
	}
	return DecodePoolState(account.Value.Data.GetBinary())
}

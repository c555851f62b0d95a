// internal/blockchain/solana/client.go
package solana

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

var (
	ErrAccountNotFound = errors.New("account not found")

	// ErrConfirmationTimeout means the confirmation wait elapsed without the
	// cluster reporting a status. The transaction may still land later; the
	// caller is responsible for re-querying.
	ErrConfirmationTimeout = errors.New("confirmation timeout")
)

// IsAccountNotFoundError reports whether err is an RPC "not found" response.
func IsAccountNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

// TransactionError wraps the cluster-reported failure of a landed
// transaction. Err carries the JSON-decoded status error structure.
type TransactionError struct {
	Err interface{}
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction failed on chain: %v", e.Err)
}

// CustomErrorCode extracts the program's custom error code from the status
// error structure, shaped {"InstructionError": [index, {"Custom": code}]}.
func (e *TransactionError) CustomErrorCode() (uint64, bool) {
	status, ok := e.Err.(map[string]interface{})
	if !ok {
		return 0, false
	}
	instructionErr, ok := status["InstructionError"].([]interface{})
	if !ok || len(instructionErr) < 2 {
		return 0, false
	}
	detail, ok := instructionErr[1].(map[string]interface{})
	if !ok {
		return 0, false
	}
	switch code := detail["Custom"].(type) {
	case float64:
		return uint64(code), true
	case int:
		return uint64(code), true
	case uint64:
		return code, true
	default:
		return 0, false
	}
}

// Client is a thin adapter over the solana-go RPC client. It holds one
// connection per configured endpoint and rotates to the next endpoint when
// the current one fails, sticking with whichever answered last.
type Client struct {
	endpoints []*rpc.Client
	urls      []string
	logger    *zap.Logger

	mu      sync.Mutex
	current int
}

// NewClient creates a client over the given RPC endpoints, in preference
// order.
func NewClient(rpcURLs []string, logger *zap.Logger) (*Client, error) {
	if len(rpcURLs) == 0 {
		return nil, errors.New("no RPC endpoints configured")
	}
	endpoints := make([]*rpc.Client, 0, len(rpcURLs))
	for _, rpcURL := range rpcURLs {
		endpoints = append(endpoints, rpc.New(rpcURL))
	}
	return &Client{
		endpoints: endpoints,
		urls:      rpcURLs,
		logger:    logger.Named("solana-client"),
	}, nil
}

// withFailover runs fn against the current endpoint and walks the remaining
// ones on failure. A "not found" response is an answer, not an outage, and is
// returned as-is; so is a cancelled context. Replaying a read or an identical
// signed transaction against another endpoint is safe.
func (c *Client) withFailover(ctx context.Context, operation string, fn func(*rpc.Client) error) error {
	c.mu.Lock()
	start := c.current
	c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < len(c.endpoints); attempt++ {
		index := (start + attempt) % len(c.endpoints)
		err := fn(c.endpoints[index])
		if err == nil {
			if index != start {
				c.mu.Lock()
				c.current = index
				c.mu.Unlock()
			}
			return nil
		}
		if IsAccountNotFoundError(err) || ctx.Err() != nil {
			return err
		}
		lastErr = err
		c.logger.Warn("rpc endpoint failed, rotating",
			zap.String("operation", operation),
			zap.String("endpoint", c.urls[index]),
			zap.Error(err))
	}
	return lastErr
}

// GetLatestBlockhash returns the most recent finalized blockhash.
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var blockhash solana.Hash
	err := c.withFailover(ctx, "GetLatestBlockhash", func(endpoint *rpc.Client) error {
		result, err := endpoint.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		blockhash = result.Value.Blockhash
		return nil
	})
	if err != nil {
		c.logger.Error("GetLatestBlockhash error", zap.Error(err))
		return solana.Hash{}, err
	}
	return blockhash, nil
}

// GetAccountInfo fetches a single account.
func (c *Client) GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	var result *rpc.GetAccountInfoResult
	err := c.withFailover(ctx, "GetAccountInfo", func(endpoint *rpc.Client) error {
		res, err := endpoint.GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: rpc.CommitmentConfirmed,
		})
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		c.logger.Debug("GetAccountInfo error",
			zap.String("pubkey", pubkey.String()),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

// GetMultipleAccounts fetches several accounts in one request.
func (c *Client) GetMultipleAccounts(ctx context.Context, pubkeys []solana.PublicKey) (*rpc.GetMultipleAccountsResult, error) {
	if len(pubkeys) == 0 {
		return &rpc.GetMultipleAccountsResult{}, nil
	}

	var result *rpc.GetMultipleAccountsResult
	err := c.withFailover(ctx, "GetMultipleAccounts", func(endpoint *rpc.Client) error {
		res, err := endpoint.GetMultipleAccountsWithOpts(ctx, pubkeys, &rpc.GetMultipleAccountsOpts{
			Commitment: rpc.CommitmentConfirmed,
			Encoding:   solana.EncodingBase64,
		})
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		c.logger.Debug("GetMultipleAccounts error", zap.Error(err))
		return nil, err
	}
	return result, nil
}

// SendTransaction broadcasts a signed transaction. Rebroadcasting the same
// payload through another endpoint cannot double-apply it, the signature
// dedupes on chain.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var signature solana.Signature
	err := c.withFailover(ctx, "SendTransaction", func(endpoint *rpc.Client) error {
		sig, err := endpoint.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       true,
			PreflightCommitment: rpc.CommitmentFinalized,
		})
		if err != nil {
			return err
		}
		signature = sig
		return nil
	})
	if err != nil {
		c.logger.Error("SendTransaction error", zap.Error(err))
		return solana.Signature{}, err
	}
	return signature, nil
}

// GetSignatureStatuses returns the cluster-reported statuses for signatures.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	var result *rpc.GetSignatureStatusesResult
	err := c.withFailover(ctx, "GetSignatureStatuses", func(endpoint *rpc.Client) error {
		res, err := endpoint.GetSignatureStatuses(ctx, false, signatures...)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		c.logger.Error("GetSignatureStatuses error", zap.Error(err))
		return nil, err
	}
	return result, nil
}

// WaitForConfirmation polls signature status until the transaction is
// confirmed or finalized, the context is cancelled, or timeout elapses.
// A timeout returns ErrConfirmationTimeout and says nothing about whether the
// transaction eventually lands. An on-chain failure is returned as a
// TransactionError carrying the cluster's error structure.
func (c *Client) WaitForConfirmation(ctx context.Context, signature solana.Signature, timeout time.Duration) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(timeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w after %s", ErrConfirmationTimeout, timeout)
		case <-ticker.C:
			statuses, err := c.GetSignatureStatuses(ctx, signature)
			if err != nil {
				c.logger.Warn("error getting signature statuses", zap.Error(err))
				continue
			}
			if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
				continue
			}
			status := statuses.Value[0]
			if status.Err != nil {
				return &TransactionError{Err: status.Err}
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized ||
				status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed {
				return nil
			}
		}
	}
}

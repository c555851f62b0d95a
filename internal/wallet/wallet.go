// internal/wallet/wallet.go
package wallet

import (
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Wallet holds a Solana keypair and signs assembled transactions. It caches
// derived associated token account addresses, which are pure functions of
// (owner, mint).
type Wallet struct {
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey

	mu       sync.RWMutex
	ataCache map[string]solana.PublicKey
}

// NewWallet creates a wallet from a base58-encoded 64-byte private key.
func NewWallet(privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(privateKeyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(privateKeyBytes))
	}
	privateKey := solana.PrivateKey(privateKeyBytes)
	return &Wallet{
		PrivateKey: privateKey,
		PublicKey:  privateKey.PublicKey(),
		ataCache:   make(map[string]solana.PublicKey),
	}, nil
}

// SignTransaction signs tx with the wallet's private key.
func (w *Wallet) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.PublicKey) {
			return &w.PrivateKey
		}
		return nil
	})
	return err
}

// GetATA returns the associated token account address for the given mint
// under its owning token program, derived once and cached. The token program
// is part of the derivation seeds, so legacy and token-2022 mints land on
// different addresses.
func (w *Wallet) GetATA(mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	cacheKey := mint.String() + tokenProgram.String()

	w.mu.RLock()
	ata, ok := w.ataCache[cacheKey]
	w.mu.RUnlock()
	if ok {
		return ata, nil
	}

	ata, err := deriveATA(w.PublicKey, mint, tokenProgram)
	if err != nil {
		return solana.PublicKey{}, err
	}

	w.mu.Lock()
	w.ataCache[cacheKey] = ata
	w.mu.Unlock()
	return ata, nil
}

func deriveATA(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindProgramAddress(
		[][]byte{
			owner[:],
			tokenProgram[:],
			mint[:],
		},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	return ata, err
}

// CreateATAIdempotentInstruction builds the create-idempotent instruction for
// the wallet's associated token account of mint under its owning token
// program. Safe to include even when the account already exists.
func (w *Wallet) CreateATAIdempotentInstruction(mint, tokenProgram solana.PublicKey) solana.Instruction {
	ata, _ := deriveATA(w.PublicKey, mint, tokenProgram)

	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		[]*solana.AccountMeta{
			{PublicKey: w.PublicKey, IsWritable: true, IsSigner: true},
			{PublicKey: ata, IsWritable: true, IsSigner: false},
			{PublicKey: w.PublicKey, IsWritable: false, IsSigner: false},
			{PublicKey: mint, IsWritable: false, IsSigner: false},
			{PublicKey: solana.SystemProgramID, IsWritable: false, IsSigner: false},
			{PublicKey: tokenProgram, IsWritable: false, IsSigner: false},
		},
		[]byte{1}, // instruction code 1: create idempotent
	)
}

// String returns the wallet's public key.
func (w *Wallet) String() string {
	return w.PublicKey.String()
}

// internal/wallet/wallet_test.go
package wallet

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWallet(t *testing.T) {
	privateKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	w, err := NewWallet(privateKey.String())
	require.NoError(t, err)
	assert.Equal(t, privateKey.PublicKey(), w.PublicKey)
	assert.Equal(t, privateKey.PublicKey().String(), w.String())
}

func TestNewWalletRejectsBadKeys(t *testing.T) {
	_, err := NewWallet("not-base58-!!!")
	assert.Error(t, err)

	// valid base58 but wrong length
	_, err = NewWallet(solana.NewWallet().PublicKey().String())
	assert.Error(t, err)
}

func TestGetATAIsDeterministic(t *testing.T) {
	privateKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	w, err := NewWallet(privateKey.String())
	require.NoError(t, err)

	mint := solana.NewWallet().PublicKey()
	first, err := w.GetATA(mint, solana.TokenProgramID)
	require.NoError(t, err)
	second, err := w.GetATA(mint, solana.TokenProgramID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	expected, _, err := solana.FindAssociatedTokenAddress(w.PublicKey, mint)
	require.NoError(t, err)
	assert.Equal(t, expected, first)
}

func TestATAHonorsTokenProgram(t *testing.T) {
	privateKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	w, err := NewWallet(privateKey.String())
	require.NoError(t, err)

	mint := solana.NewWallet().PublicKey()
	legacy, err := w.GetATA(mint, solana.TokenProgramID)
	require.NoError(t, err)
	token2022, err := w.GetATA(mint, solana.Token2022ProgramID)
	require.NoError(t, err)

	// the token program is a derivation seed, so the addresses diverge
	assert.NotEqual(t, legacy, token2022)

	instruction := w.CreateATAIdempotentInstruction(mint, solana.Token2022ProgramID)
	accounts := instruction.Accounts()
	require.Len(t, accounts, 6)
	assert.Equal(t, token2022, accounts[1].PublicKey)
	assert.Equal(t, solana.Token2022ProgramID, accounts[5].PublicKey)
}

func TestSignTransaction(t *testing.T) {
	privateKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	w, err := NewWallet(privateKey.String())
	require.NoError(t, err)

	instruction := solana.NewInstruction(
		solana.SystemProgramID,
		[]*solana.AccountMeta{
			{PublicKey: w.PublicKey, IsWritable: true, IsSigner: true},
		},
		[]byte{0},
	)
	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		solana.Hash{1},
		solana.TransactionPayer(w.PublicKey),
	)
	require.NoError(t, err)

	require.NoError(t, w.SignTransaction(tx))
	assert.Len(t, tx.Signatures, 1)
	require.NoError(t, tx.VerifySignatures())
}

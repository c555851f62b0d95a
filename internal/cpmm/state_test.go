// internal/cpmm/state_test.go
package cpmm

import (
	"encoding/binary"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePoolState(t *testing.T) {
	original := PoolState{
		AmmConfig:          solana.NewWallet().PublicKey(),
		Token0Vault:        solana.NewWallet().PublicKey(),
		Token1Vault:        solana.NewWallet().PublicKey(),
		Token0Mint:         solana.WrappedSol,
		Token1Mint:         solana.NewWallet().PublicKey(),
		Token0Program:      solana.TokenProgramID,
		Token1Program:      solana.TokenProgramID,
		ObservationKey:     solana.NewWallet().PublicKey(),
		Status:             0,
		Mint0Decimals:      9,
		Mint1Decimals:      6,
		ProtocolFeesToken0: 1_234,
		FundFeesToken1:     5_678,
	}
	encoded, err := bin.MarshalBorsh(&original)
	require.NoError(t, err)

	decoded, err := DecodePoolState(append(poolStateDiscriminator, encoded...))
	require.NoError(t, err)
	assert.Equal(t, original.AmmConfig, decoded.AmmConfig)
	assert.Equal(t, original.Token0Vault, decoded.Token0Vault)
	assert.Equal(t, original.Token1Mint, decoded.Token1Mint)
	assert.Equal(t, uint64(1_234), decoded.ProtocolFeesToken0)
	assert.Equal(t, uint64(5_678), decoded.FundFeesToken1)
	assert.False(t, decoded.SwapDisabled())
}

func TestDecodePoolStateRejectsForeignAccount(t *testing.T) {
	_, err := DecodePoolState([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	assert.ErrorIs(t, err, ErrUnsupportedPoolType)

	_, err = DecodePoolState(nil)
	assert.ErrorIs(t, err, ErrUnsupportedPoolType)
}

func TestPoolStateSwapDisabledBit(t *testing.T) {
	state := PoolState{Status: statusSwapDisabledBit}
	assert.True(t, state.SwapDisabled())

	// deposit and withdraw bits alone do not block swaps
	state.Status = 0b011
	assert.False(t, state.SwapDisabled())
}

func TestDecodeAmmConfig(t *testing.T) {
	original := AmmConfig{
		TradeFeeRate:    2_500,
		ProtocolFeeRate: 120_000,
		ProtocolOwner:   solana.NewWallet().PublicKey(),
	}
	encoded, err := bin.MarshalBorsh(&original)
	require.NoError(t, err)

	decoded, err := DecodeAmmConfig(append(ammConfigDiscriminator, encoded...))
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500), decoded.TradeFeeRate)
	assert.Equal(t, original.ProtocolOwner, decoded.ProtocolOwner)

	_, err = DecodeAmmConfig(append(poolStateDiscriminator, encoded...))
	assert.ErrorIs(t, err, ErrUnsupportedPoolType)
}

func TestTokenAccountAmount(t *testing.T) {
	data := make([]byte, 165)
	binary.LittleEndian.PutUint64(data[64:72], 42_000_000)

	amount, err := tokenAccountAmount(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(42_000_000), amount)

	_, err = tokenAccountAmount(data[:40])
	assert.Error(t, err)
}

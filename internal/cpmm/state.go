// internal/cpmm/state.go
package cpmm

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ProgramID is the constant-product swap program.
var ProgramID = solana.MustPublicKeyFromBase58("CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C")

// Anchor account discriminators: first 8 bytes of sha256("account:<Name>").
var (
	poolStateDiscriminator = []byte{247, 237, 227, 245, 215, 195, 222, 70}
	ammConfigDiscriminator = []byte{218, 244, 33, 104, 203, 203, 43, 111}
)

// Seed of the program authority PDA that owns the pool vaults.
var authoritySeed = []byte("vault_and_lp_mint_auth_seed")

// Pool status bit: when set, swapping through the pool is disabled.
const statusSwapDisabledBit uint8 = 1 << 2

// PoolState mirrors the program's pool account layout after the 8-byte
// discriminator. Field order is the wire order; do not reorder.
type PoolState struct {
	AmmConfig      solana.PublicKey
	PoolCreator    solana.PublicKey
	Token0Vault    solana.PublicKey
	Token1Vault    solana.PublicKey
	LpMint         solana.PublicKey
	Token0Mint     solana.PublicKey
	Token1Mint     solana.PublicKey
	Token0Program  solana.PublicKey
	Token1Program  solana.PublicKey
	ObservationKey solana.PublicKey

	AuthBump       uint8
	Status         uint8
	LpMintDecimals uint8
	Mint0Decimals  uint8
	Mint1Decimals  uint8

	LpSupply           uint64
	ProtocolFeesToken0 uint64
	ProtocolFeesToken1 uint64
	FundFeesToken0     uint64
	FundFeesToken1     uint64
	OpenTime           uint64
	RecentEpoch        uint64
	Padding            [31]uint64
}

// AmmConfig mirrors the program's fee configuration account layout after the
// 8-byte discriminator. TradeFeeRate is in parts per FeeRateDenominator.
type AmmConfig struct {
	Bump              uint8
	DisableCreatePool bool
	Index             uint16
	TradeFeeRate      uint64
	ProtocolFeeRate   uint64
	FundFeeRate       uint64
	CreatePoolFee     uint64
	ProtocolOwner     solana.PublicKey
	FundOwner         solana.PublicKey
	Padding           [16]uint64
}

// SwapDisabled reports whether the pool's status flags forbid swapping.
func (s *PoolState) SwapDisabled() bool {
	return s.Status&statusSwapDisabledBit != 0
}

// DecodePoolState decodes a pool account's raw data, verifying the account
// discriminator first.
func DecodePoolState(data []byte) (*PoolState, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], poolStateDiscriminator) {
		return nil, fmt.Errorf("%w: account is not a pool state", ErrUnsupportedPoolType)
	}
	var state PoolState
	if err := bin.NewBorshDecoder(data[8:]).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode pool state: %w", err)
	}
	return &state, nil
}

// DecodeAmmConfig decodes a fee configuration account's raw data, verifying
// the account discriminator first.
func DecodeAmmConfig(data []byte) (*AmmConfig, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], ammConfigDiscriminator) {
		return nil, fmt.Errorf("%w: account is not an amm config", ErrUnsupportedPoolType)
	}
	var cfg AmmConfig
	if err := bin.NewBorshDecoder(data[8:]).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode amm config: %w", err)
	}
	return &cfg, nil
}

// PoolAuthority derives the program authority PDA that signs vault transfers.
func PoolAuthority() (solana.PublicKey, error) {
	authority, _, err := solana.FindProgramAddress([][]byte{authoritySeed}, ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive pool authority: %w", err)
	}
	return authority, nil
}

// tokenAccountAmount extracts the token amount from a raw SPL token account.
// Layout: mint (32) | owner (32) | amount (8) | ...
func tokenAccountAmount(data []byte) (uint64, error) {
	if len(data) < 72 {
		return 0, fmt.Errorf("token account data too short: %d bytes", len(data))
	}
	return binary.LittleEndian.Uint64(data[64:72]), nil
}

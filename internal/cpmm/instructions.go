// internal/cpmm/instructions.go
package cpmm

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// Anchor instruction discriminators: first 8 bytes of sha256("global:<name>").
var (
	swapBaseInputDiscriminator  = []byte{143, 190, 90, 218, 196, 30, 51, 222}
	swapBaseOutputDiscriminator = []byte{55, 217, 98, 86, 163, 74, 180, 173}
)

// SwapAccounts lists every account a swap instruction touches, from the
// payer's perspective: input is what the payer spends, output is what the
// payer receives.
type SwapAccounts struct {
	Payer              solana.PublicKey
	Authority          solana.PublicKey
	AmmConfig          solana.PublicKey
	PoolState          solana.PublicKey
	InputTokenAccount  solana.PublicKey
	OutputTokenAccount solana.PublicKey
	InputVault         solana.PublicKey
	OutputVault        solana.PublicKey
	InputTokenProgram  solana.PublicKey
	OutputTokenProgram solana.PublicKey
	InputMint          solana.PublicKey
	OutputMint         solana.PublicKey
	Observation        solana.PublicKey
}

func (a *SwapAccounts) metas() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		{PublicKey: a.Payer, IsWritable: true, IsSigner: true},
		{PublicKey: a.Authority, IsWritable: false, IsSigner: false},
		{PublicKey: a.AmmConfig, IsWritable: false, IsSigner: false},
		{PublicKey: a.PoolState, IsWritable: true, IsSigner: false},
		{PublicKey: a.InputTokenAccount, IsWritable: true, IsSigner: false},
		{PublicKey: a.OutputTokenAccount, IsWritable: true, IsSigner: false},
		{PublicKey: a.InputVault, IsWritable: true, IsSigner: false},
		{PublicKey: a.OutputVault, IsWritable: true, IsSigner: false},
		{PublicKey: a.InputTokenProgram, IsWritable: false, IsSigner: false},
		{PublicKey: a.OutputTokenProgram, IsWritable: false, IsSigner: false},
		{PublicKey: a.InputMint, IsWritable: false, IsSigner: false},
		{PublicKey: a.OutputMint, IsWritable: false, IsSigner: false},
		{PublicKey: a.Observation, IsWritable: true, IsSigner: false},
	}
}

// NewSwapBaseOutputInstruction builds the exact-output swap instruction:
// withdraw exactly amountOut, spending at most maxAmountIn.
func NewSwapBaseOutputInstruction(accounts SwapAccounts, maxAmountIn, amountOut uint64) (solana.Instruction, error) {
	data, err := encodeSwapData(swapBaseOutputDiscriminator, maxAmountIn, amountOut)
	if err != nil {
		return nil, fmt.Errorf("failed to encode swap_base_output data: %w", err)
	}
	return solana.NewInstruction(ProgramID, accounts.metas(), data), nil
}

// NewSwapBaseInputInstruction builds the exact-input swap instruction: spend
// exactly amountIn, receiving at least minAmountOut.
func NewSwapBaseInputInstruction(accounts SwapAccounts, amountIn, minAmountOut uint64) (solana.Instruction, error) {
	data, err := encodeSwapData(swapBaseInputDiscriminator, amountIn, minAmountOut)
	if err != nil {
		return nil, fmt.Errorf("failed to encode swap_base_input data: %w", err)
	}
	return solana.NewInstruction(ProgramID, accounts.metas(), data), nil
}

func encodeSwapData(discriminator []byte, first, second uint64) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(discriminator)
	if err := binary.Write(buf, binary.LittleEndian, first); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, second); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewTipInstruction builds a plain lamport transfer from payer to the tip
// recipient.
func NewTipInstruction(payer solana.PublicKey, tip TipConfig) solana.Instruction {
	return system.NewTransferInstruction(tip.Lamports, payer, tip.Recipient).Build()
}

// internal/blockchain/solana/programs/computebudget/computebudget.go
package computebudget

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var ProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

const (
	RequestUnitsDeprecated uint8 = 0
	RequestHeapFrame       uint8 = 1
	SetComputeUnitLimit    uint8 = 2
	SetComputeUnitPrice    uint8 = 3
)

const (
	DefaultUnits uint32 = 400_000
	// DefaultUnitPrice is in micro-lamports per compute unit.
	DefaultUnitPrice uint64 = 25_000
)

type SetComputeUnitLimitInstruction struct {
	Units uint32
}

type SetComputeUnitPriceInstruction struct {
	MicroLamports uint64
}

// Config sets the compute-unit limit and priority fee for one transaction.
// Omitting it risks the transaction never being scheduled under load; this is
// a liveness concern, not a correctness one.
type Config struct {
	Units     uint32
	UnitPrice uint64
}

// DefaultConfig returns the default budget profile.
func DefaultConfig() Config {
	return Config{
		Units:     DefaultUnits,
		UnitPrice: DefaultUnitPrice,
	}
}

// Build creates the set-compute-unit-limit instruction.
func (instr *SetComputeUnitLimitInstruction) Build() (solana.Instruction, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, SetComputeUnitLimit); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, instr.Units); err != nil {
		return nil, err
	}
	return solana.NewInstruction(ProgramID, []*solana.AccountMeta{}, buf.Bytes()), nil
}

// Build creates the set-compute-unit-price instruction.
func (instr *SetComputeUnitPriceInstruction) Build() (solana.Instruction, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, SetComputeUnitPrice); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, instr.MicroLamports); err != nil {
		return nil, err
	}
	return solana.NewInstruction(ProgramID, []*solana.AccountMeta{}, buf.Bytes()), nil
}

// BuildInstructions creates the budget instructions for config, falling back
// to the default profile when units are unset.
func BuildInstructions(config Config) ([]solana.Instruction, error) {
	if config.Units == 0 {
		config = DefaultConfig()
	}

	var instructions []solana.Instruction

	limitInstruction, err := (&SetComputeUnitLimitInstruction{Units: config.Units}).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build compute unit limit instruction: %w", err)
	}
	instructions = append(instructions, limitInstruction)

	if config.UnitPrice > 0 {
		priceInstruction, err := (&SetComputeUnitPriceInstruction{MicroLamports: config.UnitPrice}).Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build compute unit price instruction: %w", err)
		}
		instructions = append(instructions, priceInstruction)
	}

	return instructions, nil
}

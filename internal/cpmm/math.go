// internal/cpmm/math.go
package cpmm

import (
	"fmt"
	"math/big"
)

// The swap formulas below run entirely on big.Int. Intermediate products of
// two u64 reserves exceed 64 bits, and any float detour breaks ceiling
// semantics at the boundaries.

var (
	bigOne            = big.NewInt(1)
	bigFeeDenominator = new(big.Int).SetUint64(FeeRateDenominator)
	bigBpsDenominator = new(big.Int).SetUint64(SlippageDenominator)
)

// ceilDiv returns ceil(numerator / denominator) for positive operands.
func ceilDiv(numerator, denominator *big.Int) *big.Int {
	quotient, remainder := new(big.Int).QuoRem(numerator, denominator, new(big.Int))
	if remainder.Sign() > 0 {
		quotient.Add(quotient, bigOne)
	}
	return quotient
}

func toUint64(value *big.Int, what string) (uint64, error) {
	if !value.IsUint64() {
		return 0, fmt.Errorf("%w: %s %s", ErrAmountOverflow, what, value.String())
	}
	return value.Uint64(), nil
}

// RequiredInput computes the gross input needed to withdraw exactly amountOut
// from a pool with the given reserves and trade fee rate (in parts per
// FeeRateDenominator). Both divisions round up, so paying the returned amount
// always yields at least amountOut. The fee is the difference between the
// gross input and the portion that enters the curve.
func RequiredInput(reserveIn, reserveOut, tradeFeeRate, amountOut uint64) (grossIn uint64, fee uint64, err error) {
	if amountOut == 0 {
		return 0, 0, fmt.Errorf("%w: output amount is zero", ErrInvalidAmount)
	}
	if tradeFeeRate >= FeeRateDenominator {
		return 0, 0, fmt.Errorf("%w: trade fee rate %d out of range", ErrInvalidAmount, tradeFeeRate)
	}
	if reserveIn == 0 || reserveOut == 0 {
		return 0, 0, fmt.Errorf("%w: empty reserves", ErrInsufficientLiquidity)
	}
	if amountOut >= reserveOut {
		return 0, 0, fmt.Errorf("%w: requested %d of reserve %d", ErrInsufficientLiquidity, amountOut, reserveOut)
	}

	rIn := new(big.Int).SetUint64(reserveIn)
	rOut := new(big.Int).SetUint64(reserveOut)
	out := new(big.Int).SetUint64(amountOut)

	// net = ceil(reserveIn * amountOut / (reserveOut - amountOut))
	numerator := new(big.Int).Mul(rIn, out)
	denominator := new(big.Int).Sub(rOut, out)
	netIn := ceilDiv(numerator, denominator)

	// gross = ceil(net * denom / (denom - feeRate))
	feeRate := new(big.Int).SetUint64(tradeFeeRate)
	grossNumerator := new(big.Int).Mul(netIn, bigFeeDenominator)
	grossDenominator := new(big.Int).Sub(bigFeeDenominator, feeRate)
	gross := ceilDiv(grossNumerator, grossDenominator)

	grossIn, err = toUint64(gross, "required input")
	if err != nil {
		return 0, 0, err
	}
	feeAmount := new(big.Int).Sub(gross, netIn)
	fee, err = toUint64(feeAmount, "trading fee")
	if err != nil {
		return 0, 0, err
	}
	return grossIn, fee, nil
}

// ExpectedOutput computes the output produced by paying exactly amountIn into
// a pool with the given reserves and trade fee rate. The fee is charged on
// the input, rounded up; the curve division rounds down, so the caller never
// receives more than the pool can honor.
func ExpectedOutput(reserveIn, reserveOut, tradeFeeRate, amountIn uint64) (amountOut uint64, fee uint64, err error) {
	if amountIn == 0 {
		return 0, 0, fmt.Errorf("%w: input amount is zero", ErrInvalidAmount)
	}
	if tradeFeeRate >= FeeRateDenominator {
		return 0, 0, fmt.Errorf("%w: trade fee rate %d out of range", ErrInvalidAmount, tradeFeeRate)
	}
	if reserveIn == 0 || reserveOut == 0 {
		return 0, 0, fmt.Errorf("%w: empty reserves", ErrInsufficientLiquidity)
	}

	in := new(big.Int).SetUint64(amountIn)

	// fee = ceil(amountIn * feeRate / denom)
	feeRate := new(big.Int).SetUint64(tradeFeeRate)
	feeAmount := ceilDiv(new(big.Int).Mul(in, feeRate), bigFeeDenominator)
	netIn := new(big.Int).Sub(in, feeAmount)
	if netIn.Sign() <= 0 {
		return 0, 0, fmt.Errorf("%w: input consumed entirely by fee", ErrInvalidAmount)
	}

	rIn := new(big.Int).SetUint64(reserveIn)
	rOut := new(big.Int).SetUint64(reserveOut)

	// out = floor(reserveOut * netIn / (reserveIn + netIn))
	numerator := new(big.Int).Mul(rOut, netIn)
	denominator := new(big.Int).Add(rIn, netIn)
	out := new(big.Int).Quo(numerator, denominator)

	amountOut, err = toUint64(out, "expected output")
	if err != nil {
		return 0, 0, err
	}
	fee, err = toUint64(feeAmount, "trading fee")
	if err != nil {
		return 0, 0, err
	}
	return amountOut, fee, nil
}

// MaxAmountInWithSlippage widens amountIn by the slippage tolerance, rounding
// up so the bound never undercuts the tolerance. A tolerance of zero returns
// amountIn unchanged.
func MaxAmountInWithSlippage(amountIn, slippageBps uint64) (uint64, error) {
	if slippageBps > SlippageDenominator {
		return 0, fmt.Errorf("%w: %d bps", ErrInvalidSlippage, slippageBps)
	}
	if slippageBps == 0 {
		return amountIn, nil
	}
	in := new(big.Int).SetUint64(amountIn)
	margin := ceilDiv(new(big.Int).Mul(in, new(big.Int).SetUint64(slippageBps)), bigBpsDenominator)
	return toUint64(new(big.Int).Add(in, margin), "max input with slippage")
}

// MinAmountOutWithSlippage narrows amountOut by the slippage tolerance,
// rounding the margin down so the floor never exceeds the computed output.
func MinAmountOutWithSlippage(amountOut, slippageBps uint64) (uint64, error) {
	if slippageBps > SlippageDenominator {
		return 0, fmt.Errorf("%w: %d bps", ErrInvalidSlippage, slippageBps)
	}
	if slippageBps == 0 {
		return amountOut, nil
	}
	out := new(big.Int).SetUint64(amountOut)
	margin := new(big.Int).Quo(new(big.Int).Mul(out, new(big.Int).SetUint64(slippageBps)), bigBpsDenominator)
	result := new(big.Int).Sub(out, margin)
	if result.Sign() < 0 {
		return 0, nil
	}
	return result.Uint64(), nil
}

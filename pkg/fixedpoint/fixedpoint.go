// Package fixedpoint holds the integer decimal arithmetic shared by the vault:
// rescaling between token, oracle and USD precisions, and parsing/formatting
// of 256-bit amounts.
package fixedpoint

import (
	"fmt"
	"math/big"

	"custody-vault/pkg/apperror"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	// USDDecimals is the precision of the common accounting unit.
	USDDecimals uint8 = 6
	// NativeDecimals is the precision of the native currency's raw unit.
	NativeDecimals uint8 = 18

	// 10^77 is the largest power of ten below 2^256.
	maxPow10 = 77
)

var ten = uint256.NewInt(10)

// Pow10 returns 10^n, failing when the result does not fit in 256 bits.
func Pow10(n uint8) (*uint256.Int, error) {
	if n > maxPow10 {
		return nil, apperror.ErrArithmeticOverflow(fmt.Sprintf("pow10(%d)", n))
	}
	return new(uint256.Int).Exp(ten, uint256.NewInt(uint64(n))), nil
}

// Rescale converts amount from one decimal precision to another.
// Scaling down truncates toward zero; scaling up fails on overflow.
func Rescale(amount *uint256.Int, fromDecimals, toDecimals uint8) (*uint256.Int, error) {
	switch {
	case fromDecimals == toDecimals:
		return amount.Clone(), nil
	case fromDecimals > toDecimals:
		factor, err := Pow10(fromDecimals - toDecimals)
		if err != nil {
			return nil, err
		}
		return new(uint256.Int).Div(amount, factor), nil
	default:
		factor, err := Pow10(toDecimals - fromDecimals)
		if err != nil {
			return nil, err
		}
		return Mul(amount, factor)
	}
}

// Mul returns x*y or an overflow error.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, apperror.ErrArithmeticOverflow("mul")
	}
	return z, nil
}

// Add returns x+y or an overflow error.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, apperror.ErrArithmeticOverflow("add")
	}
	return z, nil
}

// Sub returns x-y or an underflow error.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, apperror.ErrArithmeticOverflow("sub")
	}
	return z, nil
}

// Parse reads a base-10 unsigned integer string into a 256-bit value.
func Parse(s string) (*uint256.Int, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	z, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("amount %q exceeds 256 bits", s)
	}
	return z, nil
}

// MustParse is Parse for constants; it panics on bad input.
func MustParse(s string) *uint256.Int {
	z, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return z
}

// String renders x in base 10. A nil value renders as "0".
func String(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	return x.ToBig().String()
}

// FormatUnits renders a raw integer amount as a fixed-point decimal string,
// e.g. FormatUnits(1500000, 6) == "1.500000".
func FormatUnits(x *uint256.Int, decimals uint8) string {
	if x == nil {
		x = new(uint256.Int)
	}
	return decimal.NewFromBigInt(x.ToBig(), -int32(decimals)).StringFixed(int32(decimals))
}

// ParseUnits converts a human decimal string ("1000.5") into a raw integer
// with the given precision. Inputs with more fractional digits than decimals
// are rejected rather than rounded.
func ParseUnits(s string, decimals uint8) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d fractional digits", s, decimals)
	}
	z, overflow := uint256.FromBig(shifted.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %q exceeds 256 bits", s)
	}
	return z, nil
}

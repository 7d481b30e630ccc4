// Package pip implements the fixed-point arithmetic used for every asset
// quantity, price, and fraction in the engine.
//
// A pip is a signed 64-bit integer carrying 8 decimal places, so 1.0 is
// 100_000_000 pips. Intermediate products are computed in big.Int to avoid
// int64 overflow; only the final result must fit in int64. Overflow of a
// final result is an invariant violation and panics.
package pip

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// Decimals is the number of fractional digits in a pip value.
const Decimals = 8

// One is 1.0 expressed in pips.
const One int64 = 100_000_000

// RoundingMode selects how sub-pip remainders are resolved.
type RoundingMode int

const (
	// RoundTowardZero truncates the remainder. Default for conversions and
	// requirement computations.
	RoundTowardZero RoundingMode = iota
	// RoundDown rounds toward negative infinity. Used for funding credits so
	// a wallet never gains a sub-pip at the protocol's expense.
	RoundDown
	// RoundUp rounds toward positive infinity.
	RoundUp
)

// int128Pool recycles big.Int scratch values across multiplications. The
// engine performs several pip multiplications per settlement, so allocation
// here is measurable.
var int128Pool = sync.Pool{
	New: func() any { return new(big.Int) },
}

var bigOne = big.NewInt(One)

// Multiply returns a*b scaled back to pips, truncating toward zero.
func Multiply(a, b int64) int64 {
	return MultiplyRounded(a, b, RoundTowardZero)
}

// MultiplyRounded returns a*b scaled back to pips with the given rounding.
func MultiplyRounded(a, b int64, mode RoundingMode) int64 {
	x := int128Pool.Get().(*big.Int)
	y := int128Pool.Get().(*big.Int)
	defer int128Pool.Put(x)
	defer int128Pool.Put(y)

	x.SetInt64(a)
	y.SetInt64(b)
	x.Mul(x, y)
	return divideBig(x, bigOne, mode)
}

// Divide returns a/b in pips (a scaled up by One before dividing) with the
// given rounding. Division by zero panics.
func Divide(a, b int64, mode RoundingMode) int64 {
	if b == 0 {
		panic("pip: division by zero")
	}
	x := int128Pool.Get().(*big.Int)
	y := int128Pool.Get().(*big.Int)
	defer int128Pool.Put(x)
	defer int128Pool.Put(y)

	x.SetInt64(a)
	x.Mul(x, bigOne)
	y.SetInt64(b)
	return divideBig(x, y, mode)
}

// MultiplyFraction returns v*num/den with the given rounding, computing the
// product in big.Int. Used for proportional allocations (cost basis release,
// bankruptcy-price shares) where num/den is a raw ratio, not a pip value.
func MultiplyFraction(v, num, den int64, mode RoundingMode) int64 {
	if den == 0 {
		panic("pip: division by zero")
	}
	x := int128Pool.Get().(*big.Int)
	y := int128Pool.Get().(*big.Int)
	defer int128Pool.Put(x)
	defer int128Pool.Put(y)

	x.SetInt64(v)
	y.SetInt64(num)
	x.Mul(x, y)
	y.SetInt64(den)
	return divideBig(x, y, mode)
}

// divideBig divides num by den under mode and returns the int64 result.
// Panics when the result does not fit in int64.
func divideBig(num, den *big.Int, mode RoundingMode) int64 {
	quo := int128Pool.Get().(*big.Int)
	rem := int128Pool.Get().(*big.Int)
	defer int128Pool.Put(quo)
	defer int128Pool.Put(rem)

	quo.QuoRem(num, den, rem) // truncated division

	if rem.Sign() != 0 {
		// QuoRem truncates toward zero; adjust for directed modes. The true
		// quotient is negative exactly when remainder and divisor disagree
		// in sign.
		negative := (rem.Sign() < 0) != (den.Sign() < 0)
		switch mode {
		case RoundDown:
			if negative {
				quo.Sub(quo, oneBig)
			}
		case RoundUp:
			if !negative {
				quo.Add(quo, oneBig)
			}
		}
	}

	if !quo.IsInt64() {
		panic(fmt.Sprintf("pip: arithmetic overflow: %s", quo.String()))
	}
	return quo.Int64()
}

var oneBig = big.NewInt(1)

// Add returns a+b, panicking on int64 overflow.
func Add(a, b int64) int64 {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		panic(fmt.Sprintf("pip: arithmetic overflow in addition: %d + %d", a, b))
	}
	return s
}

// Sub returns a-b, panicking on int64 overflow.
func Sub(a, b int64) int64 {
	d := a - b
	if (b < 0 && d < a) || (b > 0 && d > a) {
		panic(fmt.Sprintf("pip: arithmetic overflow in subtraction: %d - %d", a, b))
	}
	return d
}

// Abs returns |v|. MinInt64 has no positive counterpart and panics.
func Abs(v int64) int64 {
	if v == -1<<63 {
		panic("pip: arithmetic overflow in abs")
	}
	if v < 0 {
		return -v
	}
	return v
}

// Sign returns -1, 0, or 1.
func Sign(v int64) int64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// FromDecimal parses a decimal string ("123.456") into pips, truncating
// fractional digits beyond the pip precision toward zero.
func FromDecimal(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty decimal string")
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" && fracPart == "" {
		return 0, fmt.Errorf("malformed decimal %q", s)
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > Decimals {
		fracPart = fracPart[:Decimals] // truncate toward zero
	}
	for len(fracPart) < Decimals {
		fracPart += "0"
	}
	v, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return 0, fmt.Errorf("malformed decimal %q", s)
	}
	if neg {
		v.Neg(v)
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("decimal %q out of pip range", s)
	}
	return v.Int64(), nil
}

// String renders v as a decimal string with trailing fractional zeros
// trimmed ("1.5", "-0.00000001", "42").
func String(v int64) string {
	neg := v < 0
	u := v
	if neg {
		u = -u
	}
	whole := u / One
	frac := u % One
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	fmt.Fprintf(&b, "%d", whole)
	if frac != 0 {
		f := fmt.Sprintf("%08d", frac)
		f = strings.TrimRight(f, "0")
		b.WriteByte('.')
		b.WriteString(f)
	}
	return b.String()
}

// Package numeric provides the exact integer arithmetic used on the
// consensus-critical path. Floating point is never used here: prices are
// compared by cross multiplication and amounts are converted with explicit
// floor or ceiling division, all through big.Int so intermediate products
// cannot overflow.
package numeric

import "math/big"

// MulDivFloor returns floor(a*b/c). c must be positive.
func MulDivFloor(a, b, c int64) int64 {
	num := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	num.Quo(num, big.NewInt(c))
	return num.Int64()
}

// MulDivCeil returns ceil(a*b/c). c must be positive.
func MulDivCeil(a, b, c int64) int64 {
	num := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	quo, rem := new(big.Int).QuoRem(num, big.NewInt(c), new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo.Int64()
}

// MulChecked returns a*b and whether the product fits in an int64.
func MulChecked(a, b int64) (int64, bool) {
	product := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	if !product.IsInt64() {
		return 0, false
	}
	return product.Int64(), true
}

// CmpRatios compares aNum/aDen against bNum/bDen by cross multiplication,
// returning -1, 0 or +1. Denominators must be positive.
func CmpRatios(aNum, aDen, bNum, bDen int64) int {
	lhs := new(big.Int).Mul(big.NewInt(aNum), big.NewInt(bDen))
	rhs := new(big.Int).Mul(big.NewInt(bNum), big.NewInt(aDen))
	return lhs.Cmp(rhs)
}

// MulCmp compares a1*a2 against b1*b2, returning -1, 0 or +1.
func MulCmp(a1, a2, b1, b2 int64) int {
	lhs := new(big.Int).Mul(big.NewInt(a1), big.NewInt(a2))
	rhs := new(big.Int).Mul(big.NewInt(b1), big.NewInt(b2))
	return lhs.Cmp(rhs)
}

// Min returns the smaller of two int64 values.
func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

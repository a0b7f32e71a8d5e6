package pcfg

import (
	"math"
	"math/big"
)

// factorialTable holds n! for n <= 20; 21! no longer fits in a uint64.
var factorialTable = [21]uint64{
	1, 1, 2, 6, 24, 120, 720, 5040, 40320, 362880, 3628800, 39916800,
	479001600, 6227020800, 87178291200, 1307674368000, 20922789888000,
	355687428096000, 6402373705728000, 121645100408832000, 2432902008176640000,
}

// BigCount is an arbitrary-precision count with a machine-word fast path.
// Values stay native until an operation overflows a uint64, at which point
// they promote to math/big. The zero value is a usable zero.
//
// BigCount values are passed and returned by value; the promoted big.Int
// is never shared between results.
type BigCount struct {
	native uint64
	big    *big.Int // nil while the value fits in native
}

// NewBigCount returns a count holding the given native value.
func NewBigCount(v uint64) BigCount {
	return BigCount{native: v}
}

// BigCountFromInt returns a count holding a copy of v, demoting to the
// native representation when it fits.
func BigCountFromInt(v *big.Int) BigCount {
	if v.IsUint64() {
		return BigCount{native: v.Uint64()}
	}
	return BigCount{big: new(big.Int).Set(v)}
}

func (c BigCount) promoted() *big.Int {
	if c.big != nil {
		return c.big
	}
	return new(big.Int).SetUint64(c.native)
}

// AddUint64 returns c + v.
func (c BigCount) AddUint64(v uint64) BigCount {
	if c.big == nil {
		if sum := c.native + v; sum >= c.native {
			return BigCount{native: sum}
		}
	}
	return BigCount{big: new(big.Int).Add(c.promoted(), new(big.Int).SetUint64(v))}
}

// MulUint64 returns c × v.
func (c BigCount) MulUint64(v uint64) BigCount {
	if c.big == nil {
		if v == 0 || c.native == 0 {
			return BigCount{}
		}
		if c.native <= math.MaxUint64/v {
			return BigCount{native: c.native * v}
		}
	}
	return BigCount{big: new(big.Int).Mul(c.promoted(), new(big.Int).SetUint64(v))}
}

// Add returns c + o.
func (c BigCount) Add(o BigCount) BigCount {
	if c.big == nil && o.big == nil {
		return c.AddUint64(o.native)
	}
	return BigCountFromInt(new(big.Int).Add(c.promoted(), o.promoted()))
}

// Mul returns c × o.
func (c BigCount) Mul(o BigCount) BigCount {
	if c.big == nil && o.big == nil {
		return c.MulUint64(o.native)
	}
	return BigCountFromInt(new(big.Int).Mul(c.promoted(), o.promoted()))
}

// DivUint64 returns c / v, truncated. Divisions in rank arithmetic are
// exact by construction.
func (c BigCount) DivUint64(v uint64) BigCount {
	if c.big == nil {
		return BigCount{native: c.native / v}
	}
	return BigCountFromInt(new(big.Int).Quo(c.big, new(big.Int).SetUint64(v)))
}

// Div returns c / o, truncated.
func (c BigCount) Div(o BigCount) BigCount {
	if o.big == nil {
		return c.DivUint64(o.native)
	}
	return BigCountFromInt(new(big.Int).Quo(c.promoted(), o.big))
}

// Factorial returns n!.
func Factorial(n uint64) BigCount {
	if n < uint64(len(factorialTable)) {
		return BigCount{native: factorialTable[n]}
	}
	return BigCountFromInt(new(big.Int).MulRange(1, int64(n)))
}

// Cmp compares c and o, returning -1, 0 or 1. Counts form a total order.
func (c BigCount) Cmp(o BigCount) int {
	if c.big == nil && o.big == nil {
		switch {
		case c.native < o.native:
			return -1
		case c.native > o.native:
			return 1
		}
		return 0
	}
	return c.promoted().Cmp(o.promoted())
}

// Int returns the value as a fresh big.Int.
func (c BigCount) Int() *big.Int {
	return c.promoted()
}

// Float64 returns the value as a float64, losing precision past 2^53.
func (c BigCount) Float64() float64 {
	if c.big == nil {
		return float64(c.native)
	}
	f, _ := new(big.Float).SetInt(c.big).Float64()
	return f
}

// String formats the count in base 10.
func (c BigCount) String() string {
	return c.promoted().String()
}

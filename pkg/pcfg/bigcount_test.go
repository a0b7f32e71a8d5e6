package pcfg

import (
	"math"
	"math/big"
	"testing"
)

func TestBigCountPromotionOnAdd(t *testing.T) {
	c := NewBigCount(math.MaxUint64)
	c = c.AddUint64(1)
	want := new(big.Int).Add(new(big.Int).SetUint64(math.MaxUint64), big.NewInt(1))
	if c.Int().Cmp(want) != 0 {
		t.Errorf("got %s, want %s", c, want)
	}
	if c.String() != "18446744073709551616" {
		t.Errorf("String() = %s", c)
	}
}

func TestBigCountPromotionOnMul(t *testing.T) {
	c := NewBigCount(1 << 40)
	c = c.MulUint64(1 << 40)
	want := new(big.Int).Lsh(big.NewInt(1), 80)
	if c.Int().Cmp(want) != 0 {
		t.Errorf("got %s, want 2^80", c)
	}
	// Multiplying by zero collapses back to zero
	if got := c.MulUint64(0); got.Cmp(NewBigCount(0)) != 0 {
		t.Errorf("×0 = %s, want 0", got)
	}
}

func TestBigCountNativeFastPath(t *testing.T) {
	c := NewBigCount(6)
	c = c.MulUint64(7).AddUint64(8)
	if c.String() != "50" {
		t.Errorf("got %s, want 50", c)
	}
	if c.big != nil {
		t.Error("small value should stay native")
	}
}

func TestFactorial(t *testing.T) {
	cases := []struct {
		n    uint64
		want string
	}{
		{0, "1"},
		{1, "1"},
		{5, "120"},
		{20, "2432902008176640000"},
		{21, "51090942171709440000"},
		{25, "15511210043330985984000000"},
	}
	for _, tc := range cases {
		if got := Factorial(tc.n).String(); got != tc.want {
			t.Errorf("Factorial(%d) = %s, want %s", tc.n, got, tc.want)
		}
	}
}

func TestBigCountCmp(t *testing.T) {
	small := NewBigCount(7)
	large := NewBigCount(math.MaxUint64).MulUint64(2)
	if small.Cmp(large) != -1 || large.Cmp(small) != 1 {
		t.Error("native vs promoted ordering broken")
	}
	if small.Cmp(NewBigCount(7)) != 0 {
		t.Error("equal natives should compare 0")
	}
	if large.Cmp(NewBigCount(math.MaxUint64).MulUint64(2)) != 0 {
		t.Error("equal promoted values should compare 0")
	}
}

func TestBigCountFromIntDemotes(t *testing.T) {
	c := BigCountFromInt(big.NewInt(42))
	if c.big != nil {
		t.Error("value fitting a uint64 should demote to native")
	}
	if c.String() != "42" {
		t.Errorf("got %s", c)
	}
}

func TestBigCountDivExact(t *testing.T) {
	c := Factorial(22).DivUint64(22)
	if c.Cmp(Factorial(21)) != 0 {
		t.Errorf("22!/22 = %s, want 21!", c)
	}
}

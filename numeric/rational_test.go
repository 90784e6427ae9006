package numeric

import (
	"math"
	"testing"
)

func TestMulDivFloor(t *testing.T) {
	if got := MulDivFloor(7, 3, 2); got != 10 {
		t.Fatalf("7*3/2 floor = %d", got)
	}
	if got := MulDivFloor(10, 10, 3); got != 33 {
		t.Fatalf("10*10/3 floor = %d", got)
	}
}

func TestMulDivCeil(t *testing.T) {
	if got := MulDivCeil(7, 3, 2); got != 11 {
		t.Fatalf("7*3/2 ceil = %d", got)
	}
	if got := MulDivCeil(10, 10, 5); got != 20 {
		t.Fatalf("exact division must not round up: %d", got)
	}
}

func TestMulDivSurvivesIntermediateOverflow(t *testing.T) {
	// a*b far exceeds 64 bits but the quotient fits.
	a := int64(math.MaxInt64 / 2)
	if got := MulDivFloor(a, 4, 2); got != a*2 {
		t.Fatalf("overflowing product mishandled: %d", got)
	}
}

func TestMulChecked(t *testing.T) {
	if got, ok := MulChecked(1_000_000, 5); !ok || got != 5_000_000 {
		t.Fatalf("1e6*5 = %d, ok=%v", got, ok)
	}
	if _, ok := MulChecked(math.MaxInt64, 2); ok {
		t.Fatal("overflowing product reported as fitting")
	}
}

func TestCmpRatios(t *testing.T) {
	// 1/3 < 2/5
	if got := CmpRatios(1, 3, 2, 5); got != -1 {
		t.Fatalf("1/3 vs 2/5 = %d", got)
	}
	// 2/4 == 1/2
	if got := CmpRatios(2, 4, 1, 2); got != 0 {
		t.Fatalf("2/4 vs 1/2 = %d", got)
	}
	// Large components that would overflow naive int64 cross products.
	if got := CmpRatios(math.MaxInt64, 1, math.MaxInt64-1, 1); got != 1 {
		t.Fatalf("large ratio compare = %d", got)
	}
}

func TestMin(t *testing.T) {
	if Min(3, 5) != 3 || Min(5, 3) != 3 {
		t.Fatalf("Min broken")
	}
}

package types

import (
	"math"
	"testing"
)

func TestAmountConstructors(t *testing.T) {
	tests := []struct {
		name   string
		amount Amount
		value  float64
		denom  string
	}{
		{"CXX", CXX(10), 10, "CXX"},
		{"USD", USD(49.5), 49.5, "USD"},
		{"EUR", EUR(199), 199, "EUR"},
		{"GBP", GBP(99), 99, "GBP"},
		{"ZAR", ZAR(750.25), 750.25, "ZAR"},
		{"In lowercase", In("usd", 5), 5, "USD"},
		{"Zero", Zero("eur"), 0, "EUR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.amount.Value != tt.value {
				t.Errorf("Value: got %v, want %v", tt.amount.Value, tt.value)
			}
			if tt.amount.Denom != tt.denom {
				t.Errorf("Denom: got %s, want %s", tt.amount.Denom, tt.denom)
			}
		})
	}
}

func TestAmountArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Amount
		expected Amount
	}{
		{"Add", func() Amount { return USD(1).Add(USD(2)) }, USD(3)},
		{"Subtract", func() Amount { return USD(5).Subtract(USD(2)) }, USD(3)},
		{"Scale", func() Amount { return USD(1).Scale(3) }, USD(3)},
		{"Divide", func() Amount { return USD(9).Divide(3) }, USD(3)},
		{"Negate", func() Amount { return USD(1).Negate() }, USD(-1)},
		{"Abs positive", func() Amount { return USD(1).Abs() }, USD(1)},
		{"Abs negative", func() Amount { return USD(-1).Abs() }, USD(1)},
		{"Complex", func() Amount {
			return CXX(10).Add(CXX(5)).Scale(2).Subtract(CXX(10))
		}, CXX(20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestAmountDenomMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for denomination mismatch")
		}
	}()

	_ = USD(1).Add(EUR(1))
}

func TestAmountDivisionByZero(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for division by zero")
		}
	}()

	_ = USD(1).Divide(0)
}

func TestAmountTolerance(t *testing.T) {
	// Repeated rescaling accumulates rounding error; comparisons must absorb it.
	a := CXX(10)
	for i := 0; i < 100; i++ {
		a = a.Scale(1.0 / 3.0).Scale(3.0)
	}
	if !a.Equal(CXX(10)) {
		t.Errorf("expected %v to equal 10 CXX within tolerance", a)
	}

	if !CXX(0).IsZero() {
		t.Error("zero amount should be zero")
	}
	if !CXX(Tolerance / 2).IsZero() {
		t.Error("sub-tolerance amount should be zero")
	}
	if CXX(Tolerance * 2).IsZero() {
		t.Error("super-tolerance amount should not be zero")
	}
}

func TestAmountComparison(t *testing.T) {
	if !USD(1).LessThan(USD(2)) {
		t.Error("1 should be less than 2")
	}
	if !USD(2).GreaterThan(USD(1)) {
		t.Error("2 should be greater than 1")
	}
	if USD(1).LessThan(USD(1 + Tolerance/2)) {
		t.Error("values within tolerance should not compare as less")
	}
	if !USD(1).Min(USD(2)).Equal(USD(1)) {
		t.Error("Min should be 1")
	}
	if !USD(1).Max(USD(2)).Equal(USD(2)) {
		t.Error("Max should be 2")
	}
}

func TestEqualWithin(t *testing.T) {
	if !EqualWithin(1.0, 1.0+Tolerance/10) {
		t.Error("values within tolerance should be equal")
	}
	if EqualWithin(1.0, 1.0+2*Tolerance) {
		t.Error("values outside tolerance should not be equal")
	}
	if EqualWithin(math.Inf(1), 1.0) {
		t.Error("infinity should not equal a finite value")
	}
}

func TestSum(t *testing.T) {
	total := Sum(CXX(1), CXX(2), CXX(3))
	if !total.Equal(CXX(6)) {
		t.Errorf("Sum: got %v, want 6 CXX", total)
	}

	empty := Sum()
	if empty.Denom != DenomCXX || !empty.IsZero() {
		t.Errorf("empty Sum should be zero CXX, got %v", empty)
	}
}

// Package types provides common value types used across Clearing.
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// DenomCXX is the denomination code of the internal numeraire. Every stored
// balance in the ledger is expressed in CXX units; display values are
// recovered by dividing by the instrument's multiplier.
const DenomCXX = "CXX"

// Tolerance is the absolute floating-point tolerance used for all amount
// comparisons and invariant checks.
const Tolerance = 1e-9

// Amount represents a denominated monetary value.
//
// Amounts are float64 rather than integer minor units: the daily rebase
// rescales every stored balance by a real-valued ratio, and the ledger's
// conservation invariants are defined within floating tolerance.
type Amount struct {
	Value float64 `json:"value"`
	Denom string  `json:"denom"` // Denomination code, uppercase: "CXX", "USD", "EUR"
}

// Common denomination constructors

// CXX creates an Amount in the internal numeraire.
func CXX(v float64) Amount { return Amount{Value: v, Denom: DenomCXX} }

// USD creates an Amount in US Dollars.
func USD(v float64) Amount { return Amount{Value: v, Denom: "USD"} }

// EUR creates an Amount in Euros.
func EUR(v float64) Amount { return Amount{Value: v, Denom: "EUR"} }

// GBP creates an Amount in British Pounds.
func GBP(v float64) Amount { return Amount{Value: v, Denom: "GBP"} }

// ZAR creates an Amount in South African Rand.
func ZAR(v float64) Amount { return Amount{Value: v, Denom: "ZAR"} }

// In creates an Amount in an arbitrary denomination.
func In(denom string, v float64) Amount {
	return Amount{Value: v, Denom: strings.ToUpper(denom)}
}

// Zero returns a zero Amount in the specified denomination.
func Zero(denom string) Amount { return Amount{Value: 0, Denom: strings.ToUpper(denom)} }

// Arithmetic operations

// Add adds two Amounts. Panics if denominations don't match.
func (a Amount) Add(other Amount) Amount {
	a.assertSameDenom(other)
	return Amount{Value: a.Value + other.Value, Denom: a.Denom}
}

// Subtract subtracts another Amount. Panics if denominations don't match.
func (a Amount) Subtract(other Amount) Amount {
	a.assertSameDenom(other)
	return Amount{Value: a.Value - other.Value, Denom: a.Denom}
}

// Scale multiplies the Amount by a factor.
func (a Amount) Scale(factor float64) Amount {
	return Amount{Value: a.Value * factor, Denom: a.Denom}
}

// Divide divides the Amount by a divisor.
func (a Amount) Divide(divisor float64) Amount {
	if divisor == 0 {
		panic("amount: division by zero")
	}
	return Amount{Value: a.Value / divisor, Denom: a.Denom}
}

// Negate returns the negative of the Amount.
func (a Amount) Negate() Amount {
	return Amount{Value: -a.Value, Denom: a.Denom}
}

// Abs returns the absolute value.
func (a Amount) Abs() Amount {
	if a.Value < 0 {
		return Amount{Value: -a.Value, Denom: a.Denom}
	}
	return a
}

// Comparison methods

// IsZero returns true if the value is zero within Tolerance.
func (a Amount) IsZero() bool { return math.Abs(a.Value) < Tolerance }

// IsPositive returns true if the value is greater than Tolerance.
func (a Amount) IsPositive() bool { return a.Value > Tolerance }

// IsNegative returns true if the value is less than -Tolerance.
func (a Amount) IsNegative() bool { return a.Value < -Tolerance }

// Equal returns true if both Amounts have the same denomination and values
// equal within Tolerance.
func (a Amount) Equal(other Amount) bool {
	return a.Denom == other.Denom && EqualWithin(a.Value, other.Value)
}

// LessThan returns true if this Amount is less than other. Panics if
// denominations don't match.
func (a Amount) LessThan(other Amount) bool {
	a.assertSameDenom(other)
	return a.Value < other.Value-Tolerance
}

// GreaterThan returns true if this Amount is greater than other. Panics if
// denominations don't match.
func (a Amount) GreaterThan(other Amount) bool {
	a.assertSameDenom(other)
	return a.Value > other.Value+Tolerance
}

// Min returns the smaller of two Amounts. Panics if denominations don't match.
func (a Amount) Min(other Amount) Amount {
	a.assertSameDenom(other)
	if a.Value < other.Value {
		return a
	}
	return other
}

// Max returns the larger of two Amounts. Panics if denominations don't match.
func (a Amount) Max(other Amount) Amount {
	a.assertSameDenom(other)
	if a.Value > other.Value {
		return a
	}
	return other
}

// String returns a human-readable string, e.g. "10.000000 USD".
func (a Amount) String() string {
	return fmt.Sprintf("%.6f %s", a.Value, a.Denom)
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Value   float64 `json:"value"`
		Denom   string  `json:"denom"`
		Display string  `json:"display"`
	}{
		Value:   a.Value,
		Denom:   a.Denom,
		Display: a.String(),
	})
}

// Helper functions

// assertSameDenom panics if denominations don't match.
func (a Amount) assertSameDenom(other Amount) {
	if a.Denom != other.Denom {
		panic(fmt.Sprintf("amount: denomination mismatch: %s != %s", a.Denom, other.Denom))
	}
}

// EqualWithin reports whether two float64 values are equal within Tolerance.
func EqualWithin(a, b float64) bool {
	return math.Abs(a-b) < Tolerance
}

// Sum calculates the sum of multiple Amounts. All must share a denomination.
func Sum(values ...Amount) Amount {
	if len(values) == 0 {
		return Zero(DenomCXX)
	}

	result := values[0]
	for i := 1; i < len(values); i++ {
		result = result.Add(values[i])
	}
	return result
}

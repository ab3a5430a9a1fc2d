package domain

import (
	"github.com/shopspring/decimal"
)

// Currency is the only currency the marketplace settles in.
const Currency = "usd"

// Cents is an amount in minor currency units. All arithmetic on money happens on Cents;
// decimal major units only appear at HTTP and provider boundaries.
type Cents int64

func CentsFromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Shift(2).Round(0).IntPart())
}

func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

func (c Cents) Times(qty int) Cents {
	return c * Cents(qty)
}

func (c Cents) Int64() int64 { return int64(c) }

// AbsDiff returns |a - b|.
func AbsDiff(a, b Cents) Cents {
	if a > b {
		return a - b
	}
	return b - a
}

func SumCents(values ...Cents) Cents {
	var total Cents
	for _, v := range values {
		total += v
	}
	return total
}

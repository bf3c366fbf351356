// Package money does checked arithmetic on integer currency amounts.
package money

import (
	"errors"
	"math"
)

// ErrOverflow is returned when a result does not fit in an int64.
var ErrOverflow = errors.New("amount overflows int64")

// Mul returns a*b. Operands are quantities and unit prices, so both are
// expected to be non-negative; negative inputs are still checked.
func Mul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, ErrOverflow
	}
	p := a * b
	if p/b != a {
		return 0, ErrOverflow
	}
	return p, nil
}

// Add returns a+b.
func Add(a, b int64) (int64, error) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, ErrOverflow
	}
	return s, nil
}

// Sum adds every value, stopping at the first overflow.
func Sum(vals ...int64) (int64, error) {
	var total int64
	for _, v := range vals {
		var err error
		if total, err = Add(total, v); err != nil {
			return 0, err
		}
	}
	return total, nil
}

package common

import "cmp"

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// Clamp constrains v to the inclusive range [lo, hi].
//
// Parameters:
//   - v: the value to constrain
//   - lo: the lower bound
//   - hi: the upper bound
//
// Returns:
//   - T: v limited to [lo, hi]
func Clamp[T cmp.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CeilDiv divides a by b rounding up. b must be positive.
//
// Parameters:
//   - a: the dividend
//   - b: the divisor (must be > 0)
//
// Returns:
//   - int: ceil(a / b)
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}

// NextMultiple rounds v up to the smallest multiple of step not smaller
// than v. step must be positive.
//
// Parameters:
//   - v: the value to round up
//   - step: the multiple to round to (must be > 0)
//
// Returns:
//   - int: the smallest multiple of step >= v
func NextMultiple(v, step int) int {
	return CeilDiv(v, step) * step
}

package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to the inclusive range [lo, hi]. Bounds given in the
// wrong order are swapped first.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

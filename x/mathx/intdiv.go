package mathx

// RoundDiv returns a/b rounded to nearest, half away from zero.
// b == 0 yields 0 to keep firmware maths total.
func RoundDiv[T ~int | ~int8 | ~int16 | ~int32 | ~int64](a, b T) T {
	if b == 0 {
		return 0
	}
	h := b / 2
	if (a < 0) != (b < 0) {
		return (a - h) / b
	}
	return (a + h) / b
}

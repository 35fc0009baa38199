package mathx

import "testing"

func TestClamp(t *testing.T) {
	cases := []struct {
		v, lo, hi, want int
	}{
		{50, 17, 100, 50},
		{5, 17, 100, 17},
		{120, 17, 100, 100},
		{17, 17, 100, 17},
		{100, 17, 100, 100},
		{50, 100, 17, 50}, // swapped bounds
	}
	for _, c := range cases {
		if got := Clamp(c.v, c.lo, c.hi); got != c.want {
			t.Errorf("Clamp(%d, %d, %d) = %d, want %d", c.v, c.lo, c.hi, got, c.want)
		}
	}
}

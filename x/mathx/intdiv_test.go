package mathx

import "testing"

func TestRoundDiv(t *testing.T) {
	cases := []struct {
		a, b, want int
	}{
		{0, 500, 0},
		{249, 500, 0},
		{250, 500, 1},
		{499, 500, 1},
		{5500, 500, 11},
		{5749, 500, 11},
		{5750, 500, 12},
		{-250, 500, -1},
		{-249, 500, 0},
		{-5750, 500, -12},
		{7, 0, 0},
	}
	for _, c := range cases {
		if got := RoundDiv(c.a, c.b); got != c.want {
			t.Errorf("RoundDiv(%d, %d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestRoundDivNarrowTypes(t *testing.T) {
	if got := RoundDiv(int16(5500), int16(500)); got != 11 {
		t.Errorf("int16: got %d", got)
	}
	if got := RoundDiv(int32(-8250), int32(500)); got != -17 {
		t.Errorf("int32: got %d", got)
	}
}

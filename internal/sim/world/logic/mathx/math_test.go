package mathx

import (
	"math"
	"testing"
)

func TestRectDistance(t *testing.T) {
	cases := []struct {
		x, y float64
		want float64
	}{
		{5, 5, 0},     // inside
		{0, 0, 0},     // corner
		{-3, 5, 3},    // left edge
		{5, 14, 4},    // above
		{13, 14, 5},   // diagonal from corner (3,4,5)
		{10, 10, 0},   // max corner
		{20, 5, 10},   // right
		{-3, -4, 5},   // diagonal below-left
	}
	for _, c := range cases {
		got := RectDistance(c.x, c.y, 0, 0, 10, 10)
		if math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("RectDistance(%v,%v)=%v want %v", c.x, c.y, got, c.want)
		}
	}
}

func TestStepToward(t *testing.T) {
	x, y, arrived := StepToward(0, 0, 10, 0, 4)
	if arrived || x != 4 || y != 0 {
		t.Fatalf("step: got (%v,%v,%v)", x, y, arrived)
	}
	x, y, arrived = StepToward(8, 0, 10, 0, 4)
	if !arrived || x != 10 || y != 0 {
		t.Fatalf("final step: got (%v,%v,%v)", x, y, arrived)
	}
	_, _, arrived = StepToward(3, 3, 3, 3, 0)
	if !arrived {
		t.Fatalf("coincident point should count as arrived")
	}
}

func TestFloorDiv(t *testing.T) {
	if got := FloorDiv(-1, 16); got != -1 {
		t.Fatalf("FloorDiv(-1,16)=%d", got)
	}
	if got := FloorDiv(31, 16); got != 1 {
		t.Fatalf("FloorDiv(31,16)=%d", got)
	}
}

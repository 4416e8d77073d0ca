package mathx

import "math"

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Dist is the horizontal Euclidean distance between (x1,y1) and (x2,y2).
func Dist(x1, y1, x2, y2 float64) float64 {
	return math.Hypot(x2-x1, y2-y1)
}

func Lerp(a, b, t float64) float64 { return a + (b-a)*t }

func Midpoint(x1, y1, x2, y2 float64) (float64, float64) {
	return (x1 + x2) / 2, (y1 + y2) / 2
}

// RectDistance is the distance from (x,y) to the closest point of the
// axis-aligned rectangle [minX,maxX] x [minY,maxY]; 0 when inside.
func RectDistance(x, y, minX, minY, maxX, maxY float64) float64 {
	dx := 0.0
	if x < minX {
		dx = minX - x
	} else if x > maxX {
		dx = x - maxX
	}
	dy := 0.0
	if y < minY {
		dy = minY - y
	} else if y > maxY {
		dy = y - maxY
	}
	return math.Hypot(dx, dy)
}

// StepToward moves (x,y) at most step units toward (tx,ty). arrived is true
// when the target was within reach and the returned point is the target.
func StepToward(x, y, tx, ty, step float64) (nx, ny float64, arrived bool) {
	d := Dist(x, y, tx, ty)
	if d <= step || d == 0 {
		return tx, ty, true
	}
	f := step / d
	return x + (tx-x)*f, y + (ty-y)*f, false
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

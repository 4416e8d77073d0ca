package model

// Point is a position on the city ground plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vec3 is a ground position plus altitude.
type Vec3 struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Alt float64 `json:"alt"`
}

func (v Vec3) Point() Point { return Point{X: v.X, Y: v.Y} }

func (p Point) At(alt float64) Vec3 { return Vec3{X: p.X, Y: p.Y, Alt: alt} }

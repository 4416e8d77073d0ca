package model

const (
	ObstacleBuilding = "building"
	ObstacleHouse    = "house"
)

// Obstacle is an axis-aligned box: footprint [X, X+Width] x [Y, Y+Length]
// rising from the ground to Height.
type Obstacle struct {
	ID     string  `json:"id"`
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Length float64 `json:"length"`
	Height float64 `json:"height"`
}

func (o Obstacle) MaxX() float64 { return o.X + o.Width }
func (o Obstacle) MaxY() float64 { return o.Y + o.Length }

func (o Obstacle) Center() Point {
	return Point{X: o.X + o.Width/2, Y: o.Y + o.Length/2}
}

func (o Obstacle) Contains(x, y float64) bool {
	return x >= o.X && x <= o.MaxX() && y >= o.Y && y <= o.MaxY()
}

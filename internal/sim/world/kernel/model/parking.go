package model

type ParkingSpace struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Occupied bool    `json:"occupied"`
}

func (p ParkingSpace) Pos() Point { return Point{X: p.X, Y: p.Y} }

package model

// Agent is one jetpack in the fleet. Identity fields are fixed at creation;
// the operational fields are written only by the world loop.
type Agent struct {
	ID           string
	Serial       string
	Callsign     string
	Owner        string
	Model        string
	Manufacturer string
	Year         int

	X        float64
	Y        float64
	Altitude float64
	Speed    float64
	Active   bool
}

func (a *Agent) Pos() Point { return Point{X: a.X, Y: a.Y} }

func (a *Agent) Pos3() Vec3 { return Vec3{X: a.X, Y: a.Y, Alt: a.Altitude} }

func (a *Agent) MoveTo(p Vec3) {
	a.X = p.X
	a.Y = p.Y
	a.Altitude = p.Alt
}

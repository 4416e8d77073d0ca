package flight

import (
	"testing"

	"skyway.city/internal/sim/world/kernel/model"
)

type wall struct{ x float64 }

// IsPathClear rejects any segment that crosses x.
func (w wall) IsPathClear(a, b model.Vec3) bool {
	return (a.X < w.x) == (b.X < w.x)
}

func newFlight() (*model.Agent, *model.Flight, *model.FlightState) {
	a := &model.Agent{ID: "J1", X: 0, Y: 0, Altitude: 60, Active: true}
	f := &model.Flight{
		AgentID:     "J1",
		Start:       model.Point{X: 0, Y: 0},
		Destination: model.Point{X: 30, Y: 0},
		Status:      model.StatusCruising,
	}
	return a, f, &model.FlightState{}
}

func TestAdvance_MovesAndTurnsAround(t *testing.T) {
	m := New(nil)
	a, f, st := newFlight()

	if got := m.Advance(a, f, st, 10); got != Moved {
		t.Fatalf("outcome=%v want MOVED", got)
	}
	if a.X != 10 || a.Y != 0 || a.Altitude != 60 {
		t.Fatalf("pos=(%v,%v,%v)", a.X, a.Y, a.Altitude)
	}
	m.Advance(a, f, st, 10)
	if got := m.Advance(a, f, st, 10); got != Arrived {
		t.Fatalf("outcome=%v want ARRIVED", got)
	}
	if a.X != 30 {
		t.Fatalf("x=%v want 30", a.X)
	}
	if f.Destination != (model.Point{X: 0, Y: 0}) || f.Start != (model.Point{X: 30, Y: 0}) {
		t.Fatalf("route not swapped: %+v -> %+v", f.Start, f.Destination)
	}
}

func TestAdvance_BlockedHoldsAndFlags(t *testing.T) {
	m := New(wall{x: 5})
	a, f, st := newFlight()
	if got := m.Advance(a, f, st, 10); got != Blocked {
		t.Fatalf("outcome=%v want BLOCKED", got)
	}
	if a.X != 0 || !f.RerouteRequested {
		t.Fatalf("x=%v reroute=%v", a.X, f.RerouteRequested)
	}
	if _, ok := Reroute(a, f, model.Point{X: -30, Y: 0}); ok {
		t.Fatalf("reroute of a cruising flight is not a status transition")
	}
	if f.RerouteRequested {
		t.Fatalf("reroute should clear the hold")
	}
	if got := m.Advance(a, f, st, 10); got != Moved || a.X != -10 {
		t.Fatalf("outcome=%v x=%v", got, a.X)
	}
}

func TestAdvance_IdleStates(t *testing.T) {
	m := New(nil)
	a, f, st := newFlight()
	f.Status = model.StatusEmergencyHalt
	if m.Advance(a, f, st, 10) != Idle || a.X != 0 {
		t.Fatalf("halted flight moved")
	}
	f.Status = model.StatusParked
	if m.Advance(a, f, st, 10) != Idle {
		t.Fatalf("parked flight moved")
	}
	f.Status = model.StatusCruising
	a.Active = false
	if m.Advance(a, f, st, 10) != Idle {
		t.Fatalf("inactive flight moved")
	}
}

func TestGroundResume_ReasonMustMatch(t *testing.T) {
	_, f, _ := newFlight()
	tr, ok := Ground(f, model.HaltWeather)
	if !ok || tr.From != model.StatusCruising || tr.To != model.StatusEmergencyHalt || tr.Reason != "WEATHER" {
		t.Fatalf("ground: %+v ok=%v", tr, ok)
	}
	if _, ok := Ground(f, model.HaltOperator); ok {
		t.Fatalf("second ground should be a no-op")
	}
	if f.HaltReason != model.HaltWeather {
		t.Fatalf("reason overwritten: %q", f.HaltReason)
	}
	if _, ok := Resume(f, model.HaltEmergency); ok {
		t.Fatalf("resumed with the wrong reason")
	}
	if _, ok := Resume(f, model.HaltWeather); !ok {
		t.Fatalf("expected resume")
	}
	if f.Status != model.StatusCruising || f.HaltReason != model.HaltNone {
		t.Fatalf("after resume: %+v", f)
	}
}

func TestLandingParkDispatch(t *testing.T) {
	m := New(nil)
	a, f, st := newFlight()
	space := model.ParkingSpace{ID: "NYC-P3", X: 0, Y: 15}

	if _, ok := BeginLanding(f, st, space); !ok {
		t.Fatalf("begin landing failed")
	}
	if f.Status != model.StatusEmergencyLanding || st.ParkingID != "NYC-P3" || st.LandingTarget == nil {
		t.Fatalf("landing state: %+v %+v", f, st)
	}
	if got := m.Advance(a, f, st, 10); got != Moved || a.Altitude != 60 {
		t.Fatalf("outcome=%v alt=%v", got, a.Altitude)
	}
	if got := m.Advance(a, f, st, 10); got != Landed {
		t.Fatalf("outcome=%v want LANDED", got)
	}
	if a.X != 0 || a.Y != 15 || a.Altitude != 0 {
		t.Fatalf("landed at (%v,%v,%v)", a.X, a.Y, a.Altitude)
	}
	if _, ok := Park(f, st); !ok || f.Status != model.StatusParked || !st.Parked || st.LandingTarget != nil {
		t.Fatalf("park: %+v %+v", f, st)
	}

	dest := model.Point{X: 100, Y: 100}
	tr, vacated, ok := Dispatch(a, f, st, &dest, 55)
	if !ok || vacated != "NYC-P3" || tr.To != model.StatusCruising {
		t.Fatalf("dispatch: %+v %q %v", tr, vacated, ok)
	}
	if st.Parked || st.ParkingID != "" || f.Destination != dest || a.Altitude != 55 {
		t.Fatalf("after dispatch: %+v %+v alt=%v", f, st, a.Altitude)
	}
	if f.Start != (model.Point{X: 0, Y: 15}) {
		t.Fatalf("start=%+v", f.Start)
	}
}

func TestReroute_ResumesCollisionHalt(t *testing.T) {
	a, f, _ := newFlight()
	f.EmergencyReroute = true
	Ground(f, model.HaltCollision)
	if _, ok := Reroute(a, f, model.Point{X: 0, Y: 90}); !ok {
		t.Fatalf("reroute should resume a COLLISION halt")
	}
	if f.Status != model.StatusCruising || f.EmergencyReroute {
		t.Fatalf("after reroute: %+v", f)
	}

	Ground(f, model.HaltWeather)
	if _, ok := Reroute(a, f, model.Point{X: 0, Y: 0}); ok {
		t.Fatalf("reroute must not clear a WEATHER halt")
	}
}

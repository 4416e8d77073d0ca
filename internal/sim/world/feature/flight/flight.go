// Package flight implements the per-flight state machine:
//
//	CRUISING -> EMERGENCY_HALT     hazard grounding, collision, operator halt
//	CRUISING -> EMERGENCY_LANDING  hazard routes the flight to a parking space
//	EMERGENCY_LANDING -> PARKED    on reaching the space
//	EMERGENCY_HALT -> CRUISING     only when the clearing cause matches the reason
//	PARKED -> CRUISING             operator dispatch
package flight

import (
	"skyway.city/internal/sim/world/kernel/model"
	"skyway.city/internal/sim/world/logic/mathx"
)

// Transition is one status change, recorded in the movement log.
type Transition struct {
	AgentID string             `json:"agent_id"`
	From    model.FlightStatus `json:"from"`
	To      model.FlightStatus `json:"to"`
	Reason  string             `json:"reason,omitempty"`
}

func Ground(f *model.Flight, reason model.HaltReason) (Transition, bool) {
	if f.Status != model.StatusCruising {
		return Transition{}, false
	}
	f.Status = model.StatusEmergencyHalt
	f.HaltReason = reason
	return Transition{AgentID: f.AgentID, From: model.StatusCruising, To: model.StatusEmergencyHalt, Reason: string(reason)}, true
}

// Resume returns a halted flight to CRUISING when reason matches the cause
// it was halted for.
func Resume(f *model.Flight, reason model.HaltReason) (Transition, bool) {
	if f.Status != model.StatusEmergencyHalt || f.HaltReason != reason {
		return Transition{}, false
	}
	f.Status = model.StatusCruising
	f.HaltReason = model.HaltNone
	if reason == model.HaltCollision {
		f.EmergencyReroute = false
	}
	return Transition{AgentID: f.AgentID, From: model.StatusEmergencyHalt, To: model.StatusCruising, Reason: string(reason)}, true
}

// BeginLanding routes a cruising flight to space. The caller occupies the
// space.
func BeginLanding(f *model.Flight, st *model.FlightState, space model.ParkingSpace) (Transition, bool) {
	if f.Status != model.StatusCruising {
		return Transition{}, false
	}
	target := space.Pos()
	f.Status = model.StatusEmergencyLanding
	st.ParkingID = space.ID
	st.LandingTarget = &target
	return Transition{AgentID: f.AgentID, From: model.StatusCruising, To: model.StatusEmergencyLanding, Reason: space.ID}, true
}

// Park completes a landing. The agent must already be at the target.
func Park(f *model.Flight, st *model.FlightState) (Transition, bool) {
	if f.Status != model.StatusEmergencyLanding {
		return Transition{}, false
	}
	f.Status = model.StatusParked
	st.Parked = true
	st.LandingTarget = nil
	return Transition{AgentID: f.AgentID, From: model.StatusEmergencyLanding, To: model.StatusParked, Reason: st.ParkingID}, true
}

// Dispatch sends a parked flight back out and returns the id of the space it
// left. A nil dest keeps the current destination.
func Dispatch(a *model.Agent, f *model.Flight, st *model.FlightState, dest *model.Point, altitude float64) (Transition, string, bool) {
	if f.Status != model.StatusParked {
		return Transition{}, "", false
	}
	vacated := st.ParkingID
	st.Parked = false
	st.ClearLanding()
	f.Status = model.StatusCruising
	f.HaltReason = model.HaltNone
	f.EmergencyReroute = false
	f.Start = a.Pos()
	if dest != nil {
		f.Destination = *dest
	}
	a.Altitude = altitude
	return Transition{AgentID: f.AgentID, From: model.StatusParked, To: model.StatusCruising, Reason: vacated}, vacated, true
}

// Reroute assigns a new destination and clears the terrain hold. A flight
// halted for COLLISION resumes.
func Reroute(a *model.Agent, f *model.Flight, dest model.Point) (Transition, bool) {
	f.Start = a.Pos()
	f.Destination = dest
	f.RerouteRequested = false
	return Resume(f, model.HaltCollision)
}

type Outcome int

const (
	Idle Outcome = iota
	Moved
	// Blocked: the terrain guard rejected the segment and the flight held.
	Blocked
	// Arrived: a cruising flight reached its destination and turned around.
	Arrived
	// Landed: a landing flight reached its parking space.
	Landed
)

func (o Outcome) String() string {
	switch o {
	case Moved:
		return "MOVED"
	case Blocked:
		return "BLOCKED"
	case Arrived:
		return "ARRIVED"
	case Landed:
		return "LANDED"
	}
	return "IDLE"
}

type PathChecker interface {
	IsPathClear(a, b model.Vec3) bool
}

type Machine struct {
	paths PathChecker
}

// New returns a Machine. paths may be nil (open sky).
func New(paths PathChecker) *Machine {
	return &Machine{paths: paths}
}

// Advance moves a cruising or landing flight by speed toward its target.
func (m *Machine) Advance(a *model.Agent, f *model.Flight, st *model.FlightState, speed float64) Outcome {
	if a == nil || !a.Active || speed <= 0 {
		return Idle
	}
	var target model.Point
	switch f.Status {
	case model.StatusCruising:
		target = f.Destination
	case model.StatusEmergencyLanding:
		if st.LandingTarget == nil {
			return Idle
		}
		target = *st.LandingTarget
	default:
		return Idle
	}

	cur := a.Pos3()
	nx, ny, arrived := mathx.StepToward(cur.X, cur.Y, target.X, target.Y, speed)
	next := model.Vec3{X: nx, Y: ny, Alt: cur.Alt}
	if m.paths != nil && !m.paths.IsPathClear(cur, next) {
		f.RerouteRequested = true
		return Blocked
	}
	a.MoveTo(next)
	a.Speed = speed
	if !arrived {
		return Moved
	}
	if f.Status == model.StatusEmergencyLanding {
		a.Altitude = 0
		a.Speed = 0
		return Landed
	}
	f.Start, f.Destination = f.Destination, f.Start
	return Arrived
}

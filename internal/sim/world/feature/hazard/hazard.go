// Package hazard owns the city-wide hazard flags and the fleet-wide
// reactions to weather and emergency halts.
package hazard

import (
	"errors"
	"fmt"

	"skyway.city/internal/sim/world/feature/flight"
	"skyway.city/internal/sim/world/kernel/model"
)

var ErrUnknownHazard = errors.New("unknown hazard kind")

const (
	// SevereWeather is the severity at which orchestration starts.
	SevereWeather = 4
	// GroundingWeather grounds instead of landing.
	GroundingWeather = 5

	weatherSpeedFactor = 0.5
)

type WeatherAction int

const (
	WeatherNone WeatherAction = iota
	WeatherGround
	WeatherLand
	WeatherResume
)

func (a WeatherAction) String() string {
	switch a {
	case WeatherGround:
		return "GROUND"
	case WeatherLand:
		return "LAND"
	case WeatherResume:
		return "RESUME"
	}
	return "NONE"
}

// Entry is one flight as the coordinator sees it.
type Entry struct {
	Agent  *model.Agent
	Flight *model.Flight
	State  *model.FlightState
}

type Parking interface {
	NearestAvailable(x, y float64) (model.ParkingSpace, bool)
	Occupy(id string) error
}

type Coordinator struct {
	flags    model.HazardSet
	severity int
}

func New() *Coordinator {
	return &Coordinator{flags: model.HazardSet{Status: model.StatusActive}}
}

func (c *Coordinator) Flags() model.HazardSet { return c.flags }

func (c *Coordinator) Severity() int { return c.severity }

func (c *Coordinator) Restore(flags model.HazardSet, severity int) {
	c.flags = flags
	if c.flags.Status == "" {
		c.flags.Status = model.StatusActive
	}
	c.severity = severity
}

// Set flips one flag. Every activation overwrites the status string with
// the flag's name, even for a flag that is already on; clearing
// EmergencyHalt restores ACTIVE. Toggling EmergencyHalt also grounds (or
// resumes) the cruising fleet.
func (c *Coordinator) Set(k model.HazardKind, on bool, fleet []Entry) ([]flight.Transition, error) {
	changed, ok := c.flags.Set(k, on)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHazard, k)
	}
	if on {
		c.flags.Status = string(k)
	} else if changed && k == model.HazardEmergencyHalt {
		c.flags.Status = model.StatusActive
	}
	if !changed || k != model.HazardEmergencyHalt {
		return nil, nil
	}
	if on {
		return GroundAll(fleet, model.HaltEmergency), nil
	}
	return ResumeAll(fleet, model.HaltEmergency), nil
}

// EffectiveSpeed halves base while the weather hazard is active.
func (c *Coordinator) EffectiveSpeed(base float64) float64 {
	if c.flags.Weather {
		return base * weatherSpeedFactor
	}
	return base
}

// ObserveWeather records a new report and returns the fleet reaction. Only
// crossings of the severe threshold act; 4->5 while already severe does not.
func (c *Coordinator) ObserveWeather(severity int, safeToFly bool) WeatherAction {
	if changed, _ := c.flags.Set(model.HazardWeather, !safeToFly); changed && !safeToFly {
		c.flags.Status = string(model.HazardWeather)
	}
	prev := c.severity
	c.severity = severity
	switch {
	case prev < SevereWeather && severity >= GroundingWeather:
		return WeatherGround
	case prev < SevereWeather && severity >= SevereWeather:
		return WeatherLand
	case prev >= SevereWeather && severity < SevereWeather:
		return WeatherResume
	}
	return WeatherNone
}

// ApplyWeather carries out action over the fleet in order.
func ApplyWeather(action WeatherAction, fleet []Entry, lots Parking) []flight.Transition {
	switch action {
	case WeatherGround:
		return GroundAll(fleet, model.HaltWeather)
	case WeatherLand:
		return LandAll(fleet, lots)
	case WeatherResume:
		return ResumeAll(fleet, model.HaltWeather)
	}
	return nil
}

// GroundAll halts every cruising flight. Flights already on an emergency
// landing keep descending to their reserved space.
func GroundAll(fleet []Entry, reason model.HaltReason) []flight.Transition {
	var out []flight.Transition
	for _, e := range fleet {
		if tr, ok := flight.Ground(e.Flight, reason); ok {
			out = append(out, tr)
		}
	}
	return out
}

func ResumeAll(fleet []Entry, reason model.HaltReason) []flight.Transition {
	var out []flight.Transition
	for _, e := range fleet {
		if tr, ok := flight.Resume(e.Flight, reason); ok {
			out = append(out, tr)
		}
	}
	return out
}

// LandAll sends every cruising flight to the nearest free space from where
// it is now. A flight that finds none is grounded for WEATHER.
func LandAll(fleet []Entry, lots Parking) []flight.Transition {
	var out []flight.Transition
	for _, e := range fleet {
		if e.Flight.Status != model.StatusCruising || e.Agent == nil || !e.Agent.Active {
			continue
		}
		space, ok := model.ParkingSpace{}, false
		if lots != nil {
			space, ok = lots.NearestAvailable(e.Agent.X, e.Agent.Y)
		}
		if ok && lots.Occupy(space.ID) == nil {
			if tr, ok := flight.BeginLanding(e.Flight, e.State, space); ok {
				out = append(out, tr)
			}
			continue
		}
		if tr, ok := flight.Ground(e.Flight, model.HaltWeather); ok {
			out = append(out, tr)
		}
	}
	return out
}

package world

import (
	"fmt"

	"skyway.city/internal/sim/world/feature/hazard"
	"skyway.city/internal/sim/world/kernel/model"
	"skyway.city/internal/sim/world/logic/ids"
	"skyway.city/internal/sim/world/logic/mathx"
)

// flightEntry owns one agent with its flight and supplemental state.
type flightEntry struct {
	agent  model.Agent
	flight model.Flight
	state  model.FlightState
	// cruiseAlt is the altitude a dispatch returns the agent to.
	cruiseAlt float64
}

func (e *flightEntry) hazardEntry() hazard.Entry {
	return hazard.Entry{Agent: &e.agent, Flight: &e.flight, State: &e.state}
}

var (
	fleetModels = []struct{ model, maker string }{
		{"Skylark S2", "Aerion"},
		{"Kestrel X", "Aerion"},
		{"Hover One", "Mayman"},
		{"JB-12", "JetPack Aviation"},
		{"Strato 4", "Nordic Lift"},
	}
	fleetOwners = []string{"City Courier", "Metro Rescue", "Harbor Patrol", "SkyTaxi", "Private"}
	fleetColors = []string{"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4", "#42d4f4", "#f032e6", "#bfef45"}
)

// cruiseFloor is the lowest altitude at which no obstacle in the city can be
// hit anywhere on the map.
func (w *World) cruiseFloor() float64 {
	top := 0.0
	for _, o := range w.city.Obstacles {
		top = max(top, o.Height)
	}
	if top == 0 {
		return 0
	}
	cfg := w.guard.Config()
	return top + cfg.Margin + cfg.Radius
}

// spawnFleet creates n cruising agents at seeded positions. Numbering comes
// from the world's own sequence.
func (w *World) spawnFleet(n int) {
	lo := max(w.cfg.CruiseMin, w.cruiseFloor())
	hi := max(w.cfg.CruiseMax, lo)
	width, height := float64(max(w.city.Width, 1)), float64(max(w.city.Height, 1))
	seed := w.cfg.Seed
	for i := 0; i < n; i++ {
		num := w.nextAgent.Next()
		k := int(num)
		unit := func(salt int) float64 {
			return float64(mathx.Hash2(seed, k, salt)%1_000_000) / 1_000_000
		}
		start := model.Point{X: unit(1) * width, Y: unit(2) * height}
		dest := model.Point{X: unit(3) * width, Y: unit(4) * height}
		fm := fleetModels[mathx.Hash2(seed, k, 5)%uint64(len(fleetModels))]

		e := &flightEntry{
			agent: model.Agent{
				ID:           ids.AgentID(num),
				Serial:       ids.Serial(w.cfg.StartYear, num),
				Callsign:     fmt.Sprintf("SKY%03d", num),
				Owner:        fleetOwners[mathx.Hash2(seed, k, 6)%uint64(len(fleetOwners))],
				Model:        fm.model,
				Manufacturer: fm.maker,
				Year:         w.cfg.StartYear - int(mathx.Hash2(seed, k, 7)%4),
				X:            start.X,
				Y:            start.Y,
				Speed:        w.cfg.BaseSpeed,
				Active:       true,
			},
			flight: model.Flight{
				Start:       start,
				Destination: dest,
				Color:       fleetColors[int(num-1)%len(fleetColors)],
				Status:      model.StatusCruising,
			},
			cruiseAlt: mathx.Lerp(lo, hi, unit(8)),
		}
		e.agent.Altitude = e.cruiseAlt
		e.flight.AgentID = e.agent.ID
		w.addEntry(e)
	}
}

func (w *World) addEntry(e *flightEntry) {
	w.fleet = append(w.fleet, e)
	w.byID[e.agent.ID] = e
}

// entries returns the fleet in creation order as the hazard coordinator
// sees it.
func (w *World) entries() []hazard.Entry {
	out := make([]hazard.Entry, 0, len(w.fleet))
	for _, e := range w.fleet {
		out = append(out, e.hazardEntry())
	}
	return out
}

package world

import (
	"github.com/brunoga/deep"

	"skyway.city/internal/protocol"
	"skyway.city/internal/sim/weather"
	"skyway.city/internal/sim/world/feature/proximity"
	"skyway.city/internal/sim/world/kernel/model"
)

type FlightView struct {
	Agent  model.Agent       `json:"agent"`
	Flight model.Flight      `json:"flight"`
	State  model.FlightState `json:"state"`
}

type ParkingView struct {
	Total     int `json:"total"`
	Available int `json:"available"`
}

// View is a read-only copy of the world published after every tick. Nothing
// in it aliases loop state.
type View struct {
	// Tick is the tick the view was produced by.
	Tick       uint64                 `json:"tick"`
	CityCode   string                 `json:"city_code"`
	Flights    []FlightView           `json:"flights"`
	Hazards    model.HazardSet        `json:"hazards"`
	Weather    weather.Report         `json:"weather"`
	Encounters []proximity.Encounter  `json:"encounters,omitempty"`
	Accidents  []model.AccidentRecord `json:"recent_accidents,omitempty"`
	Parking    ParkingView            `json:"parking"`
	// Events raised during Tick, in order.
	Events []protocol.Event `json:"events,omitempty"`

	index map[string]int
}

// View returns the latest published view. Safe from any goroutine.
func (w *World) View() *View {
	return w.view.Load()
}

func (w *World) publish(events []protocol.Event, tick uint64) {
	flights := make([]FlightView, 0, len(w.fleet))
	for _, e := range w.fleet {
		flights = append(flights, FlightView{Agent: e.agent, Flight: e.flight, State: e.state})
	}
	v := &View{
		Tick:       tick,
		CityCode:   w.city.Code,
		Flights:    deep.MustCopy(flights),
		Hazards:    w.hazards.Flags(),
		Weather:    w.lastWeather,
		Encounters: deep.MustCopy(w.encounters),
		Accidents:  deep.MustCopy(w.accidents),
		Parking:    ParkingView{Total: w.lots.Len(), Available: w.lots.Available()},
		Events:     deep.MustCopy(events),
		index:      make(map[string]int, len(flights)),
	}
	for i, f := range v.Flights {
		v.index[f.Agent.ID] = i
	}
	w.view.Store(v)
	if w.viewSink != nil {
		select {
		case w.viewSink <- v:
		default:
		}
	}
}

func (v *View) hasAgent(id string) bool {
	_, ok := v.index[id]
	return ok
}

// Flight looks up one flight by agent id.
func (v *View) Flight(id string) (FlightView, bool) {
	i, ok := v.index[id]
	if !ok {
		return FlightView{}, false
	}
	return v.Flights[i], true
}

// StateMsg renders the view as a STATE message.
func (v *View) StateMsg() protocol.StateMsg {
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            v.Tick,
		Hazards: protocol.HazardState{
			Weather:          v.Hazards.Weather,
			BuildingCollapse: v.Hazards.BuildingCollapse,
			AirAccident:      v.Hazards.AirAccident,
			PoliceActivity:   v.Hazards.PoliceActivity,
			EmergencyHalt:    v.Hazards.EmergencyHalt,
			Status:           v.Hazards.Status,
		},
		Weather: protocol.WeatherState{Severity: v.Weather.Severity, SafeToFly: v.Weather.SafeToFly},
		Flights: make([]protocol.FlightState, 0, len(v.Flights)),
		Parking: protocol.ParkingSummary{Total: v.Parking.Total, Available: v.Parking.Available},
	}
	for _, f := range v.Flights {
		msg.Flights = append(msg.Flights, protocol.FlightState{
			AgentID:     f.Agent.ID,
			Callsign:    f.Agent.Callsign,
			Pos:         [3]float64{f.Agent.X, f.Agent.Y, f.Agent.Altitude},
			Destination: [2]float64{f.Flight.Destination.X, f.Flight.Destination.Y},
			Status:      string(f.Flight.Status),
			HaltReason:  string(f.Flight.HaltReason),
			ParkingID:   f.State.ParkingID,
			Reroute:     f.Flight.RerouteRequested,
			Active:      f.Agent.Active,
		})
	}
	for _, e := range v.Encounters {
		msg.Encounters = append(msg.Encounters, protocol.EncounterInfo{A: e.A, B: e.B, Band: string(e.Band), Distance: e.Distance})
	}
	return msg
}

package model

type FlightStatus string

const (
	StatusCruising         FlightStatus = "CRUISING"
	StatusEmergencyHalt    FlightStatus = "EMERGENCY_HALT"
	StatusEmergencyLanding FlightStatus = "EMERGENCY_LANDING"
	StatusParked           FlightStatus = "PARKED"
)

func (s FlightStatus) Valid() bool {
	switch s {
	case StatusCruising, StatusEmergencyHalt, StatusEmergencyLanding, StatusParked:
		return true
	}
	return false
}

// HaltReason records why a flight entered EMERGENCY_HALT. A halted flight only
// resumes when the clearing cause matches its reason.
type HaltReason string

const (
	HaltNone      HaltReason = ""
	HaltWeather   HaltReason = "WEATHER"
	HaltCollision HaltReason = "COLLISION"
	HaltEmergency HaltReason = "EMERGENCY"
	HaltOperator  HaltReason = "OPERATOR"
)

// Flight is 1:1 with an Agent for the whole session.
type Flight struct {
	AgentID     string
	Start       Point
	Destination Point
	Color       string
	Status      FlightStatus
	HaltReason  HaltReason

	// EmergencyReroute is raised by the proximity analyzer after an accident.
	EmergencyReroute bool
	// RerouteRequested is raised when the terrain guard rejected the next
	// segment; cleared when a new destination is assigned.
	RerouteRequested bool
}

// FlightState is the supplemental status owned alongside each Flight.
type FlightState struct {
	Parked        bool
	ParkingID     string
	LandingTarget *Point
}

func (s *FlightState) ClearLanding() {
	s.ParkingID = ""
	s.LandingTarget = nil
}

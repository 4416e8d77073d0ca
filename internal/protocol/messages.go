package protocol

// Command names carried in COMMAND.cmd.
const (
	CmdHaltFlight      = "HALT_FLIGHT"
	CmdResumeFlight    = "RESUME_FLIGHT"
	CmdDispatch        = "DISPATCH"
	CmdReroute         = "REROUTE"
	CmdLandFlight      = "LAND_FLIGHT"
	CmdSetHazard       = "SET_HAZARD"
	CmdSetAltitude     = "SET_ALTITUDE"
	CmdDeactivateAgent = "DEACTIVATE_AGENT"
)

// Client roles.
const (
	RoleObserver = "observer"
	RoleOperator = "operator"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	Role            string `json:"role,omitempty"`
	ResumeToken     string `json:"resume_token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	ResumeToken     string     `json:"resume_token"`
	Resumed         bool       `json:"resumed,omitempty"`
	Role            string     `json:"role"`
	City            CityParams `json:"city"`
	Digests         Digests    `json:"digests"`
	EventCursor     uint64     `json:"event_cursor"`
}

type CityParams struct {
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	TickRateHz    int     `json:"tick_rate_hz"`
	Seed          int64   `json:"seed"`
	Obstacles     int     `json:"obstacles"`
	ParkingSpaces int     `json:"parking_spaces"`
	BaseSpeed     float64 `json:"base_speed"`
}

type Digests struct {
	City      string `json:"city"`
	Obstacles string `json:"obstacles"`
	Parking   string `json:"parking"`
}

// STATE (server -> client), one per tick.
type StateMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Tick            uint64          `json:"tick"`
	Hazards         HazardState     `json:"hazards"`
	Weather         WeatherState    `json:"weather"`
	Flights         []FlightState   `json:"flights"`
	Encounters      []EncounterInfo `json:"encounters,omitempty"`
	Parking         ParkingSummary  `json:"parking"`
}

type HazardState struct {
	Weather          bool   `json:"weather"`
	BuildingCollapse bool   `json:"building_collapse"`
	AirAccident      bool   `json:"air_accident"`
	PoliceActivity   bool   `json:"police_activity"`
	EmergencyHalt    bool   `json:"emergency_halt"`
	Status           string `json:"status"`
}

type WeatherState struct {
	Severity  int  `json:"severity"`
	SafeToFly bool `json:"safe_to_fly"`
}

type FlightState struct {
	AgentID     string     `json:"agent_id"`
	Callsign    string     `json:"callsign"`
	Pos         [3]float64 `json:"pos"`
	Destination [2]float64 `json:"destination"`
	Status      string     `json:"status"`
	HaltReason  string     `json:"halt_reason,omitempty"`
	ParkingID   string     `json:"parking_id,omitempty"`
	Reroute     bool       `json:"reroute_requested,omitempty"`
	Active      bool       `json:"active"`
}

type EncounterInfo struct {
	A        string  `json:"a"`
	B        string  `json:"b"`
	Band     string  `json:"band"`
	Distance float64 `json:"distance"`
}

type ParkingSummary struct {
	Total     int `json:"total"`
	Available int `json:"available"`
}

// EVENT (server -> client)
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Cursor          uint64 `json:"cursor"`
	Event           Event  `json:"event"`
}

// Event is one accident, advisory or status transition.
type Event struct {
	Tick     uint64    `json:"tick"`
	Kind     string    `json:"kind"`
	Level    string    `json:"level,omitempty"`
	ID       string    `json:"id,omitempty"`
	Flights  []string  `json:"flights,omitempty"`
	Pos      []float64 `json:"pos,omitempty"`
	Distance float64   `json:"distance,omitempty"`
	From     string    `json:"from,omitempty"`
	To       string    `json:"to,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// COMMAND (client -> server). Fields beyond cmd are read per command.
type CommandMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	CommandID       string   `json:"command_id"`
	Cmd             string   `json:"cmd"`
	AgentID         string   `json:"agent_id,omitempty"`
	X               *float64 `json:"x,omitempty"`
	Y               *float64 `json:"y,omitempty"`
	Altitude        *float64 `json:"altitude,omitempty"`
	ParkingID       string   `json:"parking_id,omitempty"`
	Hazard          string   `json:"hazard,omitempty"`
	Active          *bool    `json:"active,omitempty"`
	Reason          string   `json:"reason,omitempty"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

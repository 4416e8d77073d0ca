package observerproto

import (
	"skyway.city/internal/protocol"
	"skyway.city/internal/sim/world/kernel/model"
)

// Version is the observer protocol version (separate from the operator WS protocol).
const Version = "0.2"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeFrame     = "FRAME"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// EveryTicks thins the stream to one frame per N ticks.
	EveryTicks int `json:"every_ticks"`
	// FocusAgentID, when set, limits flights and encounters to that agent.
	FocusAgentID string `json:"focus_agent_id,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string     `json:"protocol_version"`
	WorldID         string     `json:"world_id"`
	Tick            uint64     `json:"tick"`
	Params          Params     `json:"params"`
	City            CityLayout `json:"city"`
}

type Params struct {
	TickRateHz         int     `json:"tick_rate_hz"`
	Seed               int64   `json:"seed"`
	BaseSpeed          float64 `json:"base_speed"`
	SnapshotEveryTicks int     `json:"snapshot_every_ticks"`
	AccidentDistance   float64 `json:"accident_distance"`
	CriticalDistance   float64 `json:"critical_distance"`
	WarningDistance    float64 `json:"warning_distance"`
	CollisionRadius    float64 `json:"collision_radius"`
}

// CityLayout is the static geometry a renderer needs once.
type CityLayout struct {
	Code      string               `json:"code"`
	Name      string               `json:"name"`
	Width     int                  `json:"width"`
	Height    int                  `json:"height"`
	Obstacles []model.Obstacle     `json:"obstacles"`
	Parking   []model.ParkingSpace `json:"parking"`
	Ground    *GroundLayer         `json:"ground,omitempty"`
}

// Ground cell classes.
const (
	GroundWater uint16 = 0
	GroundLand  uint16 = 1
)

// GroundLayer is the map sampled every Cell units, row-major, packed with
// encoding.EncodeRLE.
type GroundLayer struct {
	Cell int    `json:"cell"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
	RLE  string `json:"rle"`
}

// Server -> Client. One per tick (or per EveryTicks).
type FrameMsg struct {
	Type            string                   `json:"type"`
	ProtocolVersion string                   `json:"protocol_version"`
	Tick            uint64                   `json:"tick"`
	Hazards         protocol.HazardState     `json:"hazards"`
	Weather         protocol.WeatherState    `json:"weather"`
	Flights         []FlightFrame            `json:"flights"`
	Encounters      []protocol.EncounterInfo `json:"encounters,omitempty"`
	Accidents       []model.AccidentRecord   `json:"recent_accidents,omitempty"`
	Parking         protocol.ParkingSummary  `json:"parking"`
	Events          []protocol.Event         `json:"events,omitempty"`
}

// FlightFrame extends the STATE flight with identity and motion detail.
type FlightFrame struct {
	protocol.FlightState

	Serial           string     `json:"serial"`
	Model            string     `json:"model"`
	Owner            string     `json:"owner"`
	Speed            float64    `json:"speed"`
	Color            string     `json:"color,omitempty"`
	Start            [2]float64 `json:"start"`
	LandingTarget    []float64  `json:"landing_target,omitempty"`
	EmergencyReroute bool       `json:"emergency_reroute,omitempty"`
}

package world

import (
	"skyway.city/internal/protocol"
	"skyway.city/internal/sim/weather"
	"skyway.city/internal/sim/world/kernel/model"
)

// Optional sinks. Every one may be nil; detection and state changes happen
// whether or not anything observes them.

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// AuditLogger receives the movement log.
type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type AccidentReporter interface {
	ReportAccident(rec model.AccidentRecord) error
}

type Notifier interface {
	Notify(a Advisory) error
}

type TickLogEntry struct {
	Tick        uint64            `json:"tick"`
	Commands    []RecordedCommand `json:"commands,omitempty"`
	Weather     weather.Report    `json:"weather"`
	Transitions int               `json:"transitions,omitempty"`
	Encounters  int               `json:"encounters,omitempty"`
	Accidents   []string          `json:"accidents,omitempty"`
	Digest      string            `json:"digest"`
}

type RecordedCommand struct {
	Name    string `json:"name"`
	AgentID string `json:"agent_id,omitempty"`
	Actor   string `json:"actor,omitempty"`
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	// Wire is the command as DecodeCommand accepts it.
	Wire protocol.CommandMsg `json:"wire"`
}

// Audit actions.
const (
	AuditTransition       = "TRANSITION"
	AuditArrived          = "ARRIVED"
	AuditRerouteRequested = "REROUTE_REQUESTED"
	AuditAltitude         = "SET_ALTITUDE"
	AuditDeactivated      = "DEACTIVATED"
)

type AuditEntry struct {
	Tick    uint64     `json:"tick"`
	Actor   string     `json:"actor"`
	Action  string     `json:"action"`
	AgentID string     `json:"agent_id"`
	From    string     `json:"from,omitempty"`
	To      string     `json:"to,omitempty"`
	Reason  string     `json:"reason,omitempty"`
	Pos     model.Vec3 `json:"pos"`
}

// Advisory levels.
const (
	LevelWarning  = "WARNING"
	LevelCritical = "CRITICAL"
	LevelHazard   = "HAZARD"
	LevelWeather  = "WEATHER"
)

type Advisory struct {
	Tick     uint64   `json:"tick"`
	Level    string   `json:"level"`
	Flights  []string `json:"flights,omitempty"`
	Distance float64  `json:"distance,omitempty"`
	AtRisk   bool     `json:"at_risk,omitempty"`
	Message  string   `json:"message"`
}

package model

import "time"

const (
	AccidentTypeMidAir = "MID_AIR_COLLISION"
	SeveritySevere     = "SEVERE"
)

type AccidentRecord struct {
	ID          string    `json:"id"`
	Tick        uint64    `json:"tick"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Type        string    `json:"type"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	Flights     [2]string `json:"flights"`
	Time        time.Time `json:"time"`
}

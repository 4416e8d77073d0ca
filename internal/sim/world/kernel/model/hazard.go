package model

type HazardKind string

const (
	HazardWeather          HazardKind = "WEATHER"
	HazardBuildingCollapse HazardKind = "BUILDING_COLLAPSE"
	HazardAirAccident      HazardKind = "AIR_ACCIDENT"
	HazardPoliceActivity   HazardKind = "POLICE_ACTIVITY"
	HazardEmergencyHalt    HazardKind = "EMERGENCY_HALT"
)

var HazardKinds = []HazardKind{
	HazardWeather,
	HazardBuildingCollapse,
	HazardAirAccident,
	HazardPoliceActivity,
	HazardEmergencyHalt,
}

const StatusActive = "ACTIVE"

// HazardSet holds the city-wide hazard flags. Status is derived and
// last-write-wins: every activation overwrites it.
type HazardSet struct {
	Weather          bool   `json:"weather"`
	BuildingCollapse bool   `json:"building_collapse"`
	AirAccident      bool   `json:"air_accident"`
	PoliceActivity   bool   `json:"police_activity"`
	EmergencyHalt    bool   `json:"emergency_halt"`
	Status           string `json:"status"`
}

func (h *HazardSet) flag(k HazardKind) *bool {
	switch k {
	case HazardWeather:
		return &h.Weather
	case HazardBuildingCollapse:
		return &h.BuildingCollapse
	case HazardAirAccident:
		return &h.AirAccident
	case HazardPoliceActivity:
		return &h.PoliceActivity
	case HazardEmergencyHalt:
		return &h.EmergencyHalt
	}
	return nil
}

func (h HazardSet) Active(k HazardKind) bool {
	if p := h.flag(k); p != nil {
		return *p
	}
	return false
}

// Set flips one flag and reports whether the value changed.
func (h *HazardSet) Set(k HazardKind, on bool) (changed, ok bool) {
	p := h.flag(k)
	if p == nil {
		return false, false
	}
	if *p == on {
		return false, true
	}
	*p = on
	return true, true
}

func (h HazardSet) Any() bool {
	return h.Weather || h.BuildingCollapse || h.AirAccident || h.PoliceActivity || h.EmergencyHalt
}

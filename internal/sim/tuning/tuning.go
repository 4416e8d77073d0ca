package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int     `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int     `yaml:"snapshot_every_ticks"`
	SessionTicks       int     `yaml:"session_ticks"`
	BaseSpeed          float64 `yaml:"base_speed"`

	Proximity Proximity `yaml:"proximity"`
	Terrain   Terrain   `yaml:"terrain"`
	Parking   Parking   `yaml:"parking"`
	Weather   Weather   `yaml:"weather"`
	Fleet     Fleet     `yaml:"fleet"`
}

type Proximity struct {
	Accident           float64 `yaml:"accident"`
	Critical           float64 `yaml:"critical"`
	Warning            float64 `yaml:"warning"`
	MinSeparation      float64 `yaml:"min_separation"`
	VerticalSeparation float64 `yaml:"vertical_separation"`
}

type Terrain struct {
	Radius       float64 `yaml:"radius"`
	Margin       float64 `yaml:"margin"`
	SearchRadius float64 `yaml:"search_radius"`
	CellSize     float64 `yaml:"cell_size"`
}

type Parking struct {
	Target        int `yaml:"target"`
	Margin        int `yaml:"margin"`
	AttemptFactor int `yaml:"attempt_factor"`
}

type Weather struct {
	// Mode is "scripted" or "drift".
	Mode             string        `yaml:"mode"`
	Seed             uint64        `yaml:"seed"`
	ChangeEveryTicks int           `yaml:"change_every_ticks"`
	Script           []WeatherStep `yaml:"script"`
}

// WeatherStep takes effect at Tick and holds until the next step.
type WeatherStep struct {
	Tick     uint64 `yaml:"tick"`
	Severity int    `yaml:"severity"`
	// SafeToFly defaults to severity < 4.
	SafeToFly *bool `yaml:"safe_to_fly,omitempty"`
}

type Fleet struct {
	Size      int     `yaml:"size"`
	Seed      int64   `yaml:"seed"`
	CruiseMin float64 `yaml:"cruise_min_altitude"`
	CruiseMax float64 `yaml:"cruise_max_altitude"`
	StartYear int     `yaml:"start_year"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         5,
		SnapshotEveryTicks: 3000,
		SessionTicks:       18000,
		BaseSpeed:          10,
		Proximity: Proximity{
			Accident:           20,
			Critical:           50,
			Warning:            100,
			MinSeparation:      50,
			VerticalSeparation: 100,
		},
		Terrain: Terrain{Radius: 5, Margin: 2, SearchRadius: 50, CellSize: 64},
		Parking: Parking{Target: 100, Margin: 10, AttemptFactor: 10},
		Weather: Weather{Mode: "drift", Seed: 1, ChangeEveryTicks: 600},
		Fleet:   Fleet{Size: 24, Seed: 1, CruiseMin: 60, CruiseMax: 180, StartYear: 2031},
	}
}

// Load overlays path on Defaults. Zero or missing values keep the default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	var in Tuning
	if err := yaml.Unmarshal(raw, &in); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t = merge(t, in)
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func merge(d, in Tuning) Tuning {
	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	num := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	flt := func(dst *float64, v float64) {
		if v > 0 {
			*dst = v
		}
	}
	str(&d.ProtocolVersion, in.ProtocolVersion)
	num(&d.TickRateHz, in.TickRateHz)
	num(&d.SnapshotEveryTicks, in.SnapshotEveryTicks)
	num(&d.SessionTicks, in.SessionTicks)
	flt(&d.BaseSpeed, in.BaseSpeed)

	flt(&d.Proximity.Accident, in.Proximity.Accident)
	flt(&d.Proximity.Critical, in.Proximity.Critical)
	flt(&d.Proximity.Warning, in.Proximity.Warning)
	flt(&d.Proximity.MinSeparation, in.Proximity.MinSeparation)
	flt(&d.Proximity.VerticalSeparation, in.Proximity.VerticalSeparation)

	flt(&d.Terrain.Radius, in.Terrain.Radius)
	flt(&d.Terrain.Margin, in.Terrain.Margin)
	flt(&d.Terrain.SearchRadius, in.Terrain.SearchRadius)
	flt(&d.Terrain.CellSize, in.Terrain.CellSize)

	num(&d.Parking.Target, in.Parking.Target)
	num(&d.Parking.Margin, in.Parking.Margin)
	num(&d.Parking.AttemptFactor, in.Parking.AttemptFactor)

	str(&d.Weather.Mode, in.Weather.Mode)
	if in.Weather.Seed != 0 {
		d.Weather.Seed = in.Weather.Seed
	}
	num(&d.Weather.ChangeEveryTicks, in.Weather.ChangeEveryTicks)
	if len(in.Weather.Script) > 0 {
		d.Weather.Script = in.Weather.Script
	}

	num(&d.Fleet.Size, in.Fleet.Size)
	if in.Fleet.Seed != 0 {
		d.Fleet.Seed = in.Fleet.Seed
	}
	flt(&d.Fleet.CruiseMin, in.Fleet.CruiseMin)
	flt(&d.Fleet.CruiseMax, in.Fleet.CruiseMax)
	num(&d.Fleet.StartYear, in.Fleet.StartYear)
	return d
}

func (t Tuning) Validate() error {
	p := t.Proximity
	if !(p.Accident > 0 && p.Accident < p.Critical && p.Critical < p.Warning) {
		return fmt.Errorf("proximity thresholds must nest 0 < accident < critical < warning, got %v/%v/%v", p.Accident, p.Critical, p.Warning)
	}
	if t.Terrain.Radius <= 0 {
		return fmt.Errorf("terrain.radius must be > 0, got %v", t.Terrain.Radius)
	}
	if t.TickRateHz <= 0 || t.TickRateHz > 100 {
		return fmt.Errorf("tick_rate_hz out of range: %d", t.TickRateHz)
	}
	if t.Fleet.CruiseMin > t.Fleet.CruiseMax {
		return fmt.Errorf("fleet cruise altitude range inverted: %v > %v", t.Fleet.CruiseMin, t.Fleet.CruiseMax)
	}
	switch t.Weather.Mode {
	case "scripted":
		if len(t.Weather.Script) == 0 {
			return fmt.Errorf("weather.script is empty")
		}
		for i, s := range t.Weather.Script {
			if s.Severity < 0 || s.Severity > 5 {
				return fmt.Errorf("weather.script[%d]: severity %d out of 0..5", i, s.Severity)
			}
			if i > 0 && s.Tick <= t.Weather.Script[i-1].Tick {
				return fmt.Errorf("weather.script[%d]: ticks must increase", i)
			}
		}
	case "drift":
	default:
		return fmt.Errorf("weather.mode must be scripted or drift, got %q", t.Weather.Mode)
	}
	return nil
}

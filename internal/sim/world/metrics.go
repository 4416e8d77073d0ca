package world

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick   uint64 `json:"tick"`
	Digest string `json:"digest"`

	Flights  int            `json:"flights"`
	Active   int            `json:"active"`
	ByStatus map[string]int `json:"by_status"`

	Encounters     int    `json:"encounters"`
	AccidentsTotal uint64 `json:"accidents_total"`

	ParkingTotal     int `json:"parking_total"`
	ParkingAvailable int `json:"parking_available"`

	WeatherSeverity int    `json:"weather_severity"`
	HazardStatus    string `json:"hazard_status"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Admin int `json:"admin"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) storeMetrics(stepMS float64, digest string) {
	byStatus := map[string]int{}
	active := 0
	for _, e := range w.fleet {
		byStatus[string(e.flight.Status)]++
		if e.agent.Active {
			active++
		}
	}
	w.metrics.Store(WorldMetrics{
		Tick:             w.tick.Load(),
		Digest:           digest,
		Flights:          len(w.fleet),
		Active:           active,
		ByStatus:         byStatus,
		Encounters:       len(w.encounters),
		AccidentsTotal:   w.analyzer.AccidentSeq(),
		ParkingTotal:     w.lots.Len(),
		ParkingAvailable: w.lots.Available(),
		WeatherSeverity:  w.lastWeather.Severity,
		HazardStatus:     w.hazards.Flags().Status,
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Admin: len(w.admin),
		},
		StepMS: stepMS,
	})
}

package worldtest

import (
	"os"
	"path/filepath"
	"testing"

	"skyway.city/internal/sim/citysession"
	world "skyway.city/internal/sim/world"
)

// Harness drives a world built from a throwaway config directory through
// exported APIs only, so tests can live outside the world package.
type Harness struct {
	T   *testing.T
	Dir string
	S   *citysession.Session
	W   *world.World
}

// DefaultCity is a small city with one tall building and one house.
const DefaultCity = `{
  "code": "WTH",
  "name": "World Test Harbor",
  "width": 600,
  "height": 600,
  "map_seed": 3,
  "fleet_size": 6,
  "obstacles": [
    {"id": "B1", "type": "building", "x": 250, "y": 250, "width": 40, "length": 40, "height": 90},
    {"id": "H1", "type": "house", "x": 60, "y": 480, "width": 16, "length": 12, "height": 10}
  ]
}`

// CalmTuning keeps the sky clear so only commands change flight state.
const CalmTuning = `
tick_rate_hz: 20
snapshot_every_ticks: 0
base_speed: 10
weather:
  mode: scripted
  script:
    - tick: 0
      severity: 1
fleet:
  seed: 4
`

// WriteConfig lays out a config directory and returns its path.
func WriteConfig(t *testing.T, tuningYAML, cityJSON string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "cities"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cities", "city.json"), []byte(cityJSON), 0o644); err != nil {
		t.Fatalf("write city: %v", err)
	}
	if tuningYAML != "" {
		if err := os.WriteFile(filepath.Join(dir, "tuning.yaml"), []byte(tuningYAML), 0o644); err != nil {
			t.Fatalf("write tuning: %v", err)
		}
	}
	return dir
}

func NewHarness(t *testing.T) *Harness {
	t.Helper()
	return NewHarnessWith(t, CalmTuning, DefaultCity)
}

func NewHarnessWith(t *testing.T, tuningYAML, cityJSON string) *Harness {
	t.Helper()
	dir := WriteConfig(t, tuningYAML, cityJSON)
	return OpenHarness(t, dir)
}

// OpenHarness opens another session over an existing config directory.
func OpenHarness(t *testing.T, dir string) *Harness {
	t.Helper()
	s, err := citysession.Open(citysession.Options{ConfigDir: dir})
	if err != nil {
		t.Fatalf("citysession.Open: %v", err)
	}
	return &Harness{T: t, Dir: dir, S: s, W: s.World}
}

// Step runs one tick with cmds and returns the digest after it.
func (h *Harness) Step(cmds ...world.Command) string {
	h.T.Helper()
	_, d := h.W.StepOnce(cmds...)
	return d
}

func (h *Harness) StepFor(n int) string {
	h.T.Helper()
	var d string
	for i := 0; i < n; i++ {
		d = h.Step()
	}
	return d
}

// FlightIDs lists agents in fleet order.
func (h *Harness) FlightIDs() []string {
	h.T.Helper()
	v := h.W.View()
	out := make([]string, 0, len(v.Flights))
	for _, f := range v.Flights {
		out = append(out, f.Agent.ID)
	}
	return out
}

func (h *Harness) Flight(id string) world.FlightView {
	h.T.Helper()
	f, ok := h.W.View().Flight(id)
	if !ok {
		h.T.Fatalf("flight %s not in view", id)
	}
	return f
}

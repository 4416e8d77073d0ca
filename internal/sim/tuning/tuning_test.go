package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestDefaultsValid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults: %v", err)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	p := writeYAML(t, `
tick_rate_hz: 10
proximity:
  warning: 120
weather:
  mode: scripted
  script:
    - {tick: 0, severity: 1}
    - {tick: 50, severity: 5}
    - {tick: 90, severity: 2, safe_to_fly: true}
`)
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.TickRateHz != 10 || tu.Proximity.Warning != 120 || tu.Proximity.Accident != 20 {
		t.Fatalf("got %+v", tu)
	}
	if len(tu.Weather.Script) != 3 || tu.Weather.Script[2].SafeToFly == nil || !*tu.Weather.Script[2].SafeToFly {
		t.Fatalf("script=%+v", tu.Weather.Script)
	}
	if tu.Terrain.Radius != 5 || tu.Parking.Target != 100 {
		t.Fatalf("defaults lost: %+v", tu)
	}
}

func TestLoad_RejectsBadNesting(t *testing.T) {
	p := writeYAML(t, "proximity:\n  accident: 60\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected nesting error")
	}
}

func TestLoad_RejectsUnorderedScript(t *testing.T) {
	p := writeYAML(t, `
weather:
  mode: scripted
  script:
    - {tick: 10, severity: 1}
    - {tick: 10, severity: 4}
`)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected script order error")
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

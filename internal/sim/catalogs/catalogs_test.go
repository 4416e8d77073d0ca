package catalogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"skyway.city/internal/sim/world/kernel/model"
)

const metroJSON = `{
  "code": "mtr",
  "name": "Metro",
  "width": 400,
  "height": 300,
  "map_seed": 9,
  "obstacles": [
    {"id": "B1", "type": "building", "x": 100, "y": 100, "width": 40, "length": 40, "height": 40},
    {"id": "H1", "type": "house", "x": 10, "y": 10, "width": 8, "length": 6, "height": 9}
  ]
}`

func writeCity(t *testing.T, dir, name, body string) {
	t.Helper()
	cities := filepath.Join(dir, "cities")
	if err := os.MkdirAll(cities, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cities, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLoad_Valid(t *testing.T) {
	dir := t.TempDir()
	writeCity(t, dir, "metro.json", metroJSON)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	city, ok := c.City("MTR")
	if !ok {
		t.Fatalf("city MTR missing, codes=%v", c.Codes)
	}
	if city.Width != 400 || city.Height != 300 || len(city.Obstacles) != 2 {
		t.Fatalf("city=%+v", city)
	}
	if city.Obstacles[0].Height != 40 || city.Digest == "" || c.Digest == "" {
		t.Fatalf("city=%+v digest=%q", city, c.Digest)
	}
	if city.MapImagePath() != "" {
		t.Fatalf("unexpected map path %q", city.MapImagePath())
	}
}

func TestLoad_RejectsNonPositiveGeometry(t *testing.T) {
	dir := t.TempDir()
	writeCity(t, dir, "bad.json", strings.Replace(metroJSON, `"width": 40,`, `"width": 0,`, 1))
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected schema error for zero width")
	}
}

func TestLoad_RejectsDuplicateObstacle(t *testing.T) {
	dir := t.TempDir()
	writeCity(t, dir, "dup.json", strings.Replace(metroJSON, `"id": "H1"`, `"id": "B1"`, 1))
	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "duplicate obstacle") {
		t.Fatalf("err=%v", err)
	}
}

func TestLoad_NoCities(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "cities"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected error for empty cities dir")
	}
}

func TestObstacleDigest_OrderSensitive(t *testing.T) {
	dir := t.TempDir()
	writeCity(t, dir, "metro.json", metroJSON)
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	obs := c.Cities["MTR"].Obstacles
	a := ObstacleDigest(obs)
	swapped := []model.Obstacle{obs[1], obs[0]}
	if a == ObstacleDigest(swapped) {
		t.Fatalf("digest ignores order")
	}
	if a != c.Cities["MTR"].ObstacleDigest() {
		t.Fatalf("method and function disagree")
	}
}

package catalogs

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"skyway.city/internal/sim/world/kernel/model"
)

//go:embed city.schema.json
var citySchemaJSON []byte

type Catalogs struct {
	Cities map[string]City
	// Codes is sorted.
	Codes  []string
	Digest string
}

type City struct {
	Code      string           `json:"code"`
	Name      string           `json:"name"`
	Width     int              `json:"width"`
	Height    int              `json:"height"`
	MapImage  string           `json:"map_image,omitempty"`
	MapSeed   uint64           `json:"map_seed,omitempty"`
	FleetSize int              `json:"fleet_size,omitempty"`
	Obstacles []model.Obstacle `json:"obstacles"`

	// Digest is the sha256 of the city file.
	Digest string `json:"-"`
	// Dir is where the file was loaded from; MapImage is relative to it.
	Dir string `json:"-"`
}

// MapImagePath is empty when the city has no raster map.
func (c City) MapImagePath() string {
	if c.MapImage == "" {
		return ""
	}
	if filepath.IsAbs(c.MapImage) {
		return c.MapImage
	}
	return filepath.Join(c.Dir, c.MapImage)
}

func (c City) ObstacleDigest() string { return ObstacleDigest(c.Obstacles) }

// Load reads every configDir/cities/*.json.
func Load(configDir string) (*Catalogs, error) {
	schema, err := citySchema()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(configDir, "cities")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("cities: no city files in %s", dir)
	}

	c := &Catalogs{Cities: map[string]City{}}
	var concat bytes.Buffer
	for _, p := range files {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		concat.Write(raw)
		concat.WriteByte('\n')
		city, err := parseCity(schema, filepath.Base(p), raw)
		if err != nil {
			return nil, err
		}
		city.Dir = dir
		key := strings.ToUpper(city.Code)
		if _, dup := c.Cities[key]; dup {
			return nil, fmt.Errorf("city %s: duplicate code %s", filepath.Base(p), city.Code)
		}
		c.Cities[key] = city
		c.Codes = append(c.Codes, key)
	}
	sort.Strings(c.Codes)
	c.Digest = sha256Hex(concat.Bytes())
	return c, nil
}

// LoadCity reads and validates a single city file.
func LoadCity(path string) (City, error) {
	schema, err := citySchema()
	if err != nil {
		return City{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return City{}, err
	}
	city, err := parseCity(schema, filepath.Base(path), raw)
	if err != nil {
		return City{}, err
	}
	city.Dir = filepath.Dir(path)
	return city, nil
}

func (c *Catalogs) City(code string) (City, bool) {
	city, ok := c.Cities[strings.ToUpper(code)]
	return city, ok
}

func citySchema() (*jsonschema.Schema, error) {
	comp := jsonschema.NewCompiler()
	if err := comp.AddResource("city.schema.json", bytes.NewReader(citySchemaJSON)); err != nil {
		return nil, fmt.Errorf("city schema: %w", err)
	}
	s, err := comp.Compile("city.schema.json")
	if err != nil {
		return nil, fmt.Errorf("city schema: %w", err)
	}
	return s, nil
}

func parseCity(schema *jsonschema.Schema, name string, raw []byte) (City, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return City{}, fmt.Errorf("city %s: %w", name, err)
	}
	if err := schema.Validate(doc); err != nil {
		return City{}, fmt.Errorf("city %s: %w", name, err)
	}
	var city City
	if err := json.Unmarshal(raw, &city); err != nil {
		return City{}, fmt.Errorf("city %s: %w", name, err)
	}
	seen := map[string]bool{}
	for _, o := range city.Obstacles {
		if seen[o.ID] {
			return City{}, fmt.Errorf("city %s: duplicate obstacle id %s", name, o.ID)
		}
		seen[o.ID] = true
	}
	city.Digest = sha256Hex(raw)
	return city, nil
}

// ObstacleDigest hashes obstacle geometry in the given order.
func ObstacleDigest(obs []model.Obstacle) string {
	h := sha256.New()
	var tmp [8]byte
	f := func(v float64) {
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
		h.Write(tmp[:])
	}
	for _, o := range obs {
		h.Write([]byte(o.ID))
		h.Write([]byte(o.Type))
		f(o.X)
		f(o.Y)
		f(o.Width)
		f(o.Length)
		f(o.Height)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Package citysession assembles a runnable world for one city from the
// config directory: tuning, city catalog, map raster, parking pool and
// weather source.
package citysession

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"strings"
	"time"

	"skyway.city/internal/persistence/cache"
	"skyway.city/internal/sim/catalogs"
	"skyway.city/internal/sim/citymap"
	"skyway.city/internal/sim/tuning"
	"skyway.city/internal/sim/weather"
	"skyway.city/internal/sim/world"
	"skyway.city/internal/sim/world/feature/parking"
	"skyway.city/internal/sim/world/kernel/model"
)

type Options struct {
	ConfigDir string
	// TuningPath defaults to <ConfigDir>/tuning.yaml; a missing file means defaults.
	TuningPath string
	CityCode   string
	WorldID    string
	// Cache, if set, stores generated parking pools across restarts.
	Cache  *cache.Store
	Now    func() time.Time
	Logger *log.Logger
}

type Session struct {
	World    *world.World
	City     catalogs.City
	Catalogs *catalogs.Catalogs
	Tuning   tuning.Tuning
	Map      citymap.PixelSource
	// ParkingCached is true when the pool came from the cache.
	ParkingCached bool
}

// cachedPool is the cache record for a generated pool.
type cachedPool struct {
	Spaces []model.ParkingSpace `msgpack:"spaces"`
	Report parking.Report       `msgpack:"report"`
}

func Open(opts Options) (*Session, error) {
	tp := strings.TrimSpace(opts.TuningPath)
	if tp == "" {
		tp = filepath.Join(opts.ConfigDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load tuning: %w", err)
		}
		logf(opts.Logger, "tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	cats, err := catalogs.Load(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("load catalogs: %w", err)
	}
	code := strings.ToUpper(strings.TrimSpace(opts.CityCode))
	if code == "" && len(cats.Codes) > 0 {
		code = cats.Codes[0]
	}
	city, ok := cats.City(code)
	if !ok {
		return nil, fmt.Errorf("unknown city %q (have %v)", code, cats.Codes)
	}

	px, err := PixelsFor(city)
	if err != nil {
		return nil, err
	}
	src, err := weather.FromTuning(tune.Weather)
	if err != nil {
		return nil, fmt.Errorf("weather: %w", err)
	}

	id := opts.WorldID
	if id == "" {
		id = strings.ToLower(city.Code)
	}
	cfg := world.ConfigFromTuning(id, tune)
	if city.FleetSize > 0 {
		cfg.FleetSize = city.FleetSize
	}

	deps := world.Deps{Map: px, Weather: src, Now: opts.Now}
	var key string
	cached := false
	if opts.Cache != nil {
		key = cache.ParkingKey(city.Code, px.Digest(), cfg.Parking.Seed, cfg.Parking.Target)
		var pool cachedPool
		if _, err := opts.Cache.Get(key, &pool); err == nil && len(pool.Spaces) > 0 {
			deps.Parking, deps.ParkingReport = pool.Spaces, pool.Report
			cached = true
		}
	}

	w, err := world.New(cfg, city, deps)
	if err != nil {
		return nil, err
	}
	if opts.Cache != nil && !cached {
		pool := cachedPool{Spaces: w.ParkingSpaces(), Report: w.ParkingReport()}
		if err := opts.Cache.Put(key, pool); err != nil {
			logf(opts.Logger, "parking cache put %s: %v", key, err)
		}
	}
	rep := w.ParkingReport()
	logf(opts.Logger, "city=%s obstacles=%d parking=%d/%d attempts=%d cached=%t",
		city.Code, len(city.Obstacles), rep.Placed, cfg.Parking.Target, rep.Attempts, cached)

	return &Session{
		World:         w,
		City:          city,
		Catalogs:      cats,
		Tuning:        tune,
		Map:           px,
		ParkingCached: cached,
	}, nil
}

// PixelsFor opens the city's map image, or a synthetic map seeded by the
// city when it has none.
func PixelsFor(city catalogs.City) (citymap.PixelSource, error) {
	if p := city.MapImagePath(); p != "" {
		r, err := citymap.Open(p)
		if err != nil {
			return nil, fmt.Errorf("city %s map: %w", city.Code, err)
		}
		return r, nil
	}
	return citymap.NewSynthetic(city.Width, city.Height, city.MapSeed), nil
}

func logf(l *log.Logger, format string, args ...any) {
	if l != nil {
		l.Printf(format, args...)
	}
}

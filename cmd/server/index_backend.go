package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"skyway.city/internal/persistence/indexdb"
	"skyway.city/internal/persistence/snapshot"
	"skyway.city/internal/sim/catalogs"
	"skyway.city/internal/sim/tuning"
	"skyway.city/internal/sim/world"
)

// runtimeIndex is the query index the server writes alongside the logs.
// Both backends satisfy it; a nil index disables indexing.
type runtimeIndex interface {
	world.TickLogger
	world.AuditLogger
	world.AccidentReporter
	world.Notifier
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	RecordSnapshotState(snap snapshot.SnapshotV1)
	RecordSession(session int, endTick uint64, archivedSnapshotPath string, seed int64)
}

type indexSettings struct {
	Backend   string
	Endpoint  string
	Token     string
	BatchSize int
	Flush     time.Duration
}

// readIndexSettings reads SKY_INDEX_*. The backend defaults to sqlite;
// none/off/disabled turn indexing off.
func readIndexSettings(getenv func(string) string) (indexSettings, error) {
	num := func(key string, def int) int {
		var n int
		if _, err := fmt.Sscan(strings.TrimSpace(getenv(key)), &n); err != nil || n <= 0 {
			return def
		}
		return n
	}
	s := indexSettings{
		Backend:   strings.ToLower(strings.TrimSpace(getenv("SKY_INDEX_BACKEND"))),
		Endpoint:  strings.TrimSpace(getenv("SKY_INDEX_REMOTE_URL")),
		Token:     strings.TrimSpace(getenv("SKY_INDEX_REMOTE_TOKEN")),
		BatchSize: num("SKY_INDEX_REMOTE_BATCH_SIZE", 128),
		Flush:     time.Duration(num("SKY_INDEX_REMOTE_FLUSH_MS", 500)) * time.Millisecond,
	}
	switch s.Backend {
	case "":
		s.Backend = "sqlite"
	case "none", "off", "disabled":
		s.Backend = "none"
	case "sqlite":
	case "remote":
		if s.Endpoint == "" {
			return s, fmt.Errorf("SKY_INDEX_BACKEND=remote but SKY_INDEX_REMOTE_URL is empty")
		}
	default:
		return s, fmt.Errorf("unsupported SKY_INDEX_BACKEND: %s", s.Backend)
	}
	return s, nil
}

func openRuntimeIndex(cityDir, cityID string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}
	s, err := readIndexSettings(os.Getenv)
	if err != nil {
		return nil, err
	}
	switch s.Backend {
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(cityDir, "index", "city.sqlite"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "remote":
		idx, err := indexdb.OpenRemote(indexdb.RemoteConfig{
			Endpoint:      s.Endpoint,
			Token:         s.Token,
			CityID:        cityID,
			BatchSize:     s.BatchSize,
			FlushInterval: s.Flush,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
	return nil, nil
}

package indexdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"skyway.city/internal/persistence/snapshot"
	"skyway.city/internal/sim/catalogs"
	"skyway.city/internal/sim/tuning"
	"skyway.city/internal/sim/world"
	"skyway.city/internal/sim/world/kernel/model"
)

// RemoteConfig points the index at an HTTP ingest endpoint that accepts
// {"events":[...]} batches.
type RemoteConfig struct {
	Endpoint      string
	Token         string
	CityID        string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// MaxRetained caps events held back after failed flushes.
	MaxRetained int
	Logger      *log.Logger
}

type RemoteIndex struct {
	cfg        RemoteConfig
	httpClient *http.Client

	ch   chan remoteEvent
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	queueDropped  atomic.Uint64
	retainDropped atomic.Uint64
	flushFail     atomic.Uint64
	flushed       atomic.Uint64

	auditMu       sync.Mutex
	lastAuditTick uint64
	auditSeq      int
}

// RemoteStats mirrors Stats for the HTTP backend.
type RemoteStats struct {
	QueueDepth         int    `json:"queue_depth"`
	QueueCapacity      int    `json:"queue_capacity"`
	QueueDroppedTotal  uint64 `json:"queue_dropped_total"`
	RetainDroppedTotal uint64 `json:"retain_dropped_total"`
	FlushFailTotal     uint64 `json:"flush_fail_total"`
	EventsFlushedTotal uint64 `json:"events_flushed_total"`
}

type remoteEvent struct {
	Kind    string `json:"kind"`
	CityID  string `json:"city_id"`
	Payload any    `json:"payload"`
}

type remoteAuditPayload struct {
	Seq int `json:"seq"`
	world.AuditEntry
}

type remoteSnapshotPayload struct {
	Tick         uint64 `json:"tick"`
	Path         string `json:"path"`
	Seed         int64  `json:"seed"`
	Flights      int    `json:"flights"`
	Parking      int    `json:"parking"`
	Accidents    int    `json:"accidents"`
	Severity     int    `json:"severity"`
	HazardStatus string `json:"hazard_status"`
}

type remoteSnapshotStatePayload struct {
	Tick    uint64              `json:"tick"`
	Hazards model.HazardSet     `json:"hazards"`
	Flights []snapshot.FlightV1 `json:"flights"`
}

type remoteSessionPayload struct {
	Session    int    `json:"session"`
	EndTick    uint64 `json:"end_tick"`
	Path       string `json:"path"`
	Seed       int64  `json:"seed"`
	RecordedAt string `json:"recorded_at"`
}

type remoteCatalogPayload struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

func OpenRemote(cfg RemoteConfig) (*RemoteIndex, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.CityID = strings.TrimSpace(cfg.CityID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty index ingest endpoint")
	}
	if cfg.CityID == "" {
		return nil, fmt.Errorf("empty city id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = 16 * cfg.BatchSize
	}

	d := &RemoteIndex{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		ch:         make(chan remoteEvent, 32768),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

func (d *RemoteIndex) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *RemoteIndex) Stats() RemoteStats {
	if d == nil {
		return RemoteStats{}
	}
	return RemoteStats{
		QueueDepth:         len(d.ch),
		QueueCapacity:      cap(d.ch),
		QueueDroppedTotal:  d.queueDropped.Load(),
		RetainDroppedTotal: d.retainDropped.Load(),
		FlushFailTotal:     d.flushFail.Load(),
		EventsFlushedTotal: d.flushed.Load(),
	}
}

func (d *RemoteIndex) WriteTick(entry world.TickLogEntry) error {
	d.enqueue("tick", entry)
	return nil
}

func (d *RemoteIndex) WriteAudit(entry world.AuditEntry) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	d.enqueue("audit", remoteAuditPayload{Seq: d.nextAuditSeq(entry.Tick), AuditEntry: entry})
	return nil
}

func (d *RemoteIndex) ReportAccident(rec model.AccidentRecord) error {
	d.enqueue("accident", rec)
	return nil
}

func (d *RemoteIndex) Notify(a world.Advisory) error {
	d.enqueue("advisory", a)
	return nil
}

func (d *RemoteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	d.enqueue("snapshot", remoteSnapshotPayload{
		Tick:         snap.Header.Tick,
		Path:         path,
		Seed:         snap.Seed,
		Flights:      len(snap.Flights),
		Parking:      len(snap.Parking),
		Accidents:    len(snap.Accidents),
		Severity:     snap.Severity,
		HazardStatus: snap.Hazards.Status,
	})
}

func (d *RemoteIndex) RecordSnapshotState(snap snapshot.SnapshotV1) {
	d.enqueue("snapshot_state", remoteSnapshotStatePayload{
		Tick:    snap.Header.Tick,
		Hazards: snap.Hazards,
		Flights: snap.Flights,
	})
}

func (d *RemoteIndex) RecordSession(session int, endTick uint64, archivedSnapshotPath string, seed int64) {
	if session <= 0 || strings.TrimSpace(archivedSnapshotPath) == "" {
		return
	}
	d.enqueue("session", remoteSessionPayload{
		Session:    session,
		EndTick:    endTick,
		Path:       archivedSnapshotPath,
		Seed:       seed,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (d *RemoteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range catalogRows(configDir, cats, tune) {
		if r.name == "" || r.digest == "" || len(r.data) == 0 {
			continue
		}
		d.enqueue("catalog", remoteCatalogPayload{Name: r.name, Digest: r.digest, JSON: string(r.data), UpdatedAt: now})
	}
	return nil
}

func (d *RemoteIndex) nextAuditSeq(tick uint64) int {
	d.auditMu.Lock()
	defer d.auditMu.Unlock()
	if tick != d.lastAuditTick {
		d.lastAuditTick = tick
		d.auditSeq = 0
	}
	d.auditSeq++
	return d.auditSeq
}

func (d *RemoteIndex) enqueue(kind string, payload any) {
	if d == nil || d.closed.Load() {
		return
	}
	select {
	case d.ch <- remoteEvent{Kind: kind, CityID: d.cfg.CityID, Payload: payload}:
	default:
		d.queueDropped.Add(1)
		d.printf("index queue full; drop kind=%s city=%s", kind, d.cfg.CityID)
	}
}

func (d *RemoteIndex) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]remoteEvent, 0, d.cfg.BatchSize)
	// flush keeps a failed batch for the next attempt, trimming the oldest
	// events once MaxRetained is exceeded.
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			d.flushFail.Add(1)
			d.printf("index flush failed batch=%d err=%v", len(batch), err)
			if over := len(batch) - d.cfg.MaxRetained; over > 0 {
				d.retainDropped.Add(uint64(over))
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		d.flushed.Add(uint64(len(batch)))
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *RemoteIndex) sendBatch(events []remoteEvent) error {
	body := struct {
		Events []remoteEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if d.cfg.Token != "" {
			req.Header.Set("x-sky-index-token", d.cfg.Token)
		}

		resp, err := d.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (d *RemoteIndex) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}

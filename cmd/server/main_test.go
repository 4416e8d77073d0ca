package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"skyway.city/internal/persistence/archive"
	"skyway.city/internal/persistence/snapshot"
	"skyway.city/internal/sim/world"
	"skyway.city/internal/sim/worldtest"
	"skyway.city/internal/transport/ws"
)

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	if got := latestSnapshot(dir); got != "" {
		t.Fatalf("empty dir: got %q", got)
	}
	snaps := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snaps, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"99.snap.zst", "1000.snap.zst", "250.snap.zst", "notes.txt", "x.snap.zst"} {
		if err := os.WriteFile(filepath.Join(snaps, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if got := latestSnapshot(dir); filepath.Base(got) != "1000.snap.zst" {
		t.Fatalf("latest=%q want 1000.snap.zst", got)
	}
}

type countingTicks struct {
	n   int
	err error
}

func (c *countingTicks) WriteTick(world.TickLogEntry) error {
	c.n++
	return c.err
}

func TestMultiTickLogger_WritesAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a, b := &countingTicks{}, &countingTicks{err: boom}
	var idx runtimeIndex // nil index is skipped
	m := multiTickLogger{a, b, idx}
	if err := m.WriteTick(world.TickLogEntry{Tick: 1}); !errors.Is(err, boom) {
		t.Fatalf("err=%v want boom", err)
	}
	if a.n != 1 || b.n != 1 {
		t.Fatalf("writes a=%d b=%d", a.n, b.n)
	}
}

func TestSnapshotWriter_ShutdownArchivesSession(t *testing.T) {
	h := worldtest.NewHarness(t)
	h.StepFor(12)

	cityDir := t.TempDir()
	sw := &snapshotWriter{cityDir: cityDir}
	sw.shutdown(h.W)

	path := snapshotPath(cityDir, 11)
	hdr, err := snapshot.ReadHeader(path)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if hdr.Tick != 11 || hdr.CityCode != "WTH" {
		t.Fatalf("header=%+v", hdr)
	}
	sessions, err := archive.ListSessions(cityDir)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Reason != archive.ReasonShutdown || sessions[0].EndTick != 11 {
		t.Fatalf("sessions=%+v", sessions)
	}
}

func TestSnapshotWriter_NothingBeforeFirstTick(t *testing.T) {
	h := worldtest.NewHarness(t)
	cityDir := t.TempDir()
	(&snapshotWriter{cityDir: cityDir}).shutdown(h.W)
	if _, err := os.Stat(filepath.Join(cityDir, "snapshots")); !os.IsNotExist(err) {
		t.Fatalf("snapshots dir exists: %v", err)
	}
}

func TestWriteMetrics(t *testing.T) {
	h := worldtest.NewHarness(t)
	h.StepFor(3)
	var buf bytes.Buffer
	writeMetrics(&buf, "wth", h.W.Metrics(), h.W.CurrentTick(), ws.Stats{Clients: 2}, nil, nil)
	out := buf.String()
	for _, want := range []string{
		`skyway_city_tick{city="wth"} 3`,
		`skyway_flights_active{city="wth"} 6`,
		`skyway_ws_clients{city="wth"} 2`,
		`skyway_parking_spaces{city="wth",state="total"}`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "skyway_mirror_") || strings.Contains(out, "skyway_index_") {
		t.Fatalf("disabled backends rendered metrics:\n%s", out)
	}
}

func TestReadIndexSettings(t *testing.T) {
	env := func(kv map[string]string) func(string) string {
		return func(k string) string { return kv[k] }
	}

	s, err := readIndexSettings(env(nil))
	if err != nil || s.Backend != "sqlite" || s.BatchSize != 128 || s.Flush != 500*time.Millisecond {
		t.Fatalf("defaults=%+v err=%v", s, err)
	}
	s, err = readIndexSettings(env(map[string]string{"SKY_INDEX_BACKEND": " OFF "}))
	if err != nil || s.Backend != "none" {
		t.Fatalf("off=%+v err=%v", s, err)
	}
	s, err = readIndexSettings(env(map[string]string{
		"SKY_INDEX_BACKEND":           "remote",
		"SKY_INDEX_REMOTE_URL":        "https://index.example/ingest",
		"SKY_INDEX_REMOTE_BATCH_SIZE": "32",
		"SKY_INDEX_REMOTE_FLUSH_MS":   "-5",
	}))
	if err != nil || s.Endpoint != "https://index.example/ingest" || s.BatchSize != 32 || s.Flush != 500*time.Millisecond {
		t.Fatalf("remote=%+v err=%v", s, err)
	}
	if _, err := readIndexSettings(env(map[string]string{"SKY_INDEX_BACKEND": "remote"})); err == nil {
		t.Fatalf("expected error for remote without url")
	}
	if _, err := readIndexSettings(env(map[string]string{"SKY_INDEX_BACKEND": "postgres"})); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestBuildMirrorRuntime_FromEnv(t *testing.T) {
	t.Setenv("SKY_MIRROR", "false")
	off, err := buildMirrorRuntime(context.Background(), t.TempDir(), nil)
	if err != nil || off.enabled {
		t.Fatalf("disabled mirror: rt=%+v err=%v", off, err)
	}
	if _, ok := off.Stats(); ok {
		t.Fatalf("disabled mirror reported stats")
	}

	t.Setenv("SKY_MIRROR", "true")
	t.Setenv("SKY_MIRROR_BUCKET", "skyway")
	t.Setenv("SKY_MIRROR_ACCESS_KEY_ID", "ak")
	t.Setenv("SKY_MIRROR_SECRET_ACCESS_KEY", "sk")
	if _, err := buildMirrorRuntime(context.Background(), t.TempDir(), nil); err == nil {
		t.Fatalf("expected error without an endpoint")
	}

	t.Setenv("SKY_MIRROR_ENDPOINT", "acct.r2.example.com")
	t.Setenv("SKY_MIRROR_QUEUE", "64")
	rt, err := buildMirrorRuntime(context.Background(), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer rt.Close()
	st, ok := rt.Stats()
	if !ok || !rt.enabled || st.Capacity != 64+16 {
		t.Fatalf("enabled=%v stats=%+v", rt.enabled, st)
	}
}

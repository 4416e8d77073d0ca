package archive

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"skyway.city/internal/persistence/snapshot"
)

func writeDummy(t *testing.T, cityDir string, tick int) string {
	t.Helper()
	src := filepath.Join(cityDir, "snapshots", strconv.Itoa(tick)+".snap.zst")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir snapshots: %v", err)
	}
	if err := os.WriteFile(src, []byte("dummy"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	return src
}

func TestSessionEnd(t *testing.T) {
	cases := []struct {
		tick    uint64
		ticks   int
		session int
		ok      bool
	}{
		{599, 600, 1, true},
		{1199, 600, 2, true},
		{600, 600, 0, false},
		{0, 1, 1, true},
		{10, 0, 0, false},
	}
	for _, c := range cases {
		s, ok := SessionEnd(c.tick, c.ticks)
		if s != c.session || ok != c.ok {
			t.Fatalf("SessionEnd(%d,%d)=(%d,%v) want (%d,%v)", c.tick, c.ticks, s, ok, c.session, c.ok)
		}
	}
}

func TestArchiveSessionSnapshot_CopiesWindowEnd(t *testing.T) {
	cityDir := filepath.Join(t.TempDir(), "cities", "nyc")
	src := writeDummy(t, cityDir, 1199)
	snap := snapshot.SnapshotV1{Header: snapshot.Header{Version: 1, CityCode: "NYC", Tick: 1199}, Seed: 42}

	session, dst, archived, err := ArchiveSessionSnapshot(cityDir, src, snap, 600)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !archived || session != 2 {
		t.Fatalf("archived=%v session=%d", archived, session)
	}
	if want := filepath.Join(cityDir, "archives", "session_002", "1199.snap.zst"); dst != want {
		t.Fatalf("dst=%s want %s", dst, want)
	}
	got, err := os.ReadFile(dst)
	if err != nil || string(got) != "dummy" {
		t.Fatalf("copy=%q err=%v", got, err)
	}

	metas, err := ListSessions(cityDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(metas) != 1 || metas[0].EndTick != 1199 || metas[0].CityCode != "NYC" || metas[0].Reason != ReasonWindow {
		t.Fatalf("metas=%+v", metas)
	}
}

func TestArchiveSessionSnapshot_SkipsMidWindow(t *testing.T) {
	cityDir := t.TempDir()
	src := writeDummy(t, cityDir, 100)
	_, _, archived, err := ArchiveSessionSnapshot(cityDir, src, snapshot.SnapshotV1{Header: snapshot.Header{Tick: 100}}, 600)
	if err != nil || archived {
		t.Fatalf("archived=%v err=%v", archived, err)
	}
	if _, err := os.Stat(filepath.Join(cityDir, "archives")); !os.IsNotExist(err) {
		t.Fatalf("archives dir should not exist: %v", err)
	}
}

func TestArchiveShutdown_NumbersAfterExisting(t *testing.T) {
	cityDir := t.TempDir()
	src := writeDummy(t, cityDir, 599)
	if _, _, _, err := ArchiveSessionSnapshot(cityDir, src, snapshot.SnapshotV1{Header: snapshot.Header{Tick: 599}}, 600); err != nil {
		t.Fatalf("archive window: %v", err)
	}
	last := writeDummy(t, cityDir, 750)
	session, _, err := ArchiveShutdown(cityDir, last, snapshot.SnapshotV1{Header: snapshot.Header{Tick: 750}})
	if err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if session != 2 {
		t.Fatalf("session=%d want 2", session)
	}
	metas, _ := ListSessions(cityDir)
	if len(metas) != 2 || metas[1].Reason != ReasonShutdown {
		t.Fatalf("metas=%+v", metas)
	}
}

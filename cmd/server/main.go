package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"skyway.city/internal/persistence/archive"
	"skyway.city/internal/persistence/cache"
	persistlog "skyway.city/internal/persistence/log"
	"skyway.city/internal/persistence/snapshot"
	"skyway.city/internal/sim/citysession"
	"skyway.city/internal/sim/world"
	"skyway.city/internal/transport/observer"
	"skyway.city/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		cityCode   = flag.String("city", "", "city code to run (default: first city in <configs>/cities)")
		worldID    = flag.String("world", "", "world id (default: lowercase city code)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (ticks/audit/accidents + catalogs + snapshot metadata)")
		readOnly   = flag.Bool("read_only", false, "serve every websocket client as an observer")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")

		logFile    = flag.String("log_file", "", "also write the server log to this file, rotated (optional)")
		logMaxMB   = flag.Int("log_max_mb", 50, "rotate the server log file at this size")
		cacheMaxMB = flag.Int("cache_max_mb", 256, "cull the parking cache down to this size at startup")
	)
	flag.Parse()

	logOut := io.Writer(os.Stdout)
	if lf := strings.TrimSpace(*logFile); lf != "" {
		logOut = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   lf,
			MaxSize:    *logMaxMB,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}
	logger := log.New(logOut, "[server] ", log.LstdFlags|log.Lmicroseconds)

	store := cache.New(filepath.Join(*dataDir, "cache"))
	if err := store.Cull(int64(*cacheMaxMB) << 20); err != nil {
		logger.Printf("cache cull: %v", err)
	}

	sess, err := citysession.Open(citysession.Options{
		ConfigDir:  *configDir,
		TuningPath: *tuningPath,
		CityCode:   *cityCode,
		WorldID:    *worldID,
		Cache:      store,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatalf("open city: %v", err)
	}
	w := sess.World
	cityID := w.ID()
	cityDir := filepath.Join(*dataDir, "cities", cityID)
	_ = os.MkdirAll(cityDir, 0o755)

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(cityDir, cityID, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	mirror, err := buildMirrorRuntime(ctx, *dataDir, logger)
	if err != nil {
		logger.Fatalf("init mirror: %v", err)
	}

	if idx != nil {
		if err := idx.UpsertCatalogs(*configDir, sess.Catalogs, sess.Tuning); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(cityDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != cityID {
			logger.Fatalf("snapshot world id mismatch: world=%s snap=%s", cityID, snap.Header.WorldID)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	}

	streams := persistlog.OpenStreams(cityDir, mirror.onClose())
	w.SetTickLogger(multiTickLogger{streams.Ticks, idx})
	w.SetAuditLogger(multiAuditLogger{streams.Audit, idx})
	w.SetAccidentReporter(multiReporter{streams.Accidents, idx})
	w.SetNotifier(multiNotifier{streams.Advisories, idx})

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	writer := &snapshotWriter{cityDir: cityDir, idx: idx, mirror: mirror, logger: logger}

	wsSrv := ws.NewServer(w, logger, ws.Options{ReadOnly: *readOnly})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, cityID, w.Metrics(), w.CurrentTick(), wsSrv.Stats(), idx, mirror)
	})

	enableAdminHTTP := envBool("SKY_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("SKY_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				CityID  string             `json:"city_id"`
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
				WS      ws.Stats           `json:"ws"`
				View    *world.View        `json:"view"`
			}{
				CityID:  cityID,
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
				WS:      wsSrv.Stats(),
				View:    w.View(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			rc, err := w.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": rc.Tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "receipt": rc})
		})

		obsSrv := observer.NewServer(w, logger)
		obsSrv.SetGround(sess.Map, 8)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (SKY_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (SKY_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := w.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error { return wsSrv.Run(gctx) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case snap := <-snapCh:
				_, _ = writer.handle(snap)
			}
		}
	})
	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ListenAndServe: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})

	runErr := g.Wait()
	if runErr != nil {
		logger.Printf("server stopped: %v", runErr)
	}

	// The world loop has exited; the final snapshot closes the session.
	writer.shutdown(w)

	if err := streams.Close(); err != nil {
		logger.Printf("close logs: %v", err)
	}
	if idx != nil {
		_ = idx.Close()
	}
	mirror.Close()
	if runErr != nil {
		os.Exit(1)
	}
}

// snapshotWriter persists snapshots off the world loop: file, index rows,
// session archive and mirror upload.
type snapshotWriter struct {
	cityDir string
	idx     runtimeIndex
	mirror  *mirrorRuntime
	logger  *log.Logger
}

func snapshotPath(cityDir string, tick uint64) string {
	return filepath.Join(cityDir, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
}

// handle writes snap and returns its path, or "" when the write failed.
// archived reports whether the snapshot closed a session window.
func (sw *snapshotWriter) handle(snap snapshot.SnapshotV1) (path string, archived bool) {
	path = snapshotPath(sw.cityDir, snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		sw.printf("snapshot write: %v", err)
		return "", false
	}
	sw.mirror.Enqueue(path)
	if sw.idx != nil {
		sw.idx.RecordSnapshot(path, snap)
		sw.idx.RecordSnapshotState(snap)
	}

	session, archivedPath, ok, err := archive.ArchiveSessionSnapshot(sw.cityDir, path, snap, snap.SessionTicks)
	switch {
	case err != nil:
		sw.printf("archive session snapshot: %v", err)
	case ok:
		sw.recordSession(session, snap, archivedPath)
	}
	return path, ok
}

// shutdown exports the last executed tick and files it as a session. It must
// run only after the world loop has returned.
func (sw *snapshotWriter) shutdown(w *world.World) {
	cur := w.CurrentTick()
	if cur == 0 {
		return
	}
	snap := w.ExportSnapshot(cur - 1)
	path, archived := sw.handle(snap)
	if path == "" || archived {
		return
	}
	session, archivedPath, err := archive.ArchiveShutdown(sw.cityDir, path, snap)
	if err != nil {
		sw.printf("archive shutdown snapshot: %v", err)
		return
	}
	sw.recordSession(session, snap, archivedPath)
	sw.printf("session %d closed at tick=%d", session, snap.Header.Tick)
}

func (sw *snapshotWriter) recordSession(session int, snap snapshot.SnapshotV1, archivedPath string) {
	if sw.idx != nil {
		sw.idx.RecordSession(session, snap.Header.Tick, archivedPath, snap.Seed)
	}
	sw.mirror.Enqueue(archivedPath)
	sw.mirror.EnqueueIfExists(filepath.Join(filepath.Dir(archivedPath), "meta.json"))
}

func (sw *snapshotWriter) printf(format string, args ...any) {
	if sw.logger != nil {
		sw.logger.Printf(format, args...)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(cityDir string) string {
	dir := filepath.Join(cityDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

package r2s3

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Kind groups mirrored artifacts. Snapshots and archives are what a new node
// needs to resume a city, so they jump ahead of closed log chunks.
type Kind int

const (
	KindLog Kind = iota
	KindSnapshot
	KindArchive
	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindArchive:
		return "archive"
	default:
		return "log"
	}
}

// KindOf classifies an object key laid out as cities/<id>/<dir>/...
func KindOf(key string) Kind {
	for _, seg := range strings.Split(key, "/") {
		switch seg {
		case "snapshots":
			return KindSnapshot
		case "archives":
			return KindArchive
		}
	}
	return KindLog
}

type MirrorOptions struct {
	Prefix      string
	Workers     int
	Capacity    int
	EnqueueWait time.Duration
	Attempts    int
	Backoff     time.Duration
}

func (o *MirrorOptions) applyDefaults() {
	o.Prefix = strings.Trim(strings.ReplaceAll(o.Prefix, "\\", "/"), "/")
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Capacity <= 0 {
		o.Capacity = 2048
	}
	if o.EnqueueWait <= 0 {
		o.EnqueueWait = 25 * time.Millisecond
	}
	if o.Attempts <= 0 {
		o.Attempts = 4
	}
	if o.Backoff <= 0 {
		o.Backoff = 200 * time.Millisecond
	}
}

type KindStats struct {
	Uploaded uint64 `json:"uploaded"`
	Failed   uint64 `json:"failed"`
	Dropped  uint64 `json:"dropped"`
}

type Stats struct {
	Pending         int                  `json:"pending"`
	Capacity        int                  `json:"capacity"`
	Enqueued        uint64               `json:"enqueued"`
	Saturated       uint64               `json:"saturated"`
	Rejected        uint64               `json:"rejected"`
	ByKind          map[string]KindStats `json:"by_kind"`
	LastSuccessUnix int64                `json:"last_success_unix"`
	LastErrorUnix   int64                `json:"last_error_unix"`
}

// Totals sums the per-kind counters.
func (s Stats) Totals() KindStats {
	var t KindStats
	for _, k := range s.ByKind {
		t.Uploaded += k.Uploaded
		t.Failed += k.Failed
		t.Dropped += k.Dropped
	}
	return t
}

type upload struct {
	local string
	key   string
	kind  Kind
}

// Mirror copies finished files under dataDir to the bucket, keyed by their
// path relative to dataDir.
type Mirror struct {
	client  Uploader
	dataDir string
	opts    MirrorOptions
	logger  *log.Logger

	urgent chan upload
	bulk   chan upload
	wg     sync.WaitGroup
	closed sync.Once

	enqueued  atomic.Uint64
	saturated atomic.Uint64
	rejected  atomic.Uint64
	uploaded  [kindCount]atomic.Uint64
	failed    [kindCount]atomic.Uint64
	dropped   [kindCount]atomic.Uint64
	lastOK    atomic.Int64
	lastErr   atomic.Int64
}

func NewMirror(client Uploader, dataDir string, opts MirrorOptions, logger *log.Logger) *Mirror {
	opts.applyDefaults()
	urgentCap := opts.Capacity / 4
	if urgentCap < 16 {
		urgentCap = 16
	}
	m := &Mirror{
		client:  client,
		dataDir: dataDir,
		opts:    opts,
		logger:  logger,
		urgent:  make(chan upload, urgentCap),
		bulk:    make(chan upload, opts.Capacity),
	}
	for i := 0; i < opts.Workers; i++ {
		m.wg.Add(1)
		go m.work()
	}
	return m
}

func (m *Mirror) work() {
	defer m.wg.Done()
	urgent, bulk := m.urgent, m.bulk
	for urgent != nil || bulk != nil {
		select {
		case u, ok := <-urgent:
			if !ok {
				urgent = nil
				continue
			}
			m.put(u)
			continue
		default:
		}
		select {
		case u, ok := <-urgent:
			if !ok {
				urgent = nil
				continue
			}
			m.put(u)
		case u, ok := <-bulk:
			if !ok {
				bulk = nil
				continue
			}
			m.put(u)
		}
	}
}

// Enqueue queues localPath and reports whether it was accepted. It waits at
// most EnqueueWait when the lane is full so tick-side callers never stall.
func (m *Mirror) Enqueue(localPath string) bool {
	if m == nil || m.client == nil {
		return false
	}
	key, err := m.objectKey(localPath)
	if err != nil {
		m.rejected.Add(1)
		m.printf("mirror skip local=%s err=%v", localPath, err)
		return false
	}
	u := upload{local: localPath, key: key, kind: KindOf(key)}
	lane := m.bulk
	if u.kind != KindLog {
		lane = m.urgent
	}
	m.enqueued.Add(1)

	select {
	case lane <- u:
		return true
	default:
	}
	m.saturated.Add(1)
	timer := time.NewTimer(m.opts.EnqueueWait)
	defer timer.Stop()
	select {
	case lane <- u:
		return true
	case <-timer.C:
		n := m.dropped[u.kind].Add(1)
		m.printf("mirror drop key=%s kind=%s dropped=%d", key, u.kind, n)
		return false
	}
}

// EnqueueDir queues every regular file under dir whose name ends in suffix.
func (m *Mirror) EnqueueDir(dir, suffix string) int {
	if m == nil || m.client == nil {
		return 0
	}
	n := 0
	_ = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		if m.Enqueue(p) {
			n++
		}
		return nil
	})
	return n
}

// Close drains both lanes.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.closed.Do(func() {
		close(m.urgent)
		close(m.bulk)
		m.wg.Wait()
	})
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	s := Stats{
		Pending:         len(m.urgent) + len(m.bulk),
		Capacity:        cap(m.urgent) + cap(m.bulk),
		Enqueued:        m.enqueued.Load(),
		Saturated:       m.saturated.Load(),
		Rejected:        m.rejected.Load(),
		ByKind:          make(map[string]KindStats, int(kindCount)),
		LastSuccessUnix: m.lastOK.Load(),
		LastErrorUnix:   m.lastErr.Load(),
	}
	for k := Kind(0); k < kindCount; k++ {
		s.ByKind[k.String()] = KindStats{
			Uploaded: m.uploaded[k].Load(),
			Failed:   m.failed[k].Load(),
			Dropped:  m.dropped[k].Load(),
		}
	}
	return s
}

func (m *Mirror) put(u upload) {
	var err error
	for attempt := 1; attempt <= m.opts.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = m.client.PutFile(ctx, u.key, u.local)
		cancel()
		if err == nil {
			break
		}
		if attempt < m.opts.Attempts {
			time.Sleep(time.Duration(attempt*attempt) * m.opts.Backoff)
		}
	}
	if err != nil {
		m.failed[u.kind].Add(1)
		m.lastErr.Store(time.Now().UTC().Unix())
		m.printf("mirror upload failed key=%s kind=%s err=%v", u.key, u.kind, err)
		return
	}
	m.uploaded[u.kind].Add(1)
	m.lastOK.Store(time.Now().UTC().Unix())
	m.printf("mirror uploaded key=%s kind=%s", u.key, u.kind)
}

func (m *Mirror) objectKey(localPath string) (string, error) {
	if localPath == "" {
		return "", fmt.Errorf("empty local path")
	}
	base, err := filepath.Abs(m.dataDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %s is outside data dir %s", abs, base)
	}
	if m.opts.Prefix != "" {
		return path.Join(m.opts.Prefix, rel), nil
	}
	return rel, nil
}

func (m *Mirror) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}

// Package cache stores msgpack-encoded, flate-compressed objects on disk.
package cache

import (
	"compress/flate"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

type Store struct {
	dir string
}

func New(dir string) *Store { return &Store{dir: dir} }

func (s *Store) path(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("cache: bad key %q", key)
	}
	return filepath.Join(s.dir, filepath.FromSlash(key)), nil
}

func (s *Store) Put(key string, obj any) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	fw, err := flate.NewWriter(f, flate.BestSpeed)
	if err != nil {
		_ = f.Close()
		return err
	}
	if err := msgpack.NewEncoder(fw).Encode(obj); err != nil {
		_ = f.Close()
		return err
	}
	if err := fw.Close(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Get decodes key into obj and returns when it was stored.
func (s *Store) Get(key string, obj any) (time.Time, error) {
	path, err := s.path(key)
	if err != nil {
		return time.Time{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return time.Time{}, err
	}
	fr := flate.NewReader(f)
	defer fr.Close()
	return fi.ModTime(), msgpack.NewDecoder(fr).Decode(obj)
}

// Cull removes the oldest entries until the store is under maxBytes.
func (s *Store) Cull(maxBytes int64) error {
	if _, err := os.Stat(s.dir); os.IsNotExist(err) {
		return nil
	}
	type fileInfo struct {
		path    string
		size    int64
		modTime time.Time
	}
	var files []fileInfo
	var total int64
	err := filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files = append(files, fileInfo{path: path, size: info.Size(), modTime: info.ModTime()})
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return err
	}
	slices.SortFunc(files, func(a, b fileInfo) int { return a.modTime.Compare(b.modTime) })
	for len(files) > 0 && total > maxBytes {
		if err := os.Remove(files[0].path); err == nil {
			total -= files[0].size
		}
		files = files[1:]
	}
	return nil
}

// ParkingKey names a generated parking pool. Any input change yields a new
// key, so stale pools are never reused.
func ParkingKey(cityCode, mapDigest string, seed uint64, target int) string {
	d := mapDigest
	if len(d) > 16 {
		d = d[:16]
	}
	return fmt.Sprintf("parking/%s/%s-%d-%d.msgpack", strings.ToUpper(cityCode), d, seed, target)
}

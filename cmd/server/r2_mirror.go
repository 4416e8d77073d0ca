package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"skyway.city/internal/persistence/r2s3"
)

type mirrorRuntime struct {
	enabled bool
	mirror  *r2s3.Mirror
}

// buildMirrorRuntime wires the object-storage mirror from SKY_MIRROR_*. It is
// disabled unless SKY_MIRROR=true.
func buildMirrorRuntime(ctx context.Context, dataDir string, logger *log.Logger) (*mirrorRuntime, error) {
	if !envBool("SKY_MIRROR", false) {
		return &mirrorRuntime{enabled: false}, nil
	}

	opts := r2s3.Options{
		Endpoint:        strings.TrimSpace(os.Getenv("SKY_MIRROR_ENDPOINT")),
		Bucket:          strings.TrimSpace(os.Getenv("SKY_MIRROR_BUCKET")),
		AccessKeyID:     strings.TrimSpace(os.Getenv("SKY_MIRROR_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("SKY_MIRROR_SECRET_ACCESS_KEY")),
		Region:          strings.TrimSpace(os.Getenv("SKY_MIRROR_REGION")),
	}
	if opts.Bucket == "" || opts.AccessKeyID == "" || opts.SecretAccessKey == "" {
		return nil, fmt.Errorf("SKY_MIRROR=true but SKY_MIRROR_BUCKET/SKY_MIRROR_ACCESS_KEY_ID/SKY_MIRROR_SECRET_ACCESS_KEY are not fully set")
	}

	client, err := r2s3.New(ctx, opts)
	if err != nil {
		return nil, err
	}

	mopts := r2s3.MirrorOptions{
		Prefix:      strings.TrimSpace(os.Getenv("SKY_MIRROR_PREFIX")),
		Workers:     envInt("SKY_MIRROR_UPLOAD_WORKERS", 2),
		Capacity:    envInt("SKY_MIRROR_QUEUE", 1024),
		EnqueueWait: time.Duration(envInt("SKY_MIRROR_ENQUEUE_WAIT_MS", 200)) * time.Millisecond,
		Attempts:    envInt("SKY_MIRROR_ATTEMPTS", 4),
	}
	return &mirrorRuntime{
		enabled: true,
		mirror:  r2s3.NewMirror(client, dataDir, mopts, logger),
	}, nil
}

func (r *mirrorRuntime) Close() {
	if r == nil || r.mirror == nil {
		return
	}
	r.mirror.Close()
}

func (r *mirrorRuntime) Enqueue(localPath string) {
	if r == nil || !r.enabled || r.mirror == nil {
		return
	}
	_ = r.mirror.Enqueue(localPath)
}

// EnqueueIfExists skips paths that were never written.
func (r *mirrorRuntime) EnqueueIfExists(path string) {
	if r == nil || !r.enabled {
		return
	}
	if _, err := os.Stat(path); err == nil {
		r.Enqueue(path)
	}
}

// onClose is handed to the log streams; nil when mirroring is off.
func (r *mirrorRuntime) onClose() func(string) {
	if r == nil || !r.enabled {
		return nil
	}
	return r.Enqueue
}

func (r *mirrorRuntime) Stats() (r2s3.Stats, bool) {
	if r == nil || !r.enabled || r.mirror == nil {
		return r2s3.Stats{}, false
	}
	return r.mirror.Stats(), true
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

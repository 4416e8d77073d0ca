package ws

import (
	"sync"

	"skyway.city/internal/protocol"
)

const defaultBatchLimit = 256

// eventRing keeps the most recent events for EVENT_BATCH replay. Cursors
// start at 1 and never repeat.
type eventRing struct {
	mu   sync.Mutex
	buf  []protocol.EventBatchItem
	head int
	n    int
	last uint64
}

func newEventRing(capacity int) *eventRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &eventRing{buf: make([]protocol.EventBatchItem, capacity)}
}

func (r *eventRing) append(ev protocol.Event) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	idx := (r.head + r.n) % len(r.buf)
	if r.n == len(r.buf) {
		r.head = (r.head + 1) % len(r.buf)
	} else {
		r.n++
	}
	r.buf[idx] = protocol.EventBatchItem{Cursor: r.last, Event: ev}
	return r.last
}

func (r *eventRing) cursor() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// since returns up to limit matching events with cursor > after, oldest
// first, the cursor to pass on the next request and how many events after
// the cursor were evicted before they could be read. Filtered-out events
// still advance the cursor.
func (r *eventRing) since(after uint64, limit int, f protocol.EventFilter) (out []protocol.EventBatchItem, next, missed uint64) {
	if limit <= 0 || limit > defaultBatchLimit {
		limit = defaultBatchLimit
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out = []protocol.EventBatchItem{}
	next = after
	if r.n > 0 {
		if oldest := r.buf[r.head].Cursor; oldest > after+1 {
			missed = oldest - after - 1
		}
	}
	for i := 0; i < r.n && len(out) < limit; i++ {
		it := r.buf[(r.head+i)%len(r.buf)]
		if it.Cursor <= after {
			continue
		}
		next = it.Cursor
		if f.Match(it.Event) {
			out = append(out, it)
		}
	}
	return out, next, missed
}

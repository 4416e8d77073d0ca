// Package rates implements fixed tick-window rate limits.
package rates

// Limit allows Max events per Ticks-long window. A zero window or a
// non-positive Max disables the limit.
type Limit struct {
	Ticks uint64
	Max   int
}

func (l Limit) disabled() bool { return l.Ticks == 0 || l.Max <= 0 }

// Window is the per-caller counter for a Limit. The zero value is an empty
// window.
type Window struct {
	Start uint64
	Count int
}

// Allow counts one event at now. When the event is over the limit, cooldown
// is the number of ticks until the window resets. A tick behind Start (a
// restored session) opens a fresh window.
func (w *Window) Allow(now uint64, l Limit) (ok bool, cooldown uint64) {
	if l.disabled() {
		return true, 0
	}
	if now < w.Start || now-w.Start >= l.Ticks {
		w.Start, w.Count = now, 0
	}
	w.Count++
	if w.Count <= l.Max {
		return true, 0
	}
	return false, w.Start + l.Ticks - now
}

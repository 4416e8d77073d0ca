// Package tracker keeps the last committed position of every agent.
package tracker

import "sort"

type Position struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Altitude float64 `json:"altitude"`
	Tick     uint64  `json:"tick"`
}

// Tracker is written only from the world loop.
type Tracker struct {
	last map[string]Position
}

func New() *Tracker {
	return &Tracker{last: map[string]Position{}}
}

func (t *Tracker) Update(agentID string, x, y, altitude float64, tick uint64) {
	t.last[agentID] = Position{X: x, Y: y, Altitude: altitude, Tick: tick}
}

func (t *Tracker) Get(agentID string) (Position, bool) {
	p, ok := t.last[agentID]
	return p, ok
}

func (t *Tracker) Forget(agentID string) { delete(t.last, agentID) }

func (t *Tracker) Len() int { return len(t.last) }

// Snapshot returns a copy; mutating it does not affect the tracker.
func (t *Tracker) Snapshot() map[string]Position {
	out := make(map[string]Position, len(t.last))
	for id, p := range t.last {
		out[id] = p
	}
	return out
}

// IDs returns tracked agent ids in sorted order.
func (t *Tracker) IDs() []string {
	out := make([]string, 0, len(t.last))
	for id := range t.last {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

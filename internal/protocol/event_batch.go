package protocol

// EventFilter narrows an EVENT_BATCH_REQ. Empty fields match everything.
type EventFilter struct {
	Kinds   []string `json:"kinds,omitempty"`
	AgentID string   `json:"agent_id,omitempty"`
}

// Match reports whether ev passes the filter.
func (f EventFilter) Match(ev Event) bool {
	if len(f.Kinds) > 0 {
		ok := false
		for _, k := range f.Kinds {
			if k == ev.Kind {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.AgentID == "" {
		return true
	}
	for _, id := range ev.Flights {
		if id == f.AgentID {
			return true
		}
	}
	return false
}

// EventBatchReqMsg asks for the retained events after SinceCursor, typically
// right after a resumed HELLO.
type EventBatchReqMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ReqID           string      `json:"req_id"`
	SinceCursor     uint64      `json:"since_cursor"`
	Limit           int         `json:"limit"`
	Filter          EventFilter `json:"filter"`
}

type EventBatchItem struct {
	Cursor uint64 `json:"cursor"`
	Event  Event  `json:"event"`
}

// EventBatchMsg answers EVENT_BATCH_REQ. Missed counts events after the
// requested cursor that were already evicted; a client seeing Missed > 0
// should reload state from the next STATE frame instead of trusting deltas.
type EventBatchMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	ReqID           string           `json:"req_id"`
	Events          []EventBatchItem `json:"events"`
	NextCursor      uint64           `json:"next_cursor"`
	Missed          uint64           `json:"missed"`
}

package world

import (
	"context"
	"errors"

	"skyway.city/internal/sim/world/kernel/model"
)

var (
	ErrNoSnapshotSink = errors.New("snapshot sink not configured")
	ErrSnapshotBusy   = errors.New("snapshot sink backpressure")
	ErrNoWorld        = errors.New("world not running")
)

// SnapshotReceipt describes a snapshot handed to the sink on request.
type SnapshotReceipt struct {
	Tick      uint64 `json:"tick"`
	Flights   int    `json:"flights"`
	Parked    int    `json:"parked"`
	Accidents uint64 `json:"accidents"`
}

type snapshotRequest struct {
	reply chan snapshotReply
}

type snapshotReply struct {
	receipt SnapshotReceipt
	err     error
}

// RequestSnapshot asks the loop goroutine to export the last completed tick
// and waits for the answer. Safe from any goroutine.
func (w *World) RequestSnapshot(ctx context.Context) (SnapshotReceipt, error) {
	if w == nil || w.admin == nil {
		return SnapshotReceipt{}, ErrNoWorld
	}
	req := snapshotRequest{reply: make(chan snapshotReply, 1)}
	select {
	case w.admin <- req:
	case <-ctx.Done():
		return SnapshotReceipt{}, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.receipt, r.err
	case <-ctx.Done():
		return SnapshotReceipt{}, ctx.Err()
	}
}

// answerSnapshotRequests runs after a step. One export serves every request
// that arrived during the tick.
func (w *World) answerSnapshotRequests(reqs []snapshotRequest) {
	if len(reqs) == 0 {
		return
	}
	var last uint64
	if cur := w.tick.Load(); cur > 0 {
		last = cur - 1
	}

	out := snapshotReply{receipt: SnapshotReceipt{Tick: last}}
	if w.snapshotSink == nil {
		out.err = ErrNoSnapshotSink
	} else {
		snap := w.ExportSnapshot(last)
		select {
		case w.snapshotSink <- snap:
			out.receipt.Flights = len(snap.Flights)
			out.receipt.Accidents = snap.Counters.AccidentSeq
			for _, f := range snap.Flights {
				if f.Flight.Status == model.StatusParked {
					out.receipt.Parked++
				}
			}
		default:
			out.err = ErrSnapshotBusy
		}
	}

	for _, r := range reqs {
		select {
		case r.reply <- out:
		default:
		}
	}
}

package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingCommands []CommandEnvelope
	var pendingAdmin []snapshotRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case env := <-w.inbox:
			pendingCommands = append(pendingCommands, env)
		case <-ticker.C:
			w.step(pendingCommands)
			w.answerSnapshotRequests(pendingAdmin)
			pendingCommands = pendingCommands[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// StepOnce advances the world by a single tick using the same ordering as
// Run. Commands already queued through Submit are applied first. It is
// intended for deterministic replays and tests; do not mix with Run.
func (w *World) StepOnce(cmds ...Command) (tick uint64, digest string) {
	tick = w.tick.Load()
	var envs []CommandEnvelope
drain:
	for {
		select {
		case env := <-w.inbox:
			envs = append(envs, env)
		default:
			break drain
		}
	}
	for _, c := range cmds {
		envs = append(envs, CommandEnvelope{Cmd: c})
	}
	w.step(envs)
	return tick, w.Metrics().Digest
}

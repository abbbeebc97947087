package world

import (
	"context"
	"time"

	"voxelcore.ai/internal/protocol"
)

// Run owns the chunk buffer until ctx ends, Stop is called or the generator
// pool closes its results. Every exit path saves and drops all sessions.
func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	saveTicker := time.NewTicker(w.cfg.SaveInterval)
	defer saveTicker.Stop()

	results := w.pool.Results()
	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return ctx.Err()
		case <-w.stop:
			w.shutdown()
			return nil
		case req := <-w.join:
			w.handleJoin(req)
		case id := <-w.leave:
			w.handleLeave(id)
		case env := <-w.inbox:
			w.handleMessage(env)
		case raw, ok := <-results:
			if !ok {
				w.logger.Printf("generator results closed; world loop exiting")
				w.shutdown()
				return nil
			}
			w.handleRaw(raw)
		case <-ticker.C:
			w.gameTime.Add(1)
		case <-saveTicker.C:
			if err := w.save(); err != nil {
				w.logger.Printf("warn: save: %v", err)
			}
		}
		w.publishMetrics()
	}
}

func (w *World) shutdown() {
	for _, s := range w.sessions {
		w.kick(s, protocol.ErrShutdown)
	}
	if err := w.save(); err != nil {
		w.logger.Printf("warn: final save: %v", err)
	}
	w.publishMetrics()
}

package world

import (
	"time"

	"voxelcore.ai/internal/protocol"
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

// handleSetBlock applies a client edit through the lighting engine and
// acknowledges it by echoing the applied block to every subscriber of the
// column, the sender included.
func (w *World) handleSetBlock(s *session, m protocol.SetBlock) {
	x, y, z := int(m.X), int(m.Y), int(m.Z)
	if !model.InWorldHeight(z) {
		w.kick(s, protocol.ErrProtoBadRequest)
		return
	}
	p := model.ColumnPosOf(x, y)
	if _, ok := s.subs[p]; !ok {
		w.kick(s, protocol.ErrNotSubscribed)
		return
	}
	b, ok := w.cat.Normalize(m.Block)
	if !ok {
		w.kick(s, protocol.ErrProtoBadRequest)
		return
	}
	if !s.editLimiter.Allow() {
		w.counters.editDrops++
		return
	}
	col := w.buf.Column(p)
	if col == nil || col.Status() < store.StatusStored {
		w.counters.editDrops++
		return
	}

	from := w.buf.GetBlock(x, y, z).WithoutLight()
	touched, ok := w.light.SetBlock(w.buf, x, y, z, b)
	if !ok {
		w.counters.editDrops++
		return
	}
	w.counters.edits++
	w.dirty[p] = struct{}{}

	frame, err := protocol.Encode(protocol.SetBlock{X: m.X, Y: m.Y, Z: m.Z, Block: b})
	if err != nil {
		w.logger.Printf("warn: encode set block: %v", err)
		return
	}
	w.broadcast(p, frame)

	if w.editLogger != nil {
		_ = w.editLogger.WriteEdit(EditEntry{
			Time:     time.Now().UTC().Format(time.RFC3339Nano),
			GameTime: w.gameTime.Load(),
			Session:  s.id.String(),
			Name:     s.name,
			Pos:      [3]int{x, y, z},
			From:     uint32(from),
			To:       uint32(b),
			Touched:  len(touched),
		})
	}
}

package world

import (
	"sort"

	"github.com/google/uuid"

	"voxelcore.ai/internal/protocol"
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

// maxGenRetries bounds how often a failing column is requested again.
const maxGenRetries = 2

type counters struct {
	generated  uint64
	loaded     uint64
	discarded  uint64
	genErrors  uint64
	propagated uint64
	edits      uint64
	editDrops  uint64
	kicks      uint64
}

func sortedPositions(set map[model.ChunkColumnPos]struct{}) []model.ChunkColumnPos {
	out := make([]model.ChunkColumnPos, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})
	return out
}

func (w *World) subscribe(s *session, p model.ChunkColumnPos) {
	s.subs[p] = struct{}{}
	subs := w.subscribers[p]
	if subs == nil {
		subs = map[uuid.UUID]*session{}
		w.subscribers[p] = subs
	}
	subs[s.id] = s

	if col := w.buf.Column(p); col != nil {
		if col.Status() >= store.StatusStored {
			if frame, ok := w.columnFrame(col); ok && !w.send(s, frame) {
				w.kick(s, protocol.ErrSlowClient)
			}
		}
		return
	}
	if w.loadColumn(p) {
		return
	}
	w.requestColumn(p)
}

func (w *World) unsubscribe(s *session, p model.ChunkColumnPos) {
	delete(s.subs, p)
	subs := w.subscribers[p]
	if subs == nil {
		return
	}
	delete(subs, s.id)
	if len(subs) > 0 {
		return
	}
	delete(w.subscribers, p)
	w.releaseColumn(p)
}

// requestColumn places a Requested placeholder and hands the position to the
// generator pool once.
func (w *World) requestColumn(p model.ChunkColumnPos) {
	if _, ok := w.requested[p]; ok {
		return
	}
	w.requested[p] = struct{}{}
	col := store.NewChunkColumn(p)
	col.Advance(store.StatusRequested)
	w.buf.StoreColumn(col)
	w.pool.Request(p)
}

// loadColumn serves p from the superchunk store when it has it.
func (w *World) loadColumn(p model.ChunkColumnPos) bool {
	if w.store == nil {
		return false
	}
	levels, ok := w.store.LoadColumn(p)
	if !ok {
		return false
	}
	col, err := store.DecodeColumn(p, levels)
	if err != nil {
		w.logger.Printf("warn: stored column %v unreadable, regenerating: %v", p, err)
		w.store.DropColumn(p)
		return false
	}
	w.counters.loaded++
	w.storeColumn(col)
	return true
}

func (w *World) handleRaw(raw RawColumn) {
	if _, ok := w.requested[raw.Pos]; !ok {
		w.counters.discarded++
		return
	}
	delete(w.requested, raw.Pos)
	if raw.Err != nil {
		w.logger.Printf("warn: generate %v: %v", raw.Pos, raw.Err)
		w.generationFailed(raw.Pos)
		return
	}
	col, err := store.DecodeColumn(raw.Pos, raw.Levels)
	if err != nil {
		w.logger.Printf("warn: decode generated column %v: %v", raw.Pos, err)
		w.generationFailed(raw.Pos)
		return
	}
	delete(w.genRetries, raw.Pos)
	w.counters.generated++
	w.dirty[raw.Pos] = struct{}{}
	w.storeColumn(col)
}

// generationFailed requests p again while it still has subscribers. After
// maxGenRetries failures the subscriptions are dropped, so the next Subscribe
// for p starts from scratch.
func (w *World) generationFailed(p model.ChunkColumnPos) {
	w.counters.genErrors++
	w.buf.RemoveColumn(p)
	if len(w.subscribers[p]) > 0 && w.genRetries[p] < maxGenRetries {
		w.genRetries[p]++
		w.requestColumn(p)
		return
	}
	delete(w.genRetries, p)
	for _, s := range w.subscribers[p] {
		delete(s.subs, p)
	}
	delete(w.subscribers, p)
	w.logger.Printf("warn: giving up on column %v", p)
}

// storeColumn installs a decoded column, sends it to subscribers and lights
// whatever became ready.
func (w *World) storeColumn(col *store.ChunkColumn) {
	col.ClearLight()
	col.Advance(store.StatusReceived)
	col.Advance(store.StatusStored)
	w.buf.StoreColumn(col)

	if frame, ok := w.columnFrame(col); ok {
		w.broadcast(col.Pos, frame)
	}
	w.sweepPropagate()
}

func (w *World) sweepPropagate() {
	for _, p := range w.buf.Positions() {
		col := w.buf.Column(p)
		if col.Status() != store.StatusStored || !w.buf.AreAllNeighboursStored(p) {
			continue
		}
		w.light.PropagateColumn(w.buf, p)
		col.Advance(store.StatusPropagated)
		w.counters.propagated++
	}
}

// columnFrame encodes col for the wire with its light stripped; clients light
// columns themselves.
func (w *World) columnFrame(col *store.ChunkColumn) ([]byte, bool) {
	levels, err := encodeUnlit(col)
	if err != nil {
		w.logger.Printf("warn: encode column %v: %v", col.Pos, err)
		return nil, false
	}
	frame, err := protocol.Encode(protocol.ChunkColumn{Pos: col.Pos, BlockData: levels})
	if err != nil {
		w.logger.Printf("warn: encode column message %v: %v", col.Pos, err)
		return nil, false
	}
	return frame, true
}

func encodeUnlit(col *store.ChunkColumn) ([][]byte, error) {
	c := col.Clone()
	c.ClearLight()
	return store.EncodeColumn(c)
}

// releaseColumn evicts a column nobody subscribes to, writing it back first
// when it changed.
func (w *World) releaseColumn(p model.ChunkColumnPos) {
	delete(w.genRetries, p)
	if _, ok := w.requested[p]; ok {
		delete(w.requested, p)
		w.buf.RemoveColumn(p)
		return
	}
	col := w.buf.Column(p)
	if col == nil {
		return
	}
	if _, ok := w.dirty[p]; ok {
		if err := w.persist(col); err != nil {
			w.logger.Printf("warn: persist %v: %v", p, err)
		}
		delete(w.dirty, p)
	}
	w.buf.RemoveColumn(p)
}

func (w *World) persist(col *store.ChunkColumn) error {
	if w.store == nil {
		return nil
	}
	levels, err := encodeUnlit(col)
	if err != nil {
		return err
	}
	return w.store.PutColumn(col.Pos, levels)
}

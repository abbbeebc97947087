package worldhandler

import (
	"fmt"

	"voxelcore.ai/internal/protocol"
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

func (h *Handler) receiveColumn(m protocol.ChunkColumn) error {
	cur := h.buf.Column(m.Pos)
	if cur == nil || cur.Status() != store.StatusRequested {
		// Unsubscribed while in flight, or a duplicate.
		h.discarded++
		return nil
	}
	col, err := store.DecodeColumn(m.Pos, m.BlockData)
	if err != nil {
		return fmt.Errorf("chunk column %v: %w", m.Pos, err)
	}
	col.ClearLight()
	col.Advance(store.StatusReceived)
	col.Advance(store.StatusStored)
	h.buf.StoreColumn(col)
	h.emit(StatusChange{Pos: m.Pos, Status: store.StatusStored})
	h.sweep(nil)
	return nil
}

// sweep advances every column whose neighbourhood allows it, refreshes the
// main thread's copy of delivered columns whose light changed, and re-meshes
// meshed ones. Columns are visited in sorted order; there is no work queue.
func (h *Handler) sweep(touched []model.ChunkPos) {
	var ready []*store.ChunkColumn
	promoted := map[model.ChunkColumnPos]bool{}
	for _, p := range h.buf.Positions() {
		col := h.buf.Column(p)
		if col.Status() != store.StatusStored || !h.buf.AreAllNeighboursStored(p) {
			continue
		}
		touched = append(touched, h.light.PropagateColumn(h.buf, p)...)
		col.Advance(store.StatusPropagated)
		ready = append(ready, col)
		promoted[p] = true
	}
	// Clones are taken after the whole pass so they carry light pulled in by
	// columns propagated later in it.
	for _, col := range ready {
		h.emit(ColumnReady{Column: col.Clone()})
		h.emit(StatusChange{Pos: col.Pos, Status: store.StatusPropagated})
	}

	relit := map[model.ChunkColumnPos]bool{}
	for _, cp := range touched {
		p := cp.Column()
		if col := h.buf.Column(p); col != nil && col.Status() >= store.StatusPropagated && !promoted[p] {
			relit[p] = true
		}
	}
	for _, p := range h.buf.Positions() {
		if relit[p] {
			h.emit(LightUpdate{Column: h.buf.Column(p).Clone()})
		}
	}

	for _, p := range h.buf.Positions() {
		col := h.buf.Column(p)
		if col.Status() != store.StatusPropagated || !h.buf.AreAllNeighboursPropagated(p) {
			continue
		}
		h.mesh(p)
		col.Advance(store.StatusMeshed)
		h.emit(StatusChange{Pos: p, Status: store.StatusMeshed})
	}

	for _, p := range h.buf.Positions() {
		if relit[p] && h.buf.Column(p).Status() == store.StatusMeshed {
			h.mesh(p)
		}
	}
}

func (h *Handler) mesh(p model.ChunkColumnPos) {
	if h.mesher == nil {
		return
	}
	h.emit(MeshUpdate{Pos: p, Meshes: h.mesher.MeshColumn(h.buf, p)})
}

// applyEdit installs a server-confirmed block and relights around it.
func (h *Handler) applyEdit(x, y, z int, b model.Block) {
	touched, ok := h.light.SetBlock(h.buf, x, y, z, b)
	if !ok {
		return
	}
	h.emit(BlockUpdate{X: x, Y: y, Z: z, Block: h.buf.GetBlock(x, y, z)})
	h.sweep(touched)
}

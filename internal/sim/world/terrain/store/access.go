package store

import (
	"sort"

	"voxelcore.ai/internal/sim/world/kernel/model"
)

func (b *ChunkBuffer) Len() int { return len(b.columns) }

func (b *ChunkBuffer) Column(p model.ChunkColumnPos) *ChunkColumn {
	return b.columns[p]
}

// StoreColumn inserts col, replacing any column at the same position.
func (b *ChunkBuffer) StoreColumn(col *ChunkColumn) {
	b.columns[col.Pos] = col
}

// RemoveColumn evicts a column. It reports whether one was present.
func (b *ChunkBuffer) RemoveColumn(p model.ChunkColumnPos) bool {
	if _, ok := b.columns[p]; !ok {
		return false
	}
	delete(b.columns, p)
	return true
}

// Positions returns all loaded column positions in a stable order.
func (b *ChunkBuffer) Positions() []model.ChunkColumnPos {
	keys := make([]model.ChunkColumnPos, 0, len(b.columns))
	for k := range b.columns {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		return keys[i].Y < keys[j].Y
	})
	return keys
}

// CountByStatus returns how many columns sit at each status.
func (b *ChunkBuffer) CountByStatus() map[Status]int {
	out := map[Status]int{}
	for _, c := range b.columns {
		out[c.status]++
	}
	return out
}

// Chunk returns the chunk at p, or nil when its column is absent or p.Z is
// outside the world.
func (b *ChunkBuffer) Chunk(p model.ChunkPos) *Chunk {
	col := b.columns[p.Column()]
	if col == nil {
		return nil
	}
	return col.Chunk(int(p.Z))
}

func (b *ChunkBuffer) chunkAt(x, y, z int) *Chunk {
	if !model.InWorldHeight(z) {
		return nil
	}
	return b.Chunk(model.ChunkPosOf(x, y, z))
}

// GetBlock returns the block at world coordinates, or air when absent.
func (b *ChunkBuffer) GetBlock(x, y, z int) model.Block {
	ch := b.chunkAt(x, y, z)
	if ch == nil {
		return model.Air
	}
	return ch.Get(model.Local(x), model.Local(y), model.Local(z))
}

// SetBlock writes a block at world coordinates. It reports false when the
// target chunk is absent or holds no data yet.
func (b *ChunkBuffer) SetBlock(x, y, z int, blk model.Block) bool {
	ch := b.chunkAt(x, y, z)
	if ch == nil || !ch.IsInitialized() {
		return false
	}
	ch.Set(model.Local(x), model.Local(y), model.Local(z), blk)
	return true
}

// IsLoaded reports whether the world position belongs to an initialized chunk.
func (b *ChunkBuffer) IsLoaded(x, y, z int) bool {
	ch := b.chunkAt(x, y, z)
	return ch != nil && ch.IsInitialized()
}

func (b *ChunkBuffer) allNeighboursAtLeast(p model.ChunkColumnPos, s Status) bool {
	for _, q := range p.Neighbourhood() {
		col := b.columns[q]
		if col == nil || col.status < s {
			return false
		}
	}
	return true
}

// AreAllNeighboursStored reports whether the 3x3 neighbourhood of p, p
// included, is at least Stored.
func (b *ChunkBuffer) AreAllNeighboursStored(p model.ChunkColumnPos) bool {
	return b.allNeighboursAtLeast(p, StatusStored)
}

// AreAllNeighboursPropagated reports whether the 3x3 neighbourhood of p, p
// included, is at least Propagated.
func (b *ChunkBuffer) AreAllNeighboursPropagated(p model.ChunkColumnPos) bool {
	return b.allNeighboursAtLeast(p, StatusPropagated)
}

// TopZ returns the z of the highest non-air block in the (x,y) line.
func (b *ChunkBuffer) TopZ(x, y int) (int, bool) {
	col := b.columns[model.ColumnPosOf(x, y)]
	if col == nil {
		return 0, false
	}
	lx, ly := model.Local(x), model.Local(y)
	for cz := model.WorldHeightChunks - 1; cz >= 0; cz-- {
		ch := &col.chunks[cz]
		if !ch.IsInitialized() {
			continue
		}
		if sb, ok := ch.SolidBlock(); ok && sb.IsAir() {
			continue
		}
		for lz := model.ChunkSize - 1; lz >= 0; lz-- {
			if !ch.Get(lx, ly, lz).IsAir() {
				return cz<<model.ChunkSizeBits | lz, true
			}
		}
	}
	return 0, false
}

package main

import (
	"fmt"
	"sort"

	persistlog "voxelcore.ai/internal/persistence/log"
	"voxelcore.ai/internal/persistence/superchunk"
	"voxelcore.ai/internal/sim/world"
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

type auditRec struct {
	Seq   uint64
	Entry world.EditEntry
}

// readAudit returns the logged edits in [since, to] inside the box, newest
// first. Entries with the same gametime keep reverse log order.
func readAudit(worldDir string, since, to uint64, min, max [3]int) ([]auditRec, error) {
	files, err := persistlog.EditFiles(worldDir)
	if err != nil {
		return nil, err
	}
	var out []auditRec
	var seq uint64
	for _, path := range files {
		entries, err := persistlog.ReadEdits(path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			seq++
			if e.GameTime < since || e.GameTime > to {
				continue
			}
			if !withinAABB(e.Pos, min, max) {
				continue
			}
			out = append(out, auditRec{Seq: seq, Entry: e})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entry.GameTime != out[j].Entry.GameTime {
			return out[i].Entry.GameTime > out[j].Entry.GameTime
		}
		return out[i].Seq > out[j].Seq
	})
	return out, nil
}

// applyRollback writes each record's previous block back into the saved
// columns. Records are applied in the order given, so newest-first input
// leaves the oldest From in place. Columns never saved are skipped.
func applyRollback(sc *superchunk.Store, recs []auditRec) (applied, skipped int, err error) {
	cols := map[model.ChunkColumnPos]*store.ChunkColumn{}
	for _, r := range recs {
		x, y, z := r.Entry.Pos[0], r.Entry.Pos[1], r.Entry.Pos[2]
		if !model.InWorldHeight(z) {
			skipped++
			continue
		}
		p := model.ColumnPosOf(x, y)
		col := cols[p]
		if col == nil {
			levels, ok := sc.LoadColumn(p)
			if !ok {
				skipped++
				continue
			}
			col, err = store.DecodeColumn(p, levels)
			if err != nil {
				return applied, skipped, fmt.Errorf("column %v: %w", p, err)
			}
			cols[p] = col
		}
		ch := col.Chunk(z >> model.ChunkSizeBits)
		ch.Set(model.Local(x), model.Local(y), model.Local(z), model.Block(r.Entry.From).WithoutLight())
		applied++
	}

	positions := make([]model.ChunkColumnPos, 0, len(cols))
	for p := range cols {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].X != positions[j].X {
			return positions[i].X < positions[j].X
		}
		return positions[i].Y < positions[j].Y
	})
	for _, p := range positions {
		levels, err := store.EncodeColumn(cols[p])
		if err != nil {
			return applied, skipped, fmt.Errorf("column %v: %w", p, err)
		}
		if err := sc.PutColumn(p, levels); err != nil {
			return applied, skipped, err
		}
	}
	if _, err := sc.Flush(); err != nil {
		return applied, skipped, err
	}
	return applied, skipped, nil
}

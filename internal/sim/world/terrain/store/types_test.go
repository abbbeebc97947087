package store

import (
	"testing"

	"voxelcore.ai/internal/sim/world/kernel/model"
)

var stone = model.NewBlock(1, true, false)

func TestSolidChunk_ReadsEverywhere(t *testing.T) {
	b := stone.WithSunlight(3)
	ch := NewSolidChunk(b)
	for lz := 0; lz < model.ChunkSize; lz++ {
		for ly := 0; ly < model.ChunkSize; ly++ {
			for lx := 0; lx < model.ChunkSize; lx++ {
				if got := ch.Get(lx, ly, lz); got != b {
					t.Fatalf("(%d,%d,%d): got %#x want %#x", lx, ly, lz, got, b)
				}
			}
		}
	}
}

func TestSolidChunk_PromotesOnDifferingWrite(t *testing.T) {
	ch := NewSolidChunk(model.Air.WithSunlight(15))

	ch.Set(1, 2, 3, model.Air.WithSunlight(15))
	if _, ok := ch.SolidBlock(); !ok {
		t.Fatalf("equal write must not promote")
	}

	ch.Set(1, 2, 3, stone)
	if _, ok := ch.SolidBlock(); ok {
		t.Fatalf("differing write must promote")
	}
	if got := ch.Get(1, 2, 3); got != stone {
		t.Fatalf("written cell: got %#x", got)
	}
	if got := ch.Get(0, 0, 0); got != model.Air.WithSunlight(15) {
		t.Fatalf("promotion lost the solid value: got %#x", got)
	}

	// Writing the old value back keeps the chunk dense.
	ch.Set(1, 2, 3, model.Air.WithSunlight(15))
	if _, ok := ch.SolidBlock(); ok {
		t.Fatalf("promotion must be one-way")
	}
}

func TestUninitializedChunk(t *testing.T) {
	var ch Chunk
	if ch.IsInitialized() {
		t.Fatalf("zero chunk must be uninitialized")
	}
	if ch.Get(4, 4, 4) != model.Air {
		t.Fatalf("uninitialized chunk must read as air")
	}
	ch.Set(4, 4, 4, stone)
	if !ch.IsInitialized() || ch.Get(4, 4, 4) != stone || ch.Get(0, 0, 0) != model.Air {
		t.Fatalf("write into uninitialized chunk failed")
	}
}

func TestChunkFromBlocks_CollapsesUniform(t *testing.T) {
	blocks := make([]model.Block, model.ChunkVolume)
	for i := range blocks {
		blocks[i] = stone
	}
	ch := ChunkFromBlocks(blocks)
	if b, ok := ch.SolidBlock(); !ok || b != stone {
		t.Fatalf("expected solid stone chunk")
	}
	blocks[100] = model.Air
	ch = ChunkFromBlocks(blocks)
	if _, ok := ch.SolidBlock(); ok {
		t.Fatalf("expected dense chunk")
	}
	blocks[100] = stone
	if ch.Get(100&15, (100>>4)&15, 100>>8) != model.Air {
		t.Fatalf("ChunkFromBlocks must copy its input")
	}
}

func TestColumn_AdvanceIsMonotonic(t *testing.T) {
	col := NewChunkColumn(model.ChunkColumnPos{})
	if !col.Advance(StatusRequested) || !col.Advance(StatusStored) {
		t.Fatalf("forward transitions rejected")
	}
	if col.Advance(StatusReceived) || col.Advance(StatusStored) {
		t.Fatalf("backward transition accepted")
	}
	if col.Status() != StatusStored {
		t.Fatalf("status: got %v", col.Status())
	}
}

func TestColumn_CloneIsDeep(t *testing.T) {
	col := NewChunkColumn(model.ChunkColumnPos{X: 1})
	col.Chunk(0).Set(0, 0, 0, stone)
	cp := col.Clone()
	col.Chunk(0).Set(0, 0, 0, model.Air)
	if cp.Chunk(0).Get(0, 0, 0) != stone {
		t.Fatalf("clone shares chunk storage")
	}
}

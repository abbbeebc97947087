package store

import (
	"fmt"

	"voxelcore.ai/internal/sim/encoding"
	"voxelcore.ai/internal/sim/world/kernel/model"
)

// EncodeChunk returns the RLE form of a chunk. Uninitialized chunks encode as
// solid air.
func EncodeChunk(c *Chunk) ([]byte, error) {
	switch c.state {
	case chunkUninitialized:
		return encoding.EncodeSolid(model.Air), nil
	case chunkSolid:
		return encoding.EncodeSolid(c.solid), nil
	default:
		return encoding.EncodeRLE(c.blocks)
	}
}

// DecodeChunk rebuilds a chunk. The single-run form stays solid.
func DecodeChunk(data []byte) (Chunk, error) {
	if b, ok := encoding.SolidRLE(data); ok {
		return NewSolidChunk(b), nil
	}
	blocks, err := encoding.DecodeRLE(data, model.ChunkVolume)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{state: chunkNormal, blocks: blocks}, nil
}

// EncodeColumn returns one RLE buffer per height level, bottom first.
func EncodeColumn(col *ChunkColumn) ([][]byte, error) {
	out := make([][]byte, model.WorldHeightChunks)
	for z := range col.chunks {
		b, err := EncodeChunk(&col.chunks[z])
		if err != nil {
			return nil, fmt.Errorf("column %v level %d: %w", col.Pos, z, err)
		}
		out[z] = b
	}
	return out, nil
}

// DecodeColumn rebuilds a column from exactly WorldHeightChunks RLE buffers.
// The returned column has status New.
func DecodeColumn(pos model.ChunkColumnPos, data [][]byte) (*ChunkColumn, error) {
	if len(data) != model.WorldHeightChunks {
		return nil, fmt.Errorf("%w: column %v has %d levels, want %d", encoding.ErrMalformed, pos, len(data), model.WorldHeightChunks)
	}
	col := NewChunkColumn(pos)
	for z, d := range data {
		ch, err := DecodeChunk(d)
		if err != nil {
			return nil, fmt.Errorf("column %v level %d: %w", pos, z, err)
		}
		col.chunks[z] = ch
	}
	return col, nil
}

// ColumnFromLines assembles a column from one block line per (x,y), each
// WorldHeightBlocks long and ordered bottom to top.
func ColumnFromLines(pos model.ChunkColumnPos, line func(wx, wy int) []model.Block) (*ChunkColumn, error) {
	ox, oy := pos.Origin()
	var levels [model.WorldHeightChunks][]model.Block
	for z := range levels {
		levels[z] = make([]model.Block, model.ChunkVolume)
	}
	for ly := 0; ly < model.ChunkSize; ly++ {
		for lx := 0; lx < model.ChunkSize; lx++ {
			blocks := line(ox+lx, oy+ly)
			if len(blocks) != model.WorldHeightBlocks {
				return nil, fmt.Errorf("line (%d,%d): got %d blocks, want %d", ox+lx, oy+ly, len(blocks), model.WorldHeightBlocks)
			}
			for z, b := range blocks {
				levels[z>>model.ChunkSizeBits][chunkIndex(lx, ly, z&model.ChunkMask)] = b
			}
		}
	}
	col := NewChunkColumn(pos)
	for z := range levels {
		col.chunks[z] = ChunkFromBlocks(levels[z])
	}
	return col, nil
}

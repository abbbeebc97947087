package store

import (
	"voxelcore.ai/internal/sim/world/kernel/model"
)

type chunkState uint8

const (
	chunkUninitialized chunkState = iota
	chunkSolid
	chunkNormal
)

// Chunk is a ChunkSize^3 block array. It starts uninitialized, may hold a
// single repeated value (solid), and is promoted to a dense array the first
// time a differing value is written. Promotion is one-way.
type Chunk struct {
	state  chunkState
	solid  model.Block
	blocks []model.Block // len = ChunkVolume when state == chunkNormal
}

// NewSolidChunk returns a chunk where every cell reads as b.
func NewSolidChunk(b model.Block) Chunk {
	return Chunk{state: chunkSolid, solid: b}
}

// ChunkFromBlocks builds a chunk from a dense array, collapsing it to the
// solid form when every value is equal. blocks is copied.
func ChunkFromBlocks(blocks []model.Block) Chunk {
	if len(blocks) != model.ChunkVolume {
		return Chunk{}
	}
	first := blocks[0]
	uniform := true
	for _, b := range blocks[1:] {
		if b != first {
			uniform = false
			break
		}
	}
	if uniform {
		return NewSolidChunk(first)
	}
	dense := make([]model.Block, model.ChunkVolume)
	copy(dense, blocks)
	return Chunk{state: chunkNormal, blocks: dense}
}

func chunkIndex(lx, ly, lz int) int {
	return lx | ly<<model.ChunkSizeBits | lz<<(2*model.ChunkSizeBits)
}

func (c *Chunk) IsInitialized() bool { return c.state != chunkUninitialized }

// SolidBlock returns the repeated value of a solid chunk.
func (c *Chunk) SolidBlock() (model.Block, bool) {
	if c.state != chunkSolid {
		return 0, false
	}
	return c.solid, true
}

func (c *Chunk) Get(lx, ly, lz int) model.Block {
	switch c.state {
	case chunkSolid:
		return c.solid
	case chunkNormal:
		return c.blocks[chunkIndex(lx, ly, lz)]
	default:
		return model.Air
	}
}

// Set writes a block. Writing into an uninitialized chunk initializes it as air.
func (c *Chunk) Set(lx, ly, lz int, b model.Block) {
	switch c.state {
	case chunkUninitialized:
		c.promote(model.Air)
	case chunkSolid:
		if c.solid == b {
			return
		}
		c.promote(c.solid)
	}
	c.blocks[chunkIndex(lx, ly, lz)] = b
}

// promote turns the chunk into a dense array filled with fill, including its
// light bits, so reads before and after promotion agree.
func (c *Chunk) promote(fill model.Block) {
	c.blocks = make([]model.Block, model.ChunkVolume)
	for i := range c.blocks {
		c.blocks[i] = fill
	}
	c.state = chunkNormal
	c.solid = 0
}

// Blocks returns a dense copy of the chunk contents.
func (c *Chunk) Blocks() []model.Block {
	out := make([]model.Block, model.ChunkVolume)
	switch c.state {
	case chunkNormal:
		copy(out, c.blocks)
	default:
		fill := c.Get(0, 0, 0)
		for i := range out {
			out[i] = fill
		}
	}
	return out
}

func (c *Chunk) clone() Chunk {
	out := *c
	if c.state == chunkNormal {
		out.blocks = make([]model.Block, len(c.blocks))
		copy(out.blocks, c.blocks)
	}
	return out
}

// clearLight zeroes both light channels in every cell.
func (c *Chunk) clearLight() {
	switch c.state {
	case chunkSolid:
		c.solid = c.solid.WithoutLight()
	case chunkNormal:
		for i, b := range c.blocks {
			c.blocks[i] = b.WithoutLight()
		}
	}
}

// Status is a column's position in the pipeline. It only moves forward.
type Status uint8

const (
	StatusNew Status = iota
	StatusRequested
	StatusReceived
	StatusStored
	StatusPropagated
	StatusMeshed
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusRequested:
		return "REQUESTED"
	case StatusReceived:
		return "RECEIVED"
	case StatusStored:
		return "STORED"
	case StatusPropagated:
		return "PROPAGATED"
	case StatusMeshed:
		return "MESHED"
	default:
		return "UNKNOWN"
	}
}

// ChunkColumn is the vertical stack of chunks at one column position.
type ChunkColumn struct {
	Pos model.ChunkColumnPos

	status Status
	chunks [model.WorldHeightChunks]Chunk
}

func NewChunkColumn(pos model.ChunkColumnPos) *ChunkColumn {
	return &ChunkColumn{Pos: pos}
}

func (c *ChunkColumn) Status() Status { return c.status }

// Advance moves the column forward to s. It refuses to move backwards.
func (c *ChunkColumn) Advance(s Status) bool {
	if s <= c.status {
		return false
	}
	c.status = s
	return true
}

// Chunk returns the chunk at height level z, or nil when z is out of range.
func (c *ChunkColumn) Chunk(z int) *Chunk {
	if z < 0 || z >= model.WorldHeightChunks {
		return nil
	}
	return &c.chunks[z]
}

// IsInitialized reports whether every level holds data.
func (c *ChunkColumn) IsInitialized() bool {
	for i := range c.chunks {
		if !c.chunks[i].IsInitialized() {
			return false
		}
	}
	return true
}

func (c *ChunkColumn) Clone() *ChunkColumn {
	out := &ChunkColumn{Pos: c.Pos, status: c.status}
	for i := range c.chunks {
		out.chunks[i] = c.chunks[i].clone()
	}
	return out
}

// ClearLight drops every stored light value so it can be recomputed.
func (c *ChunkColumn) ClearLight() {
	for i := range c.chunks {
		c.chunks[i].clearLight()
	}
}

// ChunkBuffer owns every loaded column. It is not safe for concurrent use; a
// single goroutine owns it.
type ChunkBuffer struct {
	columns map[model.ChunkColumnPos]*ChunkColumn
}

func NewChunkBuffer() *ChunkBuffer {
	return &ChunkBuffer{
		columns: map[model.ChunkColumnPos]*ChunkColumn{},
	}
}

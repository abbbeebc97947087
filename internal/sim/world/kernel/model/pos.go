package model

import "fmt"

const (
	ChunkSizeBits = 4
	ChunkSize     = 1 << ChunkSizeBits
	ChunkMask     = ChunkSize - 1
	ChunkArea     = ChunkSize * ChunkSize
	ChunkVolume   = ChunkSize * ChunkSize * ChunkSize

	WorldHeightChunks = 8
	WorldHeightBlocks = WorldHeightChunks * ChunkSize
)

// ChunkPos addresses a chunk in chunk-grid units. Z is vertical.
type ChunkPos struct {
	X, Y, Z int16
}

// ChunkColumnPos addresses a vertical stack of chunks.
type ChunkColumnPos struct {
	X, Y int16
}

func (p ChunkPos) Column() ChunkColumnPos { return ChunkColumnPos{X: p.X, Y: p.Y} }

func (p ChunkPos) String() string { return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z) }

// Origin returns the world coordinate of the chunk's lowest corner.
func (p ChunkPos) Origin() (x, y, z int) {
	return int(p.X) << ChunkSizeBits, int(p.Y) << ChunkSizeBits, int(p.Z) << ChunkSizeBits
}

func (p ChunkColumnPos) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

func (p ChunkColumnPos) Chunk(z int) ChunkPos { return ChunkPos{X: p.X, Y: p.Y, Z: int16(z)} }

// Origin returns the world x,y of the column's lowest corner.
func (p ChunkColumnPos) Origin() (x, y int) {
	return int(p.X) << ChunkSizeBits, int(p.Y) << ChunkSizeBits
}

// Add offsets a column position by whole columns.
func (p ChunkColumnPos) Add(dx, dy int) ChunkColumnPos {
	return ChunkColumnPos{X: p.X + int16(dx), Y: p.Y + int16(dy)}
}

// Neighbourhood returns the 3x3 grid centred on p, p included.
func (p ChunkColumnPos) Neighbourhood() [9]ChunkColumnPos {
	var out [9]ChunkColumnPos
	i := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			out[i] = p.Add(dx, dy)
			i++
		}
	}
	return out
}

// ChebyshevDistance is the ring distance between two columns.
func (p ChunkColumnPos) ChebyshevDistance(o ChunkColumnPos) int {
	dx := absInt(int(p.X) - int(o.X))
	dy := absInt(int(p.Y) - int(o.Y))
	if dx > dy {
		return dx
	}
	return dy
}

func ChunkPosOf(x, y, z int) ChunkPos {
	return ChunkPos{
		X: int16(x >> ChunkSizeBits),
		Y: int16(y >> ChunkSizeBits),
		Z: int16(z >> ChunkSizeBits),
	}
}

func ColumnPosOf(x, y int) ChunkColumnPos {
	return ChunkColumnPos{X: int16(x >> ChunkSizeBits), Y: int16(y >> ChunkSizeBits)}
}

// Local returns the in-chunk coordinate of a world coordinate.
func Local(v int) int { return v & ChunkMask }

func InWorldHeight(z int) bool { return z >= 0 && z < WorldHeightBlocks }

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

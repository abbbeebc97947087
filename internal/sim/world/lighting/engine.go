// Package lighting computes block light and sunlight over a ChunkBuffer with
// breadth-first flood fills. An Engine is owned by the goroutine that owns the
// buffer and is not safe for concurrent use.
package lighting

import (
	"sort"

	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

// KindInfo describes the light behaviour of block kinds.
type KindInfo interface {
	Emission(kind uint16) uint8
	IsWater(kind uint16) bool
}

type channel uint8

const (
	blockLight channel = iota
	sunlight
)

type node struct {
	x, y, z int
}

type removal struct {
	x, y, z int
	level   uint8
}

type offset struct{ dx, dy, dz int }

var faces = [6]offset{
	{1, 0, 0}, {-1, 0, 0},
	{0, 1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
}

type Engine struct {
	kinds KindInfo

	queue   []node
	removed []removal
	touched map[model.ChunkPos]struct{}
}

func New(kinds KindInfo) *Engine {
	return &Engine{
		kinds:   kinds,
		queue:   make([]node, 0, 1024),
		removed: make([]removal, 0, 256),
		touched: map[model.ChunkPos]struct{}{},
	}
}

func lightOf(b model.Block, ch channel) uint8 {
	if ch == sunlight {
		return b.Sunlight()
	}
	return b.BlockLight()
}

func withLight(b model.Block, ch channel, l uint8) model.Block {
	if ch == sunlight {
		return b.WithSunlight(l)
	}
	return b.WithBlockLight(l)
}

// attenuate returns the level that light at level reaches in dst after one
// step. Sunlight keeps full strength going straight down through non-water
// blocks and is halved on entering water.
func (e *Engine) attenuate(ch channel, level uint8, o offset, dst model.Block) uint8 {
	if level == 0 {
		return 0
	}
	if ch == sunlight {
		if e.kinds.IsWater(dst.Kind()) {
			return level / 2
		}
		if o.dz == -1 && level == model.MaxLight {
			return level
		}
	}
	return level - 1
}

func (e *Engine) emission(b model.Block) uint8 {
	if e.kinds == nil {
		return 0
	}
	return e.kinds.Emission(b.Kind())
}

// setLight writes one light channel and records the chunk as touched. It
// reports false when the position holds no data.
func (e *Engine) setLight(buf *store.ChunkBuffer, x, y, z int, ch channel, l uint8) bool {
	b := buf.GetBlock(x, y, z)
	if lightOf(b, ch) == l {
		return buf.IsLoaded(x, y, z)
	}
	if !buf.SetBlock(x, y, z, withLight(b, ch, l)) {
		return false
	}
	e.touched[model.ChunkPosOf(x, y, z)] = struct{}{}
	return true
}

func (e *Engine) resetTouched() {
	for k := range e.touched {
		delete(e.touched, k)
	}
}

func (e *Engine) touchedList() []model.ChunkPos {
	out := make([]model.ChunkPos, 0, len(e.touched))
	for k := range e.touched {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return out
}

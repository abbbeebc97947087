package lighting

import (
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

// SetBlock replaces the block at (x,y,z) and repairs the light around it.
// Light fed by the old block is removed before the new value is written, then
// the new block's emission and its neighbours' light flow back in. It returns
// the chunks whose contents changed, or false when the position holds no data.
func (e *Engine) SetBlock(buf *store.ChunkBuffer, x, y, z int, b model.Block) ([]model.ChunkPos, bool) {
	e.resetTouched()
	if !buf.IsLoaded(x, y, z) {
		return nil, false
	}

	e.removeAt(buf, x, y, z, blockLight)
	blockSeeds := append([]node(nil), e.queue...)
	e.queue = e.queue[:0]
	e.removeAt(buf, x, y, z, sunlight)
	sunSeeds := append([]node(nil), e.queue...)
	e.queue = e.queue[:0]

	b = b.WithoutLight()
	if em := e.emission(b); em > 0 {
		b = b.WithBlockLight(em)
		blockSeeds = append(blockSeeds, node{x: x, y: y, z: z})
	}
	if b.IsTransparent() && z == model.WorldHeightBlocks-1 {
		if sun := e.attenuate(sunlight, model.MaxLight, offset{dz: -1}, b); sun > 0 {
			b = b.WithSunlight(sun)
			sunSeeds = append(sunSeeds, node{x: x, y: y, z: z})
		}
	}
	buf.SetBlock(x, y, z, b)
	e.touched[model.ChunkPosOf(x, y, z)] = struct{}{}

	if b.IsTransparent() {
		for _, o := range faces {
			nz := z + o.dz
			if !model.InWorldHeight(nz) {
				continue
			}
			blockSeeds = append(blockSeeds, node{x: x + o.dx, y: y + o.dy, z: nz})
			sunSeeds = append(sunSeeds, node{x: x + o.dx, y: y + o.dy, z: nz})
		}
	}

	e.queue = append(e.queue, blockSeeds...)
	e.flood(buf, blockLight)
	e.queue = append(e.queue, sunSeeds...)
	e.flood(buf, sunlight)
	return e.touchedList(), true
}

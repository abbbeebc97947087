package lighting

import (
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

// PropagateColumnSunlight casts sunlight straight down every (x,y) line of a
// column. A line stops at its first opaque block or once the light runs out.
func (e *Engine) PropagateColumnSunlight(buf *store.ChunkBuffer, p model.ChunkColumnPos) {
	col := buf.Column(p)
	if col == nil {
		return
	}
	ox, oy := p.Origin()
	down := offset{dz: -1}
	for ly := 0; ly < model.ChunkSize; ly++ {
		for lx := 0; lx < model.ChunkSize; lx++ {
			x, y := ox+lx, oy+ly
			level := model.MaxLight
			for z := model.WorldHeightBlocks - 1; z >= 0; z-- {
				b := buf.GetBlock(x, y, z)
				if !b.IsTransparent() {
					break
				}
				level = e.attenuate(sunlight, level, down, b)
				if level == 0 {
					break
				}
				if level > b.Sunlight() {
					e.setLight(buf, x, y, z, sunlight, level)
				}
			}
		}
	}
}

// PropagateChunkLightAndSunlight floods block light from every emitter in the
// chunk and sunlight from every cell that can still spread it.
func (e *Engine) PropagateChunkLightAndSunlight(buf *store.ChunkBuffer, cp model.ChunkPos) {
	ch := buf.Chunk(cp)
	if ch == nil || !ch.IsInitialized() {
		return
	}
	ox, oy, oz := cp.Origin()

	if sb, ok := ch.SolidBlock(); !ok || e.emission(sb) > 0 {
		for lz := 0; lz < model.ChunkSize; lz++ {
			for ly := 0; ly < model.ChunkSize; ly++ {
				for lx := 0; lx < model.ChunkSize; lx++ {
					b := ch.Get(lx, ly, lz)
					em := e.emission(b)
					if em == 0 {
						continue
					}
					if em > b.BlockLight() {
						e.setLight(buf, ox+lx, oy+ly, oz+lz, blockLight, em)
					}
					e.seed(ox+lx, oy+ly, oz+lz)
				}
			}
		}
		e.flood(buf, blockLight)
	}

	for lz := 0; lz < model.ChunkSize; lz++ {
		for ly := 0; ly < model.ChunkSize; ly++ {
			for lx := 0; lx < model.ChunkSize; lx++ {
				if ch.Get(lx, ly, lz).Sunlight() > 1 {
					e.seed(ox+lx, oy+ly, oz+lz)
				}
			}
		}
	}
	e.flood(buf, sunlight)
}

// PropagateColumn lights a freshly stored column: sunlight, every chunk's
// own sources, and whatever the neighbouring columns already carry across
// the shared faces. It returns the chunks whose light changed, neighbours
// included.
func (e *Engine) PropagateColumn(buf *store.ChunkBuffer, p model.ChunkColumnPos) []model.ChunkPos {
	e.resetTouched()
	if buf.Column(p) == nil {
		return nil
	}
	e.PropagateColumnSunlight(buf, p)
	for z := 0; z < model.WorldHeightChunks; z++ {
		e.PropagateChunkLightAndSunlight(buf, p.Chunk(z))
	}
	for _, ch := range [...]channel{blockLight, sunlight} {
		e.seedBorder(buf, p, ch)
		e.flood(buf, ch)
	}
	return e.touchedList()
}

// seedBorder queues the lit cells of the neighbouring columns that touch p.
func (e *Engine) seedBorder(buf *store.ChunkBuffer, p model.ChunkColumnPos, ch channel) {
	ox, oy := p.Origin()
	for z := 0; z < model.WorldHeightBlocks; z++ {
		for i := 0; i < model.ChunkSize; i++ {
			for _, c := range [4][2]int{
				{ox - 1, oy + i},
				{ox + model.ChunkSize, oy + i},
				{ox + i, oy - 1},
				{ox + i, oy + model.ChunkSize},
			} {
				if lightOf(buf.GetBlock(c[0], c[1], z), ch) > 1 {
					e.seed(c[0], c[1], z)
				}
			}
		}
	}
}

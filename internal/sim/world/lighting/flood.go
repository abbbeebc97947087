package lighting

import (
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

func (e *Engine) seed(x, y, z int) {
	e.queue = append(e.queue, node{x: x, y: y, z: z})
}

// flood drains the propagation queue for one channel. A cell's level is read
// from the buffer when it is dequeued, so stale entries cost one lookup.
func (e *Engine) flood(buf *store.ChunkBuffer, ch channel) {
	for head := 0; head < len(e.queue); head++ {
		n := e.queue[head]
		level := lightOf(buf.GetBlock(n.x, n.y, n.z), ch)
		if level <= 1 {
			continue
		}
		for _, o := range faces {
			nx, ny, nz := n.x+o.dx, n.y+o.dy, n.z+o.dz
			if !model.InWorldHeight(nz) {
				continue
			}
			nb := buf.GetBlock(nx, ny, nz)
			if !nb.IsTransparent() {
				continue
			}
			l := e.attenuate(ch, level, o, nb)
			if l <= lightOf(nb, ch) {
				continue
			}
			if e.setLight(buf, nx, ny, nz, ch, l) {
				e.queue = append(e.queue, node{x: nx, y: ny, z: nz})
			}
		}
	}
	e.queue = e.queue[:0]
}

// remove clears the light that flowed out of the cells queued in e.removed.
// Neighbours that could not have been lit by a cleared cell are kept and
// queued as seeds, so a following flood restores light from surviving
// sources. Cleared emitters get their own emission back.
func (e *Engine) remove(buf *store.ChunkBuffer, ch channel) {
	for head := 0; head < len(e.removed); head++ {
		r := e.removed[head]
		for _, o := range faces {
			nx, ny, nz := r.x+o.dx, r.y+o.dy, r.z+o.dz
			if !model.InWorldHeight(nz) {
				continue
			}
			nb := buf.GetBlock(nx, ny, nz)
			cur := lightOf(nb, ch)
			if cur == 0 {
				continue
			}
			if !nb.IsTransparent() {
				// Opaque cells only carry their own emission.
				e.seed(nx, ny, nz)
				continue
			}
			if cur > e.attenuate(ch, r.level, o, nb) {
				e.seed(nx, ny, nz)
				continue
			}
			if !e.setLight(buf, nx, ny, nz, ch, 0) {
				continue
			}
			e.removed = append(e.removed, removal{x: nx, y: ny, z: nz, level: cur})
			if ch == blockLight {
				if em := e.emission(nb); em > 0 {
					e.setLight(buf, nx, ny, nz, ch, em)
					e.seed(nx, ny, nz)
				}
			}
		}
	}
	e.removed = e.removed[:0]
}

// removeAt clears the light of one channel at a cell and everything it fed.
// The surviving light is left queued for flood.
func (e *Engine) removeAt(buf *store.ChunkBuffer, x, y, z int, ch channel) {
	level := lightOf(buf.GetBlock(x, y, z), ch)
	if level == 0 {
		return
	}
	if !e.setLight(buf, x, y, z, ch, 0) {
		return
	}
	e.removed = append(e.removed, removal{x: x, y: y, z: z, level: level})
	e.remove(buf, ch)
}

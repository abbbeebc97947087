// Package raycast answers line-of-sight and collision queries against a
// block grid.
package raycast

import (
	"log"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"voxelcore.ai/internal/sim/world/kernel/model"
)

// BlockSource is the read side of a chunk buffer.
type BlockSource interface {
	GetBlock(x, y, z int) model.Block
}

type Hit struct {
	X, Y, Z  int
	Normal   [3]int // face entered through; zero when the ray starts inside
	Block    model.Block
	Distance float32
}

// Place returns the cell in front of the hit face, where a new block would go.
func (h Hit) Place() (x, y, z int) {
	return h.X + h.Normal[0], h.Y + h.Normal[1], h.Z + h.Normal[2]
}

func floor(v float32) int { return int(math.Floor(float64(v))) }

// Raycast walks the grid cells along dir from origin (Amanatides-Woo) and
// returns the first solid block within maxDist.
func Raycast(src BlockSource, origin, dir mgl32.Vec3, maxDist float32) (Hit, bool) {
	if dir.Len() == 0 || maxDist <= 0 {
		return Hit{}, false
	}
	dir = dir.Normalize()

	cell := [3]int{floor(origin[0]), floor(origin[1]), floor(origin[2])}
	var step [3]int
	var tMax, tDelta [3]float32
	for i := 0; i < 3; i++ {
		switch {
		case dir[i] > 0:
			step[i] = 1
			tDelta[i] = 1 / dir[i]
			tMax[i] = (float32(cell[i]+1) - origin[i]) / dir[i]
		case dir[i] < 0:
			step[i] = -1
			tDelta[i] = -1 / dir[i]
			tMax[i] = (origin[i] - float32(cell[i])) / -dir[i]
		default:
			tDelta[i] = float32(math.Inf(1))
			tMax[i] = float32(math.Inf(1))
		}
	}

	var normal [3]int
	t := float32(0)
	for t <= maxDist {
		if model.InWorldHeight(cell[2]) {
			if b := src.GetBlock(cell[0], cell[1], cell[2]); b.IsSolid() {
				return Hit{X: cell[0], Y: cell[1], Z: cell[2], Normal: normal, Block: b, Distance: t}, true
			}
		}
		axis := 0
		if tMax[1] < tMax[axis] {
			axis = 1
		}
		if tMax[2] < tMax[axis] {
			axis = 2
		}
		t = tMax[axis]
		tMax[axis] += tDelta[axis]
		cell[axis] += step[axis]
		normal = [3]int{}
		normal[axis] = -step[axis]
	}
	return Hit{}, false
}

// AABB is an axis-aligned box in world units.
type AABB struct {
	Min, Max mgl32.Vec3
}

// BoxAt returns a box of the given size whose bottom centre is at feet.
func BoxAt(feet mgl32.Vec3, width, height float32) AABB {
	h := width / 2
	return AABB{
		Min: mgl32.Vec3{feet[0] - h, feet[1] - h, feet[2]},
		Max: mgl32.Vec3{feet[0] + h, feet[1] + h, feet[2] + height},
	}
}

func (a AABB) Translate(v mgl32.Vec3) AABB {
	return AABB{Min: a.Min.Add(v), Max: a.Max.Add(v)}
}

const epsilon = 1e-4

// cells returns the inclusive grid range the box overlaps.
func (a AABB) cells() (lo, hi [3]int) {
	for i := 0; i < 3; i++ {
		lo[i] = floor(a.Min[i])
		hi[i] = floor(a.Max[i] - epsilon)
	}
	return lo, hi
}

// Collides reports whether any solid block overlaps the box.
func Collides(src BlockSource, box AABB) bool {
	lo, hi := box.cells()
	for z := lo[2]; z <= hi[2]; z++ {
		if !model.InWorldHeight(z) {
			continue
		}
		for y := lo[1]; y <= hi[1]; y++ {
			for x := lo[0]; x <= hi[0]; x++ {
				if src.GetBlock(x, y, z).IsSolid() {
					return true
				}
			}
		}
	}
	return false
}

// Unembed lifts a box that is stuck inside terrain one block at a time until
// it is clear, logging a warning. It reports whether the box had to move.
func Unembed(src BlockSource, box AABB, logger *log.Logger) (AABB, bool) {
	if !Collides(src, box) {
		return box, false
	}
	start := box.Min
	for i := 0; i < model.WorldHeightBlocks && Collides(src, box); i++ {
		lift := float32(math.Floor(float64(box.Min[2]))+1) - box.Min[2]
		box = box.Translate(mgl32.Vec3{0, 0, lift})
	}
	if logger != nil {
		logger.Printf("warn: body embedded in terrain at %.2f,%.2f,%.2f, moved up to z=%.2f",
			start[0], start[1], start[2], box.Min[2])
	}
	return box, true
}

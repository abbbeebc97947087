package worldhandler

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

// Mesher turns a column into per-level vertex lists. Entries are nil for
// levels with nothing to draw.
type Mesher interface {
	MeshColumn(buf *store.ChunkBuffer, p model.ChunkColumnPos) []*ChunkMesh
}

type Vertex struct {
	Pos    mgl32.Vec3
	Normal mgl32.Vec3
	Light  float32 // 0..1
	Kind   uint16
}

type ChunkMesh struct {
	Level       int
	Opaque      []Vertex
	Translucent []Vertex
}

type face struct {
	dx, dy, dz int
	normal     mgl32.Vec3
	corners    [4]mgl32.Vec3
}

var faces = [6]face{
	{1, 0, 0, mgl32.Vec3{1, 0, 0}, [4]mgl32.Vec3{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}}},
	{-1, 0, 0, mgl32.Vec3{-1, 0, 0}, [4]mgl32.Vec3{{0, 1, 0}, {0, 0, 0}, {0, 0, 1}, {0, 1, 1}}},
	{0, 1, 0, mgl32.Vec3{0, 1, 0}, [4]mgl32.Vec3{{1, 1, 0}, {0, 1, 0}, {0, 1, 1}, {1, 1, 1}}},
	{0, -1, 0, mgl32.Vec3{0, -1, 0}, [4]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}},
	{0, 0, 1, mgl32.Vec3{0, 0, 1}, [4]mgl32.Vec3{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}}},
	{0, 0, -1, mgl32.Vec3{0, 0, -1}, [4]mgl32.Vec3{{0, 1, 0}, {1, 1, 0}, {1, 0, 0}, {0, 0, 0}}},
}

var quadOrder = [6]int{0, 1, 2, 0, 2, 3}

// FaceMesher emits one quad per visible block face, lit by the cell in front
// of it. Opaque blocks go to Opaque; transparent non-air blocks (water,
// glass, torches) go to Translucent.
type FaceMesher struct{}

func (FaceMesher) MeshColumn(buf *store.ChunkBuffer, p model.ChunkColumnPos) []*ChunkMesh {
	col := buf.Column(p)
	out := make([]*ChunkMesh, model.WorldHeightChunks)
	if col == nil {
		return out
	}
	ox, oy := p.Origin()
	for level := 0; level < model.WorldHeightChunks; level++ {
		ch := col.Chunk(level)
		if !ch.IsInitialized() {
			continue
		}
		if sb, ok := ch.SolidBlock(); ok && sb.IsAir() {
			continue
		}
		m := &ChunkMesh{Level: level}
		oz := level << model.ChunkSizeBits
		for lz := 0; lz < model.ChunkSize; lz++ {
			for ly := 0; ly < model.ChunkSize; ly++ {
				for lx := 0; lx < model.ChunkSize; lx++ {
					b := ch.Get(lx, ly, lz)
					if b.IsAir() {
						continue
					}
					meshBlock(buf, m, b, ox+lx, oy+ly, oz+lz)
				}
			}
		}
		if len(m.Opaque) > 0 || len(m.Translucent) > 0 {
			out[level] = m
		}
	}
	return out
}

func meshBlock(buf *store.ChunkBuffer, m *ChunkMesh, b model.Block, x, y, z int) {
	for _, f := range faces {
		nx, ny, nz := x+f.dx, y+f.dy, z+f.dz
		if nz < 0 {
			continue
		}
		nb := buf.GetBlock(nx, ny, nz)
		if !nb.IsTransparent() || nb.SameMaterial(b) {
			continue
		}
		light := float32(nb.Light()) / float32(model.MaxLight)
		base := mgl32.Vec3{float32(x), float32(y), float32(z)}
		for _, i := range quadOrder {
			v := Vertex{Pos: base.Add(f.corners[i]), Normal: f.normal, Light: light, Kind: b.Kind()}
			if b.IsTransparent() {
				m.Translucent = append(m.Translucent, v)
			} else {
				m.Opaque = append(m.Opaque, v)
			}
		}
	}
}

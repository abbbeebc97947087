package gen

import (
	"github.com/ojrac/opensimplex-go"

	"voxelcore.ai/internal/sim/world/kernel/model"
)

// Noise is a fractal height map with sea-level water, sandy shores and
// hashed ore and glowstone pockets.
type Noise struct {
	seed     int64
	seaLevel int
	noise    opensimplex.Noise32
	pal      palette

	Amplitude   float32
	Octaves     int
	Lacunarity  float32
	Persistence float32
	Scale       float32
}

func NewNoise(p Params, pal palette) *Noise {
	return &Noise{
		seed:        p.Seed,
		seaLevel:    p.SeaLevel,
		noise:       opensimplex.New32(p.Seed),
		pal:         pal,
		Amplitude:   24,
		Octaves:     4,
		Lacunarity:  2,
		Persistence: 0.5,
		Scale:       128,
	}
}

// Height returns the surface z at world (x,y).
func (n *Noise) Height(x, y int) int {
	fx, fy := float32(x), float32(y)
	amp := n.Amplitude
	val := float32(0)
	for i := 0; i < n.Octaves; i++ {
		val += n.noise.Eval2(fx/n.Scale, fy/n.Scale) * amp
		fx *= n.Lacunarity
		fy *= n.Lacunarity
		amp *= n.Persistence
	}
	return clampHeight(n.seaLevel + int(val))
}

func (n *Noise) Generate(x, y int) []model.Block {
	h := n.Height(x, y)
	shore := h <= n.seaLevel+1
	line := airLine()
	line[0] = n.pal.bedrock
	for z := 1; z <= h; z++ {
		switch {
		case z == h && shore:
			line[z] = n.pal.sand
		case z == h:
			line[z] = n.pal.grass
		case z >= h-3 && shore:
			line[z] = n.pal.sand
		case z >= h-3:
			line[z] = n.pal.dirt
		default:
			line[z] = n.underground(x, y, z)
		}
	}
	for z := h + 1; z <= n.seaLevel && z < model.WorldHeightBlocks; z++ {
		line[z] = n.pal.water
	}
	return line
}

func (n *Noise) underground(x, y, z int) model.Block {
	r := Hash3(n.seed, x, y, z) % 10000
	switch {
	case z < 24 && r < 4:
		return n.pal.glowstone
	case z < 40 && r < 60:
		return n.pal.iron
	case r < 140:
		return n.pal.coal
	case r < 220:
		return n.pal.gravel
	default:
		return n.pal.stone
	}
}

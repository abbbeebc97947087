// Package gen holds the terrain generators. A Generator is a pure function of
// its seed and the (x,y) line it is asked for, so one value can be shared by
// every worker goroutine.
package gen

import (
	"fmt"

	"voxelcore.ai/internal/sim/catalogs"
	"voxelcore.ai/internal/sim/world/kernel/model"
)

type Generator interface {
	// Generate returns the WorldHeightBlocks blocks of the vertical line at
	// world (x,y), bottom to top.
	Generate(x, y int) []model.Block
}

type Params struct {
	Seed     int64
	SeaLevel int
}

// New builds a generator by its tuning name.
func New(name string, p Params, cat *catalogs.BlockCatalog) (Generator, error) {
	pal, err := newPalette(cat)
	if err != nil {
		return nil, err
	}
	switch name {
	case "flat":
		return &Flat{Height: p.SeaLevel, pal: pal}, nil
	case "noise":
		return NewNoise(p, pal), nil
	default:
		return nil, fmt.Errorf("unknown generator %q", name)
	}
}

type palette struct {
	bedrock, stone, dirt, grass, sand, gravel model.Block
	water, coal, iron, glowstone              model.Block
}

func newPalette(cat *catalogs.BlockCatalog) (palette, error) {
	var p palette
	for _, e := range []struct {
		id  string
		dst *model.Block
	}{
		{"BEDROCK", &p.bedrock},
		{"STONE", &p.stone},
		{"DIRT", &p.dirt},
		{"GRASS", &p.grass},
		{"SAND", &p.sand},
		{"GRAVEL", &p.gravel},
		{"WATER", &p.water},
		{"COAL_ORE", &p.coal},
		{"IRON_ORE", &p.iron},
		{"GLOWSTONE", &p.glowstone},
	} {
		b, ok := cat.Block(e.id)
		if !ok {
			return p, fmt.Errorf("generator: block catalog has no %s", e.id)
		}
		*e.dst = b
	}
	return p, nil
}

func airLine() []model.Block {
	out := make([]model.Block, model.WorldHeightBlocks)
	for i := range out {
		out[i] = model.Air
	}
	return out
}

func clampHeight(h int) int {
	if h < 1 {
		return 1
	}
	if h > model.WorldHeightBlocks-2 {
		return model.WorldHeightBlocks - 2
	}
	return h
}

// Flat is bedrock, stone, three dirt and a grass surface at Height.
type Flat struct {
	Height int
	pal    palette
}

func (f *Flat) Generate(x, y int) []model.Block {
	h := clampHeight(f.Height)
	line := airLine()
	line[0] = f.pal.bedrock
	for z := 1; z <= h; z++ {
		switch {
		case z == h:
			line[z] = f.pal.grass
		case z >= h-3:
			line[z] = f.pal.dirt
		default:
			line[z] = f.pal.stone
		}
	}
	return line
}

package main

import (
	"io"
	"log"
	"testing"

	"voxelcore.ai/internal/sim/catalogs"
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/terrain/gen"
	"voxelcore.ai/internal/sim/world/terrain/store"
	"voxelcore.ai/internal/sim/worldhandler"
)

func TestFindSpawn_StandsOnSurface(t *testing.T) {
	cat := catalogs.Default()
	g, err := gen.New("flat", gen.Params{SeaLevel: 40}, cat)
	if err != nil {
		t.Fatalf("gen.New: %v", err)
	}
	col, err := store.ColumnFromLines(model.ChunkColumnPos{}, g.Generate)
	if err != nil {
		t.Fatalf("ColumnFromLines: %v", err)
	}
	m := worldhandler.NewMirror()
	quiet := log.New(io.Discard, "", 0)

	if _, ok := findSpawn(m, 8, 8, quiet); ok {
		t.Fatalf("spawn found in an empty mirror")
	}
	m.Apply([]worldhandler.Update{worldhandler.ColumnReady{Column: col}})

	sp, ok := findSpawn(m, 8, 8, quiet)
	if !ok {
		t.Fatalf("no spawn")
	}
	if sp.Feet[2] != 41 {
		t.Fatalf("feet z=%v, want 41", sp.Feet[2])
	}
	if sp.Ground.Z != 40 || sp.Ground.Block.Kind() != cat.MustBlock("GRASS").Kind() {
		t.Fatalf("ground %+v", sp.Ground)
	}
	if x, y, z := sp.Ground.Place(); x != 8 || y != 8 || z != 41 {
		t.Fatalf("place at %d,%d,%d", x, y, z)
	}
}

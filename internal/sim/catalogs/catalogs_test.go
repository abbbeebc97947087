package catalogs

import (
	"os"
	"path/filepath"
	"testing"

	"voxelcore.ai/internal/sim/world/kernel/model"
)

func TestDefault_AirIsKindZero(t *testing.T) {
	c := Default()
	if c.Index["AIR"] != model.KindAir {
		t.Fatalf("AIR kind: got %d", c.Index["AIR"])
	}
	if b := c.MustBlock("AIR"); b != model.Air {
		t.Fatalf("AIR block: got %#x", b)
	}
	glow := c.MustBlock("GLOWSTONE")
	if c.Emission(glow.Kind()) != 15 || !glow.IsSolid() || glow.IsTransparent() {
		t.Fatalf("GLOWSTONE def wrong: %#x emission=%d", glow, c.Emission(glow.Kind()))
	}
	if !c.IsWater(c.MustBlock("WATER").Kind()) {
		t.Fatalf("WATER must be water")
	}
	if c.Emission(60000) != 0 || c.IsWater(60000) {
		t.Fatalf("unknown kinds must have no behaviour")
	}
}

func TestLoad_FileMatchesDefault(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d := Default()
	if c.PaletteDigest != d.PaletteDigest {
		t.Fatalf("configs/blocks.json palette differs from the built-in catalog")
	}
}

func TestLoad_MissingFileUsesDefault(t *testing.T) {
	c, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.PaletteDigest != Default().PaletteDigest {
		t.Fatalf("expected default catalog")
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"no air":       `[{"id":"STONE","solid":true}]`,
		"solid air":    `[{"id":"AIR","solid":true}]`,
		"bright":       `[{"id":"AIR","transparent":true},{"id":"SUN","emission":16}]`,
		"empty id":     `[{"id":"AIR","transparent":true},{"id":""}]`,
		"invalid json": `{`,
	}
	for name, body := range cases {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "blocks.json"), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(dir); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestNormalize(t *testing.T) {
	c := Default()
	stone := c.MustBlock("STONE")
	forged := model.NewBlock(stone.Kind(), false, true).WithBlockLight(9)
	got, ok := c.Normalize(forged)
	if !ok || got != stone {
		t.Fatalf("Normalize: got %#x,%v want %#x", got, ok, stone)
	}
	if _, ok := c.Normalize(model.NewBlock(5000, true, false)); ok {
		t.Fatalf("unknown kind must be rejected")
	}
}

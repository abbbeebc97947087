package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"voxelcore.ai/internal/sim/world/kernel/model"
)

// BlockCatalog maps block names to kinds and kinds to their behaviour.
type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string

	byKind []BlockDef
}

type BlockDef struct {
	ID          string `json:"id"`
	Solid       bool   `json:"solid"`
	Transparent bool   `json:"transparent"`
	Emission    uint8  `json:"emission,omitempty"`
	Water       bool   `json:"water,omitempty"`
}

// Load reads blocks.json from configDir. A missing file falls back to Default.
func Load(configDir string) (*BlockCatalog, error) {
	raw, err := os.ReadFile(filepath.Join(configDir, "blocks.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return parse(raw)
}

var defaultDefs = []BlockDef{
	{ID: "AIR", Transparent: true},
	{ID: "BEDROCK", Solid: true},
	{ID: "STONE", Solid: true},
	{ID: "DIRT", Solid: true},
	{ID: "GRASS", Solid: true},
	{ID: "SAND", Solid: true},
	{ID: "GRAVEL", Solid: true},
	{ID: "COAL_ORE", Solid: true},
	{ID: "IRON_ORE", Solid: true},
	{ID: "WATER", Transparent: true, Water: true},
	{ID: "GLASS", Solid: true, Transparent: true},
	{ID: "LEAVES", Solid: true, Transparent: true},
	{ID: "LOG", Solid: true},
	{ID: "TORCH", Transparent: true, Emission: 14},
	{ID: "GLOWSTONE", Solid: true, Emission: 15},
}

// Default is the built-in catalog used when no blocks.json is provided.
func Default() *BlockCatalog {
	raw, _ := json.Marshal(defaultDefs)
	c, err := parse(raw)
	if err != nil {
		panic(err)
	}
	return c
}

func parse(raw []byte) (*BlockCatalog, error) {
	out := &BlockCatalog{DefsDigest: sha256Hex(raw)}

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("blocks.json: empty id")
		}
		if d.Emission > model.MaxLight {
			return nil, fmt.Errorf("blocks.json: %s emission %d exceeds %d", d.ID, d.Emission, model.MaxLight)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Ensure AIR exists and is palette id 0.
	air, ok := out.Defs["AIR"]
	if !ok {
		return nil, fmt.Errorf("blocks.json: missing AIR")
	}
	if air.Solid || !air.Transparent {
		return nil, fmt.Errorf("blocks.json: AIR must be transparent and not solid")
	}
	ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)
	if len(ids) > 0xFFFF {
		return nil, fmt.Errorf("blocks.json: %d kinds exceed the palette", len(ids))
	}

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	out.byKind = make([]BlockDef, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
		out.byKind[i] = out.Defs[id]
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return out, nil
}

// Block returns the unlit block value for a named kind.
func (c *BlockCatalog) Block(id string) (model.Block, bool) {
	k, ok := c.Index[id]
	if !ok {
		return 0, false
	}
	if k == model.KindAir {
		return model.Air, true
	}
	d := c.byKind[k]
	return model.NewBlock(k, d.Solid, d.Transparent), true
}

// MustBlock is Block for names the caller knows are present.
func (c *BlockCatalog) MustBlock(id string) model.Block {
	b, ok := c.Block(id)
	if !ok {
		panic(fmt.Sprintf("catalogs: unknown block %q", id))
	}
	return b
}

// Name returns the palette name of a kind, or "" when unknown.
func (c *BlockCatalog) Name(kind uint16) string {
	if int(kind) >= len(c.Palette) {
		return ""
	}
	return c.Palette[kind]
}

func (c *BlockCatalog) Emission(kind uint16) uint8 {
	if int(kind) >= len(c.byKind) {
		return 0
	}
	return c.byKind[kind].Emission
}

func (c *BlockCatalog) IsWater(kind uint16) bool {
	if int(kind) >= len(c.byKind) {
		return false
	}
	return c.byKind[kind].Water
}

// Normalize rebuilds a block's flags from the catalog so clients cannot
// smuggle a solid kind in as transparent. Unknown kinds report false.
func (c *BlockCatalog) Normalize(b model.Block) (model.Block, bool) {
	k := b.Kind()
	if int(k) >= len(c.byKind) {
		return 0, false
	}
	if k == model.KindAir {
		return model.Air, true
	}
	d := c.byKind[k]
	return model.NewBlock(k, d.Solid, d.Transparent), true
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}

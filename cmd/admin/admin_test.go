package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	persistlog "voxelcore.ai/internal/persistence/log"
	"voxelcore.ai/internal/persistence/superchunk"
	"voxelcore.ai/internal/sim/catalogs"
	"voxelcore.ai/internal/sim/world"
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/terrain/gen"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

func flatLevels(t *testing.T, p model.ChunkColumnPos) [][]byte {
	t.Helper()
	g, err := gen.New("flat", gen.Params{SeaLevel: 40}, catalogs.Default())
	if err != nil {
		t.Fatalf("gen.New: %v", err)
	}
	col, err := store.ColumnFromLines(p, g.Generate)
	if err != nil {
		t.Fatalf("ColumnFromLines: %v", err)
	}
	levels, err := store.EncodeColumn(col)
	if err != nil {
		t.Fatalf("EncodeColumn: %v", err)
	}
	return levels
}

func openStore(t *testing.T, worldDir string) *superchunk.Store {
	t.Helper()
	sc, err := superchunk.NewStore(filepath.Join(worldDir, "superchunks"), 8, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return sc
}

func TestRollback_RevertsToOldestFrom(t *testing.T) {
	worldDir := t.TempDir()
	cat := catalogs.Default()
	stone, glass := cat.MustBlock("STONE"), cat.MustBlock("GLASS")

	sc := openStore(t, worldDir)
	if err := sc.PutColumn(model.ChunkColumnPos{}, flatLevels(t, model.ChunkColumnPos{})); err != nil {
		t.Fatalf("PutColumn: %v", err)
	}
	if _, err := sc.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	el := persistlog.NewEditLogger(worldDir)
	for _, e := range []world.EditEntry{
		{GameTime: 5, Pos: [3]int{3, 3, 41}, From: uint32(model.Air), To: uint32(stone)},
		{GameTime: 6, Pos: [3]int{3, 3, 41}, From: uint32(stone), To: uint32(glass)},
		{GameTime: 7, Pos: [3]int{100, 3, 41}, From: uint32(model.Air), To: uint32(stone)},
		{GameTime: 8, Pos: [3]int{4, 4, 41}, From: uint32(model.Air), To: uint32(stone)},
	} {
		if err := el.WriteEdit(e); err != nil {
			t.Fatalf("WriteEdit: %v", err)
		}
	}
	if err := el.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	recs, err := readAudit(worldDir, 0, 7, [3]int{-1000, -1000, 0}, [3]int{1000, 1000, 127})
	if err != nil {
		t.Fatalf("readAudit: %v", err)
	}
	if len(recs) != 3 || recs[0].Entry.GameTime != 7 || recs[2].Entry.GameTime != 5 {
		t.Fatalf("unexpected records %+v", recs)
	}

	applied, skipped, err := applyRollback(openStore(t, worldDir), recs)
	if err != nil {
		t.Fatalf("applyRollback: %v", err)
	}
	// (100,3) lives in a column that was never saved.
	if applied != 2 || skipped != 1 {
		t.Fatalf("applied=%d skipped=%d", applied, skipped)
	}

	levels, ok := openStore(t, worldDir).LoadColumn(model.ChunkColumnPos{})
	if !ok {
		t.Fatalf("column missing after rollback")
	}
	col, err := store.DecodeColumn(model.ChunkColumnPos{}, levels)
	if err != nil {
		t.Fatalf("DecodeColumn: %v", err)
	}
	buf := store.NewChunkBuffer()
	buf.StoreColumn(col)
	if got := buf.GetBlock(3, 3, 41); !got.IsAir() {
		t.Fatalf("block after rollback %#x, want air", got)
	}
	if got := buf.GetBlock(3, 3, 40); got.Kind() != cat.MustBlock("GRASS").Kind() {
		t.Fatalf("untouched surface changed: %#x", got)
	}
}

func TestSummarizeColumn(t *testing.T) {
	p := model.ChunkColumnPos{X: -1, Y: 2}
	s, err := summarizeColumn(p, flatLevels(t, p))
	if err != nil {
		t.Fatalf("summarizeColumn: %v", err)
	}
	if s.TopZ != 40 || s.NonAir != 41*model.ChunkSize*model.ChunkSize {
		t.Fatalf("summary %+v", s)
	}
	if s.X != -1 || s.Y != 2 || s.SolidLevels == 0 || s.Bytes == 0 {
		t.Fatalf("summary %+v", s)
	}
}

func TestRegionPosFromName(t *testing.T) {
	r, err := regionPosFromName("/tmp/x/r.-2.7.sc.zst")
	if err != nil || r != (superchunk.RegionPos{X: -2, Y: 7}) {
		t.Fatalf("got %+v, %v", r, err)
	}
	for _, bad := range []string{"world.json", "r.1.sc.zst", "r.1.2.zst"} {
		if _, err := regionPosFromName(bad); err == nil {
			t.Fatalf("%s accepted", bad)
		}
	}
}

func TestParseAABB(t *testing.T) {
	min, max, err := parseAABB("5,-1,9:0,3,2")
	if err != nil {
		t.Fatalf("parseAABB: %v", err)
	}
	if min != [3]int{0, -1, 2} || max != [3]int{5, 3, 9} {
		t.Fatalf("min=%v max=%v", min, max)
	}
	if _, _, err := parseAABB("1,2:3,4"); err == nil {
		t.Fatalf("short vector accepted")
	}
	if !withinAABB([3]int{0, 0, 0}, [3]int{math.MinInt, 0, 0}, [3]int{0, 0, 0}) {
		t.Fatalf("boundary not inclusive")
	}
}

func TestFetchAndPrintState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/v1/state" {
			http.NotFound(rw, r)
			return
		}
		_ = json.NewEncoder(rw).Encode(serverState{
			WorldID:  "w1",
			Seed:     9,
			GameTime: 120,
			Metrics: world.WorldMetrics{
				Sessions:        2,
				LoadedColumns:   10,
				ColumnsByStatus: map[string]int{store.StatusStored.String(): 1, store.StatusPropagated.String(): 9},
				GeneratedTotal:  12345,
			},
		})
	}))
	defer srv.Close()

	st, err := fetchState(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("fetchState: %v", err)
	}
	var b strings.Builder
	printState(&b, st)
	out := b.String()
	for _, want := range []string{"world w1  seed=9  gametime=120", "sessions 2", "stored=1 propagated=9", "generated 12,345"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}

	if _, err := fetchState(context.Background(), srv.URL+"/nope"); err == nil {
		t.Fatalf("expected error for a 404")
	}
}

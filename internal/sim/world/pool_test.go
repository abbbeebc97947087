package world

import (
	"context"
	"testing"
	"time"

	"voxelcore.ai/internal/sim/catalogs"
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/terrain/gen"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

type shortGen struct{}

func (shortGen) Generate(x, y int) []model.Block { return make([]model.Block, 3) }

func TestGeneratorPool_GeneratesRequestedColumns(t *testing.T) {
	g, err := gen.New("noise", gen.Params{Seed: 99, SeaLevel: 48}, catalogs.Default())
	if err != nil {
		t.Fatalf("gen.New: %v", err)
	}
	pool := NewGeneratorPool(g, 3, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	want := map[model.ChunkColumnPos]bool{}
	for _, p := range square(1) {
		want[p] = true
		pool.Request(p)
	}
	pool.Close()

	got := 0
	timeout := time.After(10 * time.Second)
	for {
		select {
		case raw, ok := <-pool.Results():
			if !ok {
				if got != len(want) {
					t.Fatalf("got %d results want %d", got, len(want))
				}
				return
			}
			if raw.Err != nil {
				t.Fatalf("generate %v: %v", raw.Pos, raw.Err)
			}
			if !want[raw.Pos] {
				t.Fatalf("unexpected column %v", raw.Pos)
			}
			col, err := store.DecodeColumn(raw.Pos, raw.Levels)
			if err != nil {
				t.Fatalf("decode %v: %v", raw.Pos, err)
			}
			if !col.IsInitialized() {
				t.Fatalf("column %v has empty levels", raw.Pos)
			}
			got++
		case <-timeout:
			t.Fatalf("timed out after %d results", got)
		}
	}
}

func TestGeneratorPool_SameSeedSameColumn(t *testing.T) {
	g, _ := gen.New("noise", gen.Params{Seed: 5, SeaLevel: 48}, catalogs.Default())
	a := NewGeneratorPool(g, 1, quietLogger())
	b := NewGeneratorPool(g, 1, quietLogger())
	defer a.Close()
	defer b.Close()
	p := model.ChunkColumnPos{X: -7, Y: 12}
	ra, rb := a.generate(p), b.generate(p)
	if ra.Err != nil || rb.Err != nil {
		t.Fatalf("errors: %v %v", ra.Err, rb.Err)
	}
	for i := range ra.Levels {
		if string(ra.Levels[i]) != string(rb.Levels[i]) {
			t.Fatalf("level %d differs between runs", i)
		}
	}
}

func TestGeneratorPool_WrongLineLengthIsAnError(t *testing.T) {
	pool := NewGeneratorPool(shortGen{}, 1, quietLogger())
	defer pool.Close()
	raw := pool.generate(model.ChunkColumnPos{})
	if raw.Err == nil || raw.Levels != nil {
		t.Fatalf("expected an error for a short generator line")
	}

	tw := newTestWorld(t, t.TempDir(), nil)
	tw.requested[raw.Pos] = struct{}{}
	tw.handleRaw(raw)
	if tw.buf.Column(raw.Pos) != nil || tw.counters.genErrors != 1 {
		t.Fatalf("failed column must be skipped")
	}
}

func TestGeneratorPool_StopsOnContext(t *testing.T) {
	g, _ := gen.New("flat", gen.Params{SeaLevel: 10}, catalogs.Default())
	pool := NewGeneratorPool(g, 2, quietLogger())
	defer pool.Close()
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	cancel()
	select {
	case _, ok := <-pool.Results():
		for ok {
			_, ok = <-pool.Results()
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("results not closed after cancel")
	}
}

package world

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"voxelcore.ai/internal/persistence/superchunk"
	"voxelcore.ai/internal/persistence/worldmeta"
	"voxelcore.ai/internal/protocol"
	"voxelcore.ai/internal/sim/catalogs"
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/terrain/gen"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

type recordingEdits struct {
	mu      sync.Mutex
	entries []EditEntry
}

func (r *recordingEdits) WriteEdit(e EditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingEdits) all() []EditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EditEntry(nil), r.entries...)
}

type testWorld struct {
	*World
	pool *GeneratorPool
	sc   *superchunk.Store
	dir  string
}

func newTestWorld(t *testing.T, dir string, mutate func(*Config)) *testWorld {
	t.Helper()
	cat := catalogs.Default()
	g, err := gen.New("flat", gen.Params{Seed: 7, SeaLevel: 40}, cat)
	if err != nil {
		t.Fatalf("gen.New: %v", err)
	}
	pool := NewGeneratorPool(g, 2, quietLogger())
	t.Cleanup(pool.Close)
	sc, err := superchunk.NewStore(filepath.Join(dir, "superchunks"), 8, quietLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	cfg := Config{
		Seed:             7,
		Generator:        "flat",
		SeaLevel:         40,
		ViewRadius:       2,
		MaxSubscriptions: 64,
		TickRateHz:       20,
		SaveInterval:     time.Hour,
		MetaDir:          dir,
		RateLimits: RateLimitConfig{
			SetBlockPerSec:  1000,
			SetBlockBurst:   1000,
			SubscribePerSec: 1000,
			SubscribeBurst:  1000,
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	w, err := New(cfg, cat, pool, sc, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testWorld{World: w, pool: pool, sc: sc, dir: dir}
}

type testClient struct {
	id   JoinResponse
	out  chan []byte
	kick chan string
}

func (tw *testWorld) joinSync(t *testing.T, name string) *testClient {
	t.Helper()
	c := &testClient{out: make(chan []byte, 1024), kick: make(chan string, 1)}
	resp := make(chan JoinResponse, 1)
	tw.handleJoin(JoinRequest{Name: name, Out: c.out, Kick: c.kick, Resp: resp})
	c.id = <-resp
	return c
}

func (tw *testWorld) msg(c *testClient, m protocol.Message) {
	tw.handleMessage(Envelope{SessionID: c.id.SessionID, Msg: m})
}

// generatePending answers every outstanding request in position order.
func (tw *testWorld) generatePending(skip ...model.ChunkColumnPos) {
	skipped := map[model.ChunkColumnPos]bool{}
	for _, p := range skip {
		skipped[p] = true
	}
	for _, p := range sortedPositions(tw.requested) {
		if skipped[p] {
			continue
		}
		tw.handleRaw(tw.pool.generate(p))
	}
}

func drain(t *testing.T, c *testClient) []protocol.Message {
	t.Helper()
	var out []protocol.Message
	for {
		select {
		case frame := <-c.out:
			m, err := protocol.Decode(frame)
			if err != nil {
				t.Fatalf("decode frame: %v", err)
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func square(r int) []model.ChunkColumnPos {
	var out []model.ChunkColumnPos
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			out = append(out, model.ChunkColumnPos{X: int16(x), Y: int16(y)})
		}
	}
	return out
}

func TestWorld_JoinWelcome(t *testing.T) {
	tw := newTestWorld(t, t.TempDir(), nil)
	c := tw.joinSync(t, "alice")
	if c.id.Welcome.SessionID != c.id.SessionID || c.id.Welcome.Seed != 7 || c.id.Welcome.ViewRadius != 2 {
		t.Fatalf("unexpected welcome %+v", c.id.Welcome)
	}
	tw.publishMetrics()
	if tw.Metrics().Sessions != 1 {
		t.Fatalf("sessions=%d", tw.Metrics().Sessions)
	}
}

func TestWorld_SubscribeGeneratesAndGatesPropagation(t *testing.T) {
	tw := newTestWorld(t, t.TempDir(), nil)
	c := tw.joinSync(t, "alice")
	tw.msg(c, protocol.Subscribe{Columns: square(1)})

	if len(tw.requested) != 9 {
		t.Fatalf("requested=%d want 9", len(tw.requested))
	}
	// Subscribing again must not request twice.
	other := tw.joinSync(t, "bob")
	tw.msg(other, protocol.Subscribe{Columns: square(1)})
	if len(tw.requested) != 9 {
		t.Fatalf("duplicate requests: %d", len(tw.requested))
	}

	corner := model.ChunkColumnPos{X: 1, Y: 1}
	centre := model.ChunkColumnPos{}
	tw.generatePending(corner)
	if got := tw.buf.Column(centre).Status(); got != store.StatusStored {
		t.Fatalf("centre with 7 of 8 neighbours stored: %v", got)
	}
	tw.generatePending()
	if got := tw.buf.Column(centre).Status(); got != store.StatusPropagated {
		t.Fatalf("centre after all neighbours stored: %v", got)
	}
	for _, p := range square(1) {
		if p == centre {
			continue
		}
		if got := tw.buf.Column(p).Status(); got != store.StatusStored {
			t.Fatalf("edge column %v: %v", p, got)
		}
	}

	for _, cl := range []*testClient{c, other} {
		cols := 0
		for _, m := range drain(t, cl) {
			cc, ok := m.(protocol.ChunkColumn)
			if !ok {
				t.Fatalf("unexpected %T", m)
			}
			if len(cc.BlockData) != model.WorldHeightChunks {
				t.Fatalf("levels=%d", len(cc.BlockData))
			}
			col, err := store.DecodeColumn(cc.Pos, cc.BlockData)
			if err != nil {
				t.Fatalf("DecodeColumn: %v", err)
			}
			if b := col.Chunk(0).Get(0, 0, 0); b.Light() != 0 {
				t.Fatalf("wire column carries light: %#x", b)
			}
			cols++
		}
		if cols != 9 {
			t.Fatalf("client received %d columns, want 9", cols)
		}
	}
}

func TestWorld_LateResultIsDiscarded(t *testing.T) {
	tw := newTestWorld(t, t.TempDir(), nil)
	c := tw.joinSync(t, "alice")
	p := model.ChunkColumnPos{X: 4, Y: -2}
	tw.msg(c, protocol.Subscribe{Columns: []model.ChunkColumnPos{p}})
	tw.msg(c, protocol.Unsubscribe{Columns: []model.ChunkColumnPos{p}})

	if len(tw.requested) != 0 || tw.buf.Column(p) != nil {
		t.Fatalf("unsubscribe left state behind")
	}
	tw.handleRaw(tw.pool.generate(p))
	if tw.buf.Column(p) != nil {
		t.Fatalf("late result was stored")
	}
	if tw.counters.discarded != 1 {
		t.Fatalf("discarded=%d", tw.counters.discarded)
	}
	if msgs := drain(t, c); len(msgs) != 0 {
		t.Fatalf("client got %d messages for a cancelled column", len(msgs))
	}
}

func TestWorld_GeneratorErrorRetriesThenResubscribes(t *testing.T) {
	tw := newTestWorld(t, t.TempDir(), nil)
	c := tw.joinSync(t, "alice")
	p := model.ChunkColumnPos{X: 3, Y: 3}
	sub := protocol.Subscribe{Columns: []model.ChunkColumnPos{p}}
	tw.msg(c, sub)

	boom := RawColumn{Pos: p, Err: errors.New("boom")}
	for i := 0; i < maxGenRetries; i++ {
		tw.handleRaw(boom)
		if _, ok := tw.requested[p]; !ok {
			t.Fatalf("failure %d: column not requested again", i+1)
		}
	}
	tw.handleRaw(boom)
	if _, ok := tw.requested[p]; ok || tw.buf.Column(p) != nil {
		t.Fatalf("column still pending after giving up")
	}
	if _, ok := tw.sessions[c.id.SessionID].subs[p]; ok {
		t.Fatalf("session still subscribed to an abandoned column")
	}
	if tw.counters.genErrors != maxGenRetries+1 {
		t.Fatalf("genErrors=%d", tw.counters.genErrors)
	}

	tw.msg(c, sub)
	if _, ok := tw.requested[p]; !ok {
		t.Fatalf("resubscribe did not request the column")
	}
	tw.generatePending()
	var got bool
	for _, m := range drain(t, c) {
		if cc, ok := m.(protocol.ChunkColumn); ok && cc.Pos == p {
			got = true
		}
	}
	if !got {
		t.Fatalf("column never delivered after resubscribe")
	}
	if len(tw.genRetries) != 0 {
		t.Fatalf("retry bookkeeping left behind: %v", tw.genRetries)
	}
}

func TestWorld_SetBlockEchoAndAudit(t *testing.T) {
	tw := newTestWorld(t, t.TempDir(), nil)
	edits := &recordingEdits{}
	tw.SetEditLogger(edits)
	a := tw.joinSync(t, "alice")
	b := tw.joinSync(t, "bob")
	tw.msg(a, protocol.Subscribe{Columns: square(1)})
	tw.msg(b, protocol.Subscribe{Columns: []model.ChunkColumnPos{{}}})
	tw.generatePending()
	drain(t, a)
	drain(t, b)

	torch := tw.cat.MustBlock("TORCH")
	tw.msg(a, protocol.SetBlock{X: 3, Y: 3, Z: 100, Block: torch.WithBlockLight(2)})

	for _, c := range []*testClient{a, b} {
		msgs := drain(t, c)
		if len(msgs) != 1 {
			t.Fatalf("expected one echo, got %d", len(msgs))
		}
		sb, ok := msgs[0].(protocol.SetBlock)
		if !ok || sb.X != 3 || sb.Y != 3 || sb.Z != 100 || sb.Block != torch {
			t.Fatalf("unexpected echo %+v", msgs[0])
		}
	}
	if got := tw.buf.GetBlock(3, 3, 100); got.Kind() != torch.Kind() || got.BlockLight() != 14 {
		t.Fatalf("server block %#x", got)
	}
	if got := tw.buf.GetBlock(3, 3, 101).BlockLight(); got != 13 {
		t.Fatalf("light above torch %d want 13", got)
	}

	es := edits.all()
	if len(es) != 1 || es[0].Pos != [3]int{3, 3, 100} || es[0].To != uint32(torch) || es[0].Name != "alice" {
		t.Fatalf("audit entries %+v", es)
	}
	if es[0].From != uint32(model.Air) {
		t.Fatalf("from=%#x want air", es[0].From)
	}
}

func TestWorld_KicksOnViolations(t *testing.T) {
	tw := newTestWorld(t, t.TempDir(), func(c *Config) { c.MaxSubscriptions = 4 })

	c := tw.joinSync(t, "nosy")
	tw.msg(c, protocol.SetBlock{X: 100, Y: 100, Z: 10, Block: model.Air})
	if code := <-c.kick; code != protocol.ErrNotSubscribed {
		t.Fatalf("kick code %q", code)
	}
	if _, ok := tw.sessions[c.id.SessionID]; ok {
		t.Fatalf("session still registered")
	}

	greedy := tw.joinSync(t, "greedy")
	tw.msg(greedy, protocol.Subscribe{Columns: square(1)})
	if code := <-greedy.kick; code != protocol.ErrTooManyCols {
		t.Fatalf("kick code %q", code)
	}
	if len(tw.subscribers) != 0 || len(tw.requested) != 0 || tw.buf.Len() != 0 {
		t.Fatalf("kicked session left columns behind: subs=%d req=%d buf=%d", len(tw.subscribers), len(tw.requested), tw.buf.Len())
	}

	bad := tw.joinSync(t, "bad")
	tw.msg(bad, protocol.Subscribe{Columns: []model.ChunkColumnPos{{}}})
	tw.generatePending()
	tw.msg(bad, protocol.SetBlock{X: 1, Y: 1, Z: 90, Block: model.NewBlock(999, true, false)})
	if code := <-bad.kick; code != protocol.ErrProtoBadRequest {
		t.Fatalf("kick code %q", code)
	}
}

func TestWorld_SlowClientIsDropped(t *testing.T) {
	tw := newTestWorld(t, t.TempDir(), nil)
	c := &testClient{out: make(chan []byte), kick: make(chan string, 1)}
	resp := make(chan JoinResponse, 1)
	tw.handleJoin(JoinRequest{Name: "slow", Out: c.out, Kick: c.kick, Resp: resp})
	c.id = <-resp

	tw.msg(c, protocol.Subscribe{Columns: []model.ChunkColumnPos{{}}})
	tw.generatePending()
	if code := <-c.kick; code != protocol.ErrSlowClient {
		t.Fatalf("kick code %q", code)
	}
	if tw.buf.Len() != 0 {
		t.Fatalf("column of a dropped session still loaded")
	}
}

func TestWorld_EvictPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	tw := newTestWorld(t, dir, nil)
	c := tw.joinSync(t, "alice")
	p := model.ChunkColumnPos{X: 2, Y: 3}
	tw.msg(c, protocol.Subscribe{Columns: []model.ChunkColumnPos{p}})
	tw.generatePending()

	glow := tw.cat.MustBlock("GLOWSTONE")
	x, y := 2*model.ChunkSize+5, 3*model.ChunkSize+6
	tw.msg(c, protocol.SetBlock{X: int32(x), Y: int32(y), Z: 120, Block: glow})
	tw.msg(c, protocol.Unsubscribe{Columns: []model.ChunkColumnPos{p}})
	if tw.buf.Len() != 0 {
		t.Fatalf("column not evicted")
	}
	if err := tw.save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(tw.sc.Path(superchunk.RegionOf(p))); err != nil {
		t.Fatalf("superchunk not written: %v", err)
	}
	meta, err := worldmeta.Load(dir)
	if err != nil {
		t.Fatalf("worldmeta.Load: %v", err)
	}
	if meta.Seed != 7 || meta.Generator != "flat" {
		t.Fatalf("meta %+v", meta)
	}

	// A fresh world on the same directory serves the column from disk.
	tw2 := newTestWorld(t, dir, nil)
	c2 := tw2.joinSync(t, "bob")
	tw2.msg(c2, protocol.Subscribe{Columns: []model.ChunkColumnPos{p}})
	if len(tw2.requested) != 0 {
		t.Fatalf("stored column was sent to the generator")
	}
	if tw2.counters.loaded != 1 {
		t.Fatalf("loaded=%d", tw2.counters.loaded)
	}
	if got := tw2.buf.GetBlock(x, y, 120); !got.SameMaterial(glow) {
		t.Fatalf("reloaded block %#x want glowstone", got)
	}
	msgs := drain(t, c2)
	if len(msgs) != 1 {
		t.Fatalf("messages=%d", len(msgs))
	}
}

func TestWorld_RunServesAndSavesOnShutdown(t *testing.T) {
	dir := t.TempDir()
	tw := newTestWorld(t, dir, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tw.pool.Start(ctx)

	done := make(chan error, 1)
	go func() { done <- tw.Run(ctx) }()

	out := make(chan []byte, 256)
	kick := make(chan string, 1)
	jctx, jcancel := context.WithTimeout(ctx, 2*time.Second)
	defer jcancel()
	resp, err := tw.JoinWithContext(jctx, JoinRequest{Name: "runner", Out: out, Kick: kick})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	tw.Inbox() <- Envelope{SessionID: resp.SessionID, Msg: protocol.Subscribe{Columns: square(1)}}

	deadline := time.After(5 * time.Second)
	got := 0
	for got < 9 {
		select {
		case frame := <-out:
			if m, err := protocol.Decode(frame); err == nil && m.Tag() == protocol.TagChunkColumn {
				got++
			}
		case <-deadline:
			t.Fatalf("received %d of 9 columns", got)
		}
	}
	for tw.Metrics().StatusCount(store.StatusPropagated) != 1 {
		select {
		case <-deadline:
			t.Fatalf("centre never propagated: %+v", tw.Metrics())
		case <-time.After(10 * time.Millisecond):
		}
	}

	tw.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return")
	}
	if code := <-kick; code != protocol.ErrShutdown {
		t.Fatalf("kick code %q", code)
	}
	if _, err := os.Stat(filepath.Join(dir, worldmeta.FileName)); err != nil {
		t.Fatalf("world.json missing: %v", err)
	}
	if _, err := os.Stat(tw.sc.Path(superchunk.RegionPos{})); err != nil {
		t.Fatalf("superchunk missing after shutdown: %v", err)
	}
}

package ws

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelcore.ai/internal/persistence/superchunk"
	"voxelcore.ai/internal/protocol"
	"voxelcore.ai/internal/sim/catalogs"
	"voxelcore.ai/internal/sim/world"
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/terrain/gen"
)

type harness struct {
	w    *world.World
	url  string
	done chan error
}

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func startWorld(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cat := catalogs.Default()
	g, err := gen.New("flat", gen.Params{Seed: 3, SeaLevel: 40}, cat)
	if err != nil {
		t.Fatalf("gen.New: %v", err)
	}
	pool := world.NewGeneratorPool(g, 2, quiet())
	sc, err := superchunk.NewStore(filepath.Join(dir, "superchunks"), 8, quiet())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	w, err := world.New(world.Config{
		Seed:         3,
		Generator:    "flat",
		SeaLevel:     40,
		ViewRadius:   2,
		SaveInterval: time.Hour,
		MetaDir:      dir,
	}, cat, pool, sc, quiet())
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	h := &harness{w: w, done: make(chan error, 1)}
	go func() { h.done <- w.Run(ctx) }()

	srv := httptest.NewServer(NewServer(w, ServerConfig{}, quiet()).Handler())
	h.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	t.Cleanup(func() {
		cancel()
		srv.Close()
		pool.Close()
	})
	return h
}

func rawDial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeMsg(t *testing.T, conn *websocket.Conn, m protocol.Message) {
	t.Helper()
	frame, err := protocol.Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// expectDisconnect reads until a Disconnect arrives and returns its code.
func expectDisconnect(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("connection ended without Disconnect: %v", err)
		}
		m, err := protocol.Decode(data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if d, ok := m.(protocol.Disconnect); ok {
			return d.Code
		}
	}
}

func TestServer_SubscribeOverWebsocket(t *testing.T) {
	h := startWorld(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := Dial(ctx, h.url, "bot", quiet())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if c.Welcome().Seed != 3 || c.Welcome().ViewRadius != 2 {
		t.Fatalf("welcome %+v", c.Welcome())
	}

	out := make(chan protocol.Message, 4)
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx, out) }()

	var cols []model.ChunkColumnPos
	for y := -1; y <= 1; y++ {
		for x := -1; x <= 1; x++ {
			cols = append(cols, model.ChunkColumnPos{X: int16(x), Y: int16(y)})
		}
	}
	out <- protocol.Subscribe{Columns: cols}

	got := map[model.ChunkColumnPos]bool{}
	for len(got) < len(cols) {
		select {
		case m, ok := <-c.Inbound():
			if !ok {
				t.Fatalf("inbound closed after %d columns", len(got))
			}
			if cc, ok := m.(protocol.ChunkColumn); ok {
				if len(cc.BlockData) != model.WorldHeightChunks {
					t.Fatalf("column %v has %d levels", cc.Pos, len(cc.BlockData))
				}
				got[cc.Pos] = true
			}
		case <-ctx.Done():
			t.Fatalf("received %d of %d columns", len(got), len(cols))
		}
	}

	close(out)
	if err := <-runErr; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestServer_RejectsVersionMismatch(t *testing.T) {
	h := startWorld(t)
	conn := rawDial(t, h.url)
	writeMsg(t, conn, protocol.Hello{Version: protocol.Version + 1, Name: "old"})
	if code := expectDisconnect(t, conn); code != protocol.ErrProtoVersion {
		t.Fatalf("code %q", code)
	}
	if n := h.w.Metrics().Sessions; n != 0 {
		t.Fatalf("rejected client holds a session: %d", n)
	}
}

func TestServer_RejectsMissingHello(t *testing.T) {
	h := startWorld(t)
	conn := rawDial(t, h.url)
	writeMsg(t, conn, protocol.Subscribe{Columns: []model.ChunkColumnPos{{}}})
	if code := expectDisconnect(t, conn); code != protocol.ErrProtoBadRequest {
		t.Fatalf("code %q", code)
	}
}

func TestServer_MalformedFrameDisconnects(t *testing.T) {
	h := startWorld(t)
	conn := rawDial(t, h.url)
	writeMsg(t, conn, protocol.Hello{Version: protocol.Version, Name: "fuzz"})
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0xEE, 1, 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if code := expectDisconnect(t, conn); code != protocol.ErrProtoBadRequest {
		t.Fatalf("code %q", code)
	}
}

func TestServer_ShutdownDisconnectsClients(t *testing.T) {
	h := startWorld(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := Dial(ctx, h.url, "stay", quiet())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx, make(chan protocol.Message)) }()

	h.w.Stop()
	select {
	case err := <-runErr:
		if !errors.Is(err, ErrDisconnected) || !strings.Contains(err.Error(), protocol.ErrShutdown) {
			t.Fatalf("Run: %v", err)
		}
	case <-ctx.Done():
		t.Fatalf("client not disconnected on shutdown")
	}
	if err := <-h.done; err != nil {
		t.Fatalf("world Run: %v", err)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voxelcore.ai/internal/sim/catalogs"
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/worldhandler"
	"voxelcore.ai/internal/transport/ws"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name       = flag.String("name", "bot", "player name")
		configDir  = flag.String("configs", "./configs", "config directory (blocks.json)")
		spawnX     = flag.Int("x", 8, "spawn x")
		spawnY     = flag.Int("y", 8, "spawn y")
		placeTorch = flag.Bool("torch", false, "place a torch at the spawn once it is loaded")
		duration   = flag.Duration("duration", 0, "exit after this long (0: run until interrupted)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	handlerLogger := log.New(os.Stdout, "[handler] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	torch, ok := cats.Block("TORCH")
	if !ok && *placeTorch {
		logger.Fatalf("block catalog has no TORCH")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		var c2 context.CancelFunc
		ctx, c2 = context.WithTimeout(ctx, *duration)
		defer c2()
	}

	client, err := ws.Dial(ctx, *url, *name, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer client.Close()
	wel := client.Welcome()
	logger.Printf("WELCOME session=%s seed=%d view_radius=%d", wel.SessionID, wel.Seed, wel.ViewRadius)

	h := worldhandler.New(worldhandler.Config{ViewRadius: int(wel.ViewRadius), Logger: handlerLogger},
		cats, worldhandler.FaceMesher{}, client.Inbound())
	errc := make(chan error, 2)
	go func() { errc <- h.Run(ctx) }()
	go func() { errc <- client.Run(ctx, h.Outbound()) }()

	h.SetCenter(model.ColumnPosOf(*spawnX, *spawnY))

	b := &bot{logger: logger, cats: cats, mirror: worldhandler.NewMirror()}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	report := time.NewTicker(5 * time.Second)
	defer report.Stop()
	for {
		select {
		case <-ctx.Done():
			b.summary()
			return
		case err := <-errc:
			b.summary()
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Fatalf("stopped: %v", err)
			}
			return
		case <-report.C:
			b.summary()
		case <-ticker.C:
			b.apply(h.Poll())
			if b.spawned {
				continue
			}
			sp, ok := findSpawn(b.mirror, *spawnX, *spawnY, logger)
			if !ok {
				continue
			}
			b.spawned = true
			logger.Printf("spawn feet=%.1f,%.1f,%.1f ground=%s at %d,%d,%d (%.1f below eyes)",
				sp.Feet[0], sp.Feet[1], sp.Feet[2], cats.Name(sp.Ground.Block.Kind()),
				sp.Ground.X, sp.Ground.Y, sp.Ground.Z, sp.Ground.Distance)
			if *placeTorch {
				x, y, z := sp.Ground.Place()
				b.torchAt = [3]int{x, y, z}
				h.RequestEdit(x, y, z, torch)
				logger.Printf("placing torch at %d,%d,%d", x, y, z)
			}
		}
	}
}

type bot struct {
	logger *log.Logger
	cats   *catalogs.BlockCatalog
	mirror *worldhandler.Mirror

	spawned bool
	torchAt [3]int

	ready, meshes, vertices, edits, evicted int
}

func (b *bot) apply(us []worldhandler.Update) {
	b.mirror.Apply(us)
	for _, u := range us {
		switch v := u.(type) {
		case worldhandler.ColumnReady:
			b.ready++
		case worldhandler.MeshUpdate:
			b.meshes++
			for _, m := range v.Meshes {
				if m != nil {
					b.vertices += len(m.Opaque) + len(m.Translucent)
				}
			}
		case worldhandler.BlockUpdate:
			b.edits++
			if b.spawned && [3]int{v.X, v.Y, v.Z} == b.torchAt {
				b.logger.Printf("torch placed: %s light=%d", b.cats.Name(v.Block.Kind()), v.Block.Light())
			}
		case worldhandler.StatusChange:
			if v.Evicted {
				b.evicted++
			}
		}
	}
}

func (b *bot) summary() {
	b.logger.Printf("columns=%d ready=%d meshes=%d vertices=%d edits=%d evicted=%d",
		b.mirror.Len(), b.ready, b.meshes, b.vertices, b.edits, b.evicted)
}

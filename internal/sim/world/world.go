// Package world is the server side of the column pipeline: one goroutine owns
// the chunk buffer, serves subscriptions, applies edits and persists columns.
package world

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"voxelcore.ai/internal/persistence/superchunk"
	"voxelcore.ai/internal/sim/catalogs"
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/lighting"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

type World struct {
	cfg    Config
	cat    *catalogs.BlockCatalog
	logger *log.Logger

	buf   *store.ChunkBuffer
	light *lighting.Engine
	pool  *GeneratorPool
	store *superchunk.Store

	editLogger EditLogger

	join  chan JoinRequest
	leave chan uuid.UUID
	inbox chan Envelope
	stop  chan struct{}

	sessions    map[uuid.UUID]*session
	subscribers map[model.ChunkColumnPos]map[uuid.UUID]*session
	requested   map[model.ChunkColumnPos]struct{}
	genRetries  map[model.ChunkColumnPos]int
	dirty       map[model.ChunkColumnPos]struct{}

	gameTime atomic.Uint64
	metrics  atomic.Value
	counters counters
}

// New wires a world around a generator pool. sc may be nil, in which case
// nothing is persisted.
func New(cfg Config, cat *catalogs.BlockCatalog, pool *GeneratorPool, sc *superchunk.Store, logger *log.Logger) (*World, error) {
	if cat == nil {
		return nil, fmt.Errorf("world: nil catalog")
	}
	if pool == nil {
		return nil, fmt.Errorf("world: nil generator pool")
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 20
	}
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = 30 * time.Second
	}
	if cfg.MaxSubscriptions <= 0 {
		cfg.MaxSubscriptions = 512
	}
	if cfg.ViewRadius <= 0 {
		cfg.ViewRadius = 6
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds)
	}
	w := &World{
		cfg:    cfg,
		cat:    cat,
		logger: logger,

		buf:   store.NewChunkBuffer(),
		light: lighting.New(cat),
		pool:  pool,
		store: sc,

		join:  make(chan JoinRequest, 64),
		leave: make(chan uuid.UUID, 64),
		inbox: make(chan Envelope, 1024),
		stop:  make(chan struct{}),

		sessions:    map[uuid.UUID]*session{},
		subscribers: map[model.ChunkColumnPos]map[uuid.UUID]*session{},
		requested:   map[model.ChunkColumnPos]struct{}{},
		genRetries:  map[model.ChunkColumnPos]int{},
		dirty:       map[model.ChunkColumnPos]struct{}{},
	}
	w.gameTime.Store(cfg.GameTime)
	w.publishMetrics()
	return w, nil
}

func (w *World) SetEditLogger(l EditLogger) { w.editLogger = l }

func (w *World) Inbox() chan<- Envelope          { return w.inbox }
func (w *World) Join() chan<- JoinRequest        { return w.join }
func (w *World) Leave() chan<- uuid.UUID         { return w.leave }
func (w *World) Config() Config                  { return w.cfg }
func (w *World) CurrentGameTime() uint64         { return w.gameTime.Load() }
func (w *World) Catalog() *catalogs.BlockCatalog { return w.cat }

func (w *World) Stop() { close(w.stop) }

// JoinWithContext performs a join round trip, giving up when ctx ends.
func (w *World) JoinWithContext(ctx context.Context, req JoinRequest) (JoinResponse, error) {
	if req.Resp == nil {
		req.Resp = make(chan JoinResponse, 1)
	}
	select {
	case w.join <- req:
	case <-ctx.Done():
		return JoinResponse{}, ctx.Err()
	}
	select {
	case resp := <-req.Resp:
		return resp, nil
	case <-ctx.Done():
		return JoinResponse{}, ctx.Err()
	}
}

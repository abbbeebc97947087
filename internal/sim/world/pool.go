package world

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"voxelcore.ai/internal/sim/chanx"
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/terrain/gen"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

// RawColumn is a generated column in its wire form: one RLE buffer per level.
type RawColumn struct {
	Pos    model.ChunkColumnPos
	Levels [][]byte
	Err    error
}

// GeneratorPool runs a pure generator on N goroutines. Requests queue without
// bound; results are read by the world loop.
type GeneratorPool struct {
	gen     gen.Generator
	workers int
	logger  *log.Logger

	requests *chanx.Unbounded[model.ChunkColumnPos]
	results  chan RawColumn

	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewGeneratorPool(g gen.Generator, workers int, logger *log.Logger) *GeneratorPool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[gen] ", log.LstdFlags|log.Lmicroseconds)
	}
	return &GeneratorPool{
		gen:      g,
		workers:  workers,
		logger:   logger,
		requests: chanx.NewUnbounded[model.ChunkColumnPos](),
		results:  make(chan RawColumn, 64),
	}
}

func (p *GeneratorPool) Workers() int { return p.workers }

// Start launches the workers. Results is closed once they have all exited,
// either because ctx ended or because Close drained the request queue.
func (p *GeneratorPool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(ctx)
		}
		go func() {
			p.wg.Wait()
			close(p.results)
			p.logger.Printf("generator pool stopped")
		}()
	})
}

// Request queues a column. It never blocks. Requests after Close are dropped.
func (p *GeneratorPool) Request(pos model.ChunkColumnPos) {
	p.requests.Send(pos)
}

func (p *GeneratorPool) Results() <-chan RawColumn { return p.results }

// Close stops accepting requests. Queued ones are still generated.
func (p *GeneratorPool) Close() {
	p.closeOnce.Do(p.requests.Close)
}

func (p *GeneratorPool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case pos, ok := <-p.requests.Out():
			if !ok {
				return
			}
			raw := p.generate(pos)
			select {
			case p.results <- raw:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *GeneratorPool) generate(pos model.ChunkColumnPos) (raw RawColumn) {
	raw.Pos = pos
	defer func() {
		if r := recover(); r != nil {
			raw.Levels = nil
			raw.Err = fmt.Errorf("generator panic: %v", r)
		}
	}()
	col, err := store.ColumnFromLines(pos, p.gen.Generate)
	if err != nil {
		raw.Err = err
		return raw
	}
	levels, err := store.EncodeColumn(col)
	if err != nil {
		raw.Err = err
		return raw
	}
	raw.Levels = levels
	return raw
}

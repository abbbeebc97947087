// Package worldhandler is the client side of the column pipeline. One
// goroutine owns the chunk buffer: it turns server messages into lit, meshed
// columns and reports to the main thread over unbounded channels.
package worldhandler

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"voxelcore.ai/internal/protocol"
	"voxelcore.ai/internal/sim/chanx"
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/lighting"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

type Config struct {
	ViewRadius int
	Logger     *log.Logger
}

type editRequest struct {
	x, y, z int
	block   model.Block
}

type Handler struct {
	cfg    Config
	logger *log.Logger

	buf    *store.ChunkBuffer
	light  *lighting.Engine
	mesher Mesher

	inbound  <-chan protocol.Message
	outbound *chanx.Unbounded[protocol.Message]
	updates  *chanx.Unbounded[Update]
	centers  *chanx.Unbounded[model.ChunkColumnPos]
	edits    *chanx.Unbounded[editRequest]

	discarded uint64
}

// New builds a handler reading server messages from inbound. kinds supplies
// emission and water data for lighting.
func New(cfg Config, kinds lighting.KindInfo, mesher Mesher, inbound <-chan protocol.Message) *Handler {
	if cfg.ViewRadius <= 0 {
		cfg.ViewRadius = 6
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[handler] ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Handler{
		cfg:      cfg,
		logger:   logger,
		buf:      store.NewChunkBuffer(),
		light:    lighting.New(kinds),
		mesher:   mesher,
		inbound:  inbound,
		outbound: chanx.NewUnbounded[protocol.Message](),
		updates:  chanx.NewUnbounded[Update](),
		centers:  chanx.NewUnbounded[model.ChunkColumnPos](),
		edits:    chanx.NewUnbounded[editRequest](),
	}
}

// Outbound carries messages for the server. It is closed when Run returns.
func (h *Handler) Outbound() <-chan protocol.Message { return h.outbound.Out() }

// SetCenter moves the view square. Safe from any goroutine; ignored once Run
// has returned.
func (h *Handler) SetCenter(p model.ChunkColumnPos) { h.centers.Send(p) }

// RequestEdit asks the server to place b. The local buffer only changes when
// the server echoes the edit back.
func (h *Handler) RequestEdit(x, y, z int, b model.Block) {
	h.edits.Send(editRequest{x: x, y: y, z: z, block: b})
}

// Poll returns every update produced since the last call without blocking.
func (h *Handler) Poll() []Update {
	var out []Update
	for {
		select {
		case u, ok := <-h.updates.Out():
			if !ok {
				return out
			}
			out = append(out, u)
		default:
			return out
		}
	}
}

// Run owns the buffer until ctx ends or the inbound channel closes. A
// malformed column or a server Disconnect ends it with an error.
func (h *Handler) Run(ctx context.Context) error {
	defer h.outbound.Close()
	defer h.updates.Close()
	defer h.stopInputs()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-h.inbound:
			if !ok {
				h.logger.Printf("inbound channel closed; handler exiting")
				return nil
			}
			if err := h.handleMessage(m); err != nil {
				return err
			}
		case p := <-h.centers.Out():
			h.recenter(p)
		case e := <-h.edits.Out():
			h.forwardEdit(e)
		}
	}
}

// stopInputs refuses further SetCenter and RequestEdit calls and discards
// whatever was still queued.
func (h *Handler) stopInputs() {
	h.centers.Close()
	h.edits.Close()
	for range h.centers.Out() {
	}
	for range h.edits.Out() {
	}
}

func (h *Handler) handleMessage(m protocol.Message) error {
	switch v := m.(type) {
	case protocol.ChunkColumn:
		return h.receiveColumn(v)
	case protocol.SetBlock:
		h.applyEdit(int(v.X), int(v.Y), int(v.Z), v.Block)
	case protocol.Disconnect:
		return fmt.Errorf("server disconnect: %s", v.Code)
	default:
		h.logger.Printf("warn: ignoring unexpected %s from server", m.Tag())
	}
	return nil
}

func (h *Handler) emit(u Update) { h.updates.Send(u) }

// recenter unsubscribes and evicts columns outside the view square and
// subscribes to the missing ones, nearest first.
func (h *Handler) recenter(c model.ChunkColumnPos) {
	r := h.cfg.ViewRadius

	var drop []model.ChunkColumnPos
	for _, p := range h.buf.Positions() {
		if p.ChebyshevDistance(c) > r {
			drop = append(drop, p)
		}
	}
	for _, p := range drop {
		h.buf.RemoveColumn(p)
		h.emit(StatusChange{Pos: p, Evicted: true})
	}

	var want []model.ChunkColumnPos
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			p := c.Add(dx, dy)
			if h.buf.Column(p) != nil {
				continue
			}
			col := store.NewChunkColumn(p)
			col.Advance(store.StatusRequested)
			h.buf.StoreColumn(col)
			want = append(want, p)
		}
	}
	sort.SliceStable(want, func(i, j int) bool {
		return want[i].ChebyshevDistance(c) < want[j].ChebyshevDistance(c)
	})
	for _, p := range want {
		h.emit(StatusChange{Pos: p, Status: store.StatusRequested})
	}

	for _, batch := range batches(drop) {
		h.outbound.Send(protocol.Unsubscribe{Columns: batch})
	}
	for _, batch := range batches(want) {
		h.outbound.Send(protocol.Subscribe{Columns: batch})
	}
}

func batches(ps []model.ChunkColumnPos) [][]model.ChunkColumnPos {
	var out [][]model.ChunkColumnPos
	for len(ps) > 0 {
		n := len(ps)
		if n > protocol.MaxColumnsPerMessage {
			n = protocol.MaxColumnsPerMessage
		}
		out = append(out, ps[:n])
		ps = ps[n:]
	}
	return out
}

func (h *Handler) forwardEdit(e editRequest) {
	if !model.InWorldHeight(e.z) {
		h.logger.Printf("warn: edit at z=%d is outside the world", e.z)
		return
	}
	col := h.buf.Column(model.ColumnPosOf(e.x, e.y))
	if col == nil || col.Status() < store.StatusStored {
		h.logger.Printf("warn: edit at %d,%d,%d targets a column that is not loaded", e.x, e.y, e.z)
		return
	}
	h.outbound.Send(protocol.SetBlock{X: int32(e.x), Y: int32(e.y), Z: int32(e.z), Block: e.block})
}

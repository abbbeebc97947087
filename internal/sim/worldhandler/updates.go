package worldhandler

import (
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

// Update is one handler output for the main thread, delivered in the order it
// was produced: ColumnReady, LightUpdate, MeshUpdate, BlockUpdate or
// StatusChange.
type Update interface {
	isUpdate()
}

// ColumnReady carries a clone of a column that just reached Propagated.
type ColumnReady struct {
	Column *store.ChunkColumn
}

// LightUpdate replaces an already delivered column whose light changed,
// either from an edit or from light spilling in from a newly lit neighbour.
type LightUpdate struct {
	Column *store.ChunkColumn
}

// MeshUpdate replaces every level mesh of a column.
type MeshUpdate struct {
	Pos    model.ChunkColumnPos
	Meshes []*ChunkMesh
}

// BlockUpdate is an applied edit confirmed by the server.
type BlockUpdate struct {
	X, Y, Z int
	Block   model.Block
}

// StatusChange reports a pipeline transition. Evicted columns are gone from
// the handler and should be dropped by the main thread too.
type StatusChange struct {
	Pos     model.ChunkColumnPos
	Status  store.Status
	Evicted bool
}

func (ColumnReady) isUpdate()  {}
func (LightUpdate) isUpdate()  {}
func (MeshUpdate) isUpdate()   {}
func (BlockUpdate) isUpdate()  {}
func (StatusChange) isUpdate() {}

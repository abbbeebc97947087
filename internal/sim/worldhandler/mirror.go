package worldhandler

import (
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

// Mirror is the main thread's copy of the world, built from handler updates.
// Physics and raycasts read it; nothing but Apply writes it.
type Mirror struct {
	buf *store.ChunkBuffer
}

func NewMirror() *Mirror {
	return &Mirror{buf: store.NewChunkBuffer()}
}

// Apply folds updates into the mirror in order.
func (m *Mirror) Apply(updates []Update) {
	for _, u := range updates {
		switch v := u.(type) {
		case ColumnReady:
			m.buf.StoreColumn(v.Column)
		case LightUpdate:
			if m.buf.Column(v.Column.Pos) != nil {
				m.buf.StoreColumn(v.Column)
			}
		case BlockUpdate:
			m.buf.SetBlock(v.X, v.Y, v.Z, v.Block)
		case StatusChange:
			if v.Evicted {
				m.buf.RemoveColumn(v.Pos)
			}
		}
	}
}

func (m *Mirror) GetBlock(x, y, z int) model.Block { return m.buf.GetBlock(x, y, z) }
func (m *Mirror) TopZ(x, y int) (int, bool)        { return m.buf.TopZ(x, y) }
func (m *Mirror) IsLoaded(x, y, z int) bool        { return m.buf.IsLoaded(x, y, z) }
func (m *Mirror) Len() int                         { return m.buf.Len() }

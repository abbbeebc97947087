package world

import (
	"voxelcore.ai/internal/sim/world/terrain/store"
)

// WorldMetrics is a read-only view of the world loop, republished after every
// event it handles.
type WorldMetrics struct {
	GameTime uint64 `json:"gametime"`
	Sessions int    `json:"sessions"`

	LoadedColumns    int            `json:"loaded_columns"`
	ColumnsByStatus  map[string]int `json:"columns_by_status"`
	PendingRequests  int            `json:"pending_requests"`
	DirtyColumns     int            `json:"dirty_columns"`
	CachedRegions    int            `json:"cached_regions"`
	DirtyRegions     int            `json:"dirty_regions"`
	SubscribedCols   int            `json:"subscribed_columns"`
	GeneratedTotal   uint64         `json:"generated_total"`
	LoadedTotal      uint64         `json:"loaded_total"`
	DiscardedTotal   uint64         `json:"discarded_total"`
	GenErrorTotal    uint64         `json:"gen_error_total"`
	PropagatedTotal  uint64         `json:"propagated_total"`
	EditTotal        uint64         `json:"edit_total"`
	EditDroppedTotal uint64         `json:"edit_dropped_total"`
	KickTotal        uint64         `json:"kick_total"`

	QueueDepths QueueDepths `json:"queue_depths"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	m, _ := w.metrics.Load().(WorldMetrics)
	return m
}

func (w *World) publishMetrics() {
	byStatus := map[string]int{}
	for s, n := range w.buf.CountByStatus() {
		byStatus[s.String()] = n
	}
	m := WorldMetrics{
		GameTime:         w.gameTime.Load(),
		Sessions:         len(w.sessions),
		LoadedColumns:    w.buf.Len(),
		ColumnsByStatus:  byStatus,
		PendingRequests:  len(w.requested),
		DirtyColumns:     len(w.dirty),
		SubscribedCols:   len(w.subscribers),
		GeneratedTotal:   w.counters.generated,
		LoadedTotal:      w.counters.loaded,
		DiscardedTotal:   w.counters.discarded,
		GenErrorTotal:    w.counters.genErrors,
		PropagatedTotal:  w.counters.propagated,
		EditTotal:        w.counters.edits,
		EditDroppedTotal: w.counters.editDrops,
		KickTotal:        w.counters.kicks,
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
	}
	if w.store != nil {
		m.CachedRegions = w.store.CachedRegions()
		m.DirtyRegions = w.store.DirtyRegions()
	}
	w.metrics.Store(m)
}

// StatusCount is a convenience for tests and the metrics endpoint.
func (m WorldMetrics) StatusCount(s store.Status) int {
	return m.ColumnsByStatus[s.String()]
}

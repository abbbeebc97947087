package world

import (
	"errors"
	"time"

	"voxelcore.ai/internal/persistence/worldmeta"
)

// save writes every changed column into the superchunk cache, flushes dirty
// regions and rewrites world.json.
func (w *World) save() error {
	var errs []error
	if w.store != nil {
		for _, p := range sortedPositions(w.dirty) {
			col := w.buf.Column(p)
			if col == nil {
				delete(w.dirty, p)
				continue
			}
			if err := w.persist(col); err != nil {
				errs = append(errs, err)
				continue
			}
			delete(w.dirty, p)
		}
		if _, err := w.store.Flush(); err != nil {
			errs = append(errs, err)
		}
		w.store.Trim()
	}
	if w.cfg.MetaDir != "" {
		err := worldmeta.Save(w.cfg.MetaDir, worldmeta.Meta{
			Version:       worldmeta.CurrentVersion,
			Seed:          w.cfg.Seed,
			Generator:     w.cfg.Generator,
			SeaLevel:      w.cfg.SeaLevel,
			GameTime:      w.gameTime.Load(),
			SavedAt:       time.Now().UTC().Format(time.RFC3339),
			PaletteDigest: w.cat.PaletteDigest,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

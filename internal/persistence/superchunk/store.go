package superchunk

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"voxelcore.ai/internal/sim/world/kernel/model"
)

// SaveInfo describes one region file written by Flush.
type SaveInfo struct {
	Region  RegionPos
	Path    string
	Columns int
	Bytes   int64
	SavedAt time.Time
}

// SaveObserver is told about every region written. indexdb implements it.
type SaveObserver interface {
	RecordSuperchunk(info SaveInfo)
}

type cachedRegion struct {
	region   *Region
	dirty    bool
	lastUsed uint64
}

// Store caches regions in memory and writes dirty ones back on Flush. It is
// owned by a single goroutine.
type Store struct {
	dir       string
	maxCached int
	log       *log.Logger
	observer  SaveObserver

	regions map[RegionPos]*cachedRegion
	clock   uint64
}

func NewStore(dir string, maxCached int, logger *log.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("superchunk: empty dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if maxCached <= 0 {
		maxCached = 64
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[superchunk] ", log.LstdFlags)
	}
	return &Store{
		dir:       dir,
		maxCached: maxCached,
		log:       logger,
		regions:   map[RegionPos]*cachedRegion{},
	}, nil
}

func (s *Store) SetObserver(o SaveObserver) { s.observer = o }

func (s *Store) Dir() string { return s.dir }

func (s *Store) Path(r RegionPos) string {
	return filepath.Join(s.dir, r.FileName())
}

// region returns the cached region, reading it from disk on first use. A
// corrupt file is moved aside and the region starts empty.
func (s *Store) region(rp RegionPos) *cachedRegion {
	s.clock++
	if c := s.regions[rp]; c != nil {
		c.lastUsed = s.clock
		return c
	}
	path := s.Path(rp)
	r, err := ReadFile(path, rp)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		r = NewRegion(rp)
	default:
		s.log.Printf("warn: superchunk %s unreadable, treating as empty: %v", path, err)
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		if rerr := os.Rename(path, aside); rerr != nil {
			s.log.Printf("warn: superchunk %s: move aside: %v", path, rerr)
		}
		r = NewRegion(rp)
	}
	c := &cachedRegion{region: r, lastUsed: s.clock}
	s.regions[rp] = c
	return c
}

// LoadColumn returns the stored level buffers of a column, if any.
func (s *Store) LoadColumn(p model.ChunkColumnPos) ([][]byte, bool) {
	c := s.region(RegionOf(p))
	levels, ok := c.region.Columns[p]
	return levels, ok
}

// PutColumn records a column's level buffers. The region is written on the
// next Flush.
func (s *Store) PutColumn(p model.ChunkColumnPos, levels [][]byte) error {
	if len(levels) != model.WorldHeightChunks {
		return fmt.Errorf("superchunk: column %v has %d levels", p, len(levels))
	}
	c := s.region(RegionOf(p))
	c.region.Columns[p] = levels
	c.dirty = true
	return nil
}

// DropColumn forgets a stored column so it is generated again.
func (s *Store) DropColumn(p model.ChunkColumnPos) {
	c := s.region(RegionOf(p))
	if _, ok := c.region.Columns[p]; ok {
		delete(c.region.Columns, p)
		c.dirty = true
	}
}

type FlushStats struct {
	Regions int
	Columns int
	Bytes   int64
}

// Flush writes every dirty region. It keeps going after a failed region and
// returns the first error.
func (s *Store) Flush() (FlushStats, error) {
	var st FlushStats
	var firstErr error
	keys := make([]RegionPos, 0, len(s.regions))
	for k, c := range s.regions {
		if c.dirty {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		return keys[i].Y < keys[j].Y
	})
	for _, k := range keys {
		c := s.regions[k]
		path := s.Path(k)
		n, err := WriteFile(path, c.region)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("write %s: %w", path, err)
			}
			continue
		}
		c.dirty = false
		st.Regions++
		st.Columns += len(c.region.Columns)
		st.Bytes += n
		if s.observer != nil {
			s.observer.RecordSuperchunk(SaveInfo{
				Region:  k,
				Path:    path,
				Columns: len(c.region.Columns),
				Bytes:   n,
				SavedAt: time.Now().UTC(),
			})
		}
	}
	if st.Regions > 0 {
		s.log.Printf("saved %d superchunks (%d columns, %s)", st.Regions, st.Columns, humanize.Bytes(uint64(st.Bytes)))
	}
	return st, firstErr
}

// Trim drops clean regions beyond the cache limit, least recently used first.
func (s *Store) Trim() int {
	if len(s.regions) <= s.maxCached {
		return 0
	}
	clean := make([]RegionPos, 0, len(s.regions))
	for k, c := range s.regions {
		if !c.dirty {
			clean = append(clean, k)
		}
	}
	sort.Slice(clean, func(i, j int) bool {
		return s.regions[clean[i]].lastUsed < s.regions[clean[j]].lastUsed
	})
	dropped := 0
	for _, k := range clean {
		if len(s.regions) <= s.maxCached {
			break
		}
		delete(s.regions, k)
		dropped++
	}
	return dropped
}

func (s *Store) CachedRegions() int { return len(s.regions) }

func (s *Store) DirtyRegions() int {
	n := 0
	for _, c := range s.regions {
		if c.dirty {
			n++
		}
	}
	return n
}

// Package superchunk stores columns on disk grouped into 32x32 regions. Each
// region is one zstd-compressed file.
package superchunk

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"voxelcore.ai/internal/sim/encoding"
	"voxelcore.ai/internal/sim/world/kernel/model"
)

const (
	RegionBits = 5
	RegionSize = 1 << RegionBits
)

// ErrCorrupt marks a region file whose contents cannot be parsed.
var ErrCorrupt = errors.New("corrupt superchunk")

type RegionPos struct {
	X, Y int16
}

func RegionOf(p model.ChunkColumnPos) RegionPos {
	return RegionPos{X: p.X >> RegionBits, Y: p.Y >> RegionBits}
}

func (r RegionPos) FileName() string {
	return fmt.Sprintf("r.%d.%d.sc.zst", r.X, r.Y)
}

func (r RegionPos) Contains(p model.ChunkColumnPos) bool {
	return RegionOf(p) == r
}

// Region holds the encoded columns of one region, keyed by column position.
// Each value is WorldHeightChunks RLE buffers.
type Region struct {
	Pos     RegionPos
	Columns map[model.ChunkColumnPos][][]byte
}

func NewRegion(pos RegionPos) *Region {
	return &Region{Pos: pos, Columns: map[model.ChunkColumnPos][][]byte{}}
}

func (r *Region) sortedPositions() []model.ChunkColumnPos {
	out := make([]model.ChunkColumnPos, 0, len(r.Columns))
	for p := range r.Columns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// Encode writes the uncompressed region body: u16 column count, then per
// column i16 x, i16 y and WorldHeightChunks length-prefixed RLE buffers.
func (r *Region) Encode() ([]byte, error) {
	if len(r.Columns) > 0xFFFF {
		return nil, fmt.Errorf("region %v: %d columns", r.Pos, len(r.Columns))
	}
	out := binary.LittleEndian.AppendUint16(nil, uint16(len(r.Columns)))
	for _, p := range r.sortedPositions() {
		levels := r.Columns[p]
		if len(levels) != model.WorldHeightChunks {
			return nil, fmt.Errorf("region %v: column %v has %d levels", r.Pos, p, len(levels))
		}
		out = binary.LittleEndian.AppendUint16(out, uint16(p.X))
		out = binary.LittleEndian.AppendUint16(out, uint16(p.Y))
		var err error
		out, err = encoding.AppendLengthPrefixed(out, levels)
		if err != nil {
			return nil, fmt.Errorf("region %v: column %v: %w", r.Pos, p, err)
		}
	}
	return out, nil
}

// DecodeRegion parses a region body. Columns that fall outside pos are
// rejected. Level buffers are copied out of body.
func DecodeRegion(pos RegionPos, body []byte) (*Region, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("%w: missing column count", ErrCorrupt)
	}
	n := int(binary.LittleEndian.Uint16(body))
	body = body[2:]
	r := NewRegion(pos)
	for i := 0; i < n; i++ {
		if len(body) < 4 {
			return nil, fmt.Errorf("%w: column %d header truncated", ErrCorrupt, i)
		}
		p := model.ChunkColumnPos{
			X: int16(binary.LittleEndian.Uint16(body[0:2])),
			Y: int16(binary.LittleEndian.Uint16(body[2:4])),
		}
		if !pos.Contains(p) {
			return nil, fmt.Errorf("%w: column %v outside region %v", ErrCorrupt, p, pos)
		}
		levels, rest, err := encoding.ReadLengthPrefixed(body[4:], model.WorldHeightChunks)
		if err != nil {
			return nil, fmt.Errorf("%w: column %v: %v", ErrCorrupt, p, err)
		}
		for j := range levels {
			levels[j] = append([]byte(nil), levels[j]...)
		}
		r.Columns[p] = levels
		body = rest
	}
	if len(body) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(body))
	}
	return r, nil
}

// ReadFile loads and decompresses a region file. A missing file returns
// os.ErrNotExist; unreadable contents wrap ErrCorrupt.
func ReadFile(path string, pos RegionPos) (*Region, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer dec.Close()
	body, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return DecodeRegion(pos, body)
}

// WriteFile compresses r into path through a temp file and rename. It
// returns the compressed size.
func WriteFile(path string, r *Region) (int64, error) {
	body, err := r.Encode()
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	bw := bufio.NewWriterSize(f, 256*1024)
	enc, err := zstd.NewWriter(bw, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return 0, err
	}
	if _, err := enc.Write(body); err != nil {
		_ = enc.Close()
		_ = f.Close()
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return 0, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return st.Size(), nil
}

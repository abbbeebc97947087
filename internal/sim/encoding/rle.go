package encoding

import (
	"encoding/binary"
	"errors"
	"fmt"

	"voxelcore.ai/internal/sim/world/kernel/model"
)

// ErrMalformed marks data that cannot be a valid encoding. Callers treat it as
// a stream desync.
var ErrMalformed = errors.New("malformed rle data")

const (
	maxRun  = 0xFFFF
	maxRuns = 0xFFFF
)

// EncodeRLE encodes blocks as a u16 run count followed by either the single
// block value (one run, a solid chunk) or count*(u16 run length, u32 block).
func EncodeRLE(blocks []model.Block) ([]byte, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("encode rle: empty sequence")
	}

	type run struct {
		n int
		b model.Block
	}
	runs := make([]run, 0, 16)
	i := 0
	for i < len(blocks) {
		b := blocks[i]
		n := 1
		for j := i + 1; j < len(blocks) && blocks[j] == b && n < maxRun; j++ {
			n++
		}
		runs = append(runs, run{n: n, b: b})
		i += n
	}
	if len(runs) > maxRuns {
		return nil, fmt.Errorf("encode rle: %d runs exceeds %d", len(runs), maxRuns)
	}

	if len(runs) == 1 {
		return EncodeSolid(runs[0].b), nil
	}

	out := make([]byte, 2, 2+len(runs)*6)
	binary.LittleEndian.PutUint16(out, uint16(len(runs)))
	var tmp [6]byte
	for _, r := range runs {
		binary.LittleEndian.PutUint16(tmp[0:2], uint16(r.n))
		binary.LittleEndian.PutUint32(tmp[2:6], uint32(r.b))
		out = append(out, tmp[:]...)
	}
	return out, nil
}

// EncodeSolid is the single-run form used for solid and uninitialized chunks.
func EncodeSolid(b model.Block) []byte {
	out := make([]byte, 6)
	binary.LittleEndian.PutUint16(out[0:2], 1)
	binary.LittleEndian.PutUint32(out[2:6], uint32(b))
	return out
}

// SolidRLE reports whether data is the single-run form and returns its block.
func SolidRLE(data []byte) (model.Block, bool) {
	if len(data) != 6 || binary.LittleEndian.Uint16(data[0:2]) != 1 {
		return 0, false
	}
	return model.Block(binary.LittleEndian.Uint32(data[2:6])), true
}

// DecodeRLE is the strict inverse of EncodeRLE for a sequence of n blocks.
func DecodeRLE(data []byte, n int) ([]model.Block, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: non-positive length %d", ErrMalformed, n)
	}
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: missing run count", ErrMalformed)
	}
	count := int(binary.LittleEndian.Uint16(data[0:2]))
	data = data[2:]

	if count == 0 {
		return nil, fmt.Errorf("%w: zero runs", ErrMalformed)
	}
	if count == 1 {
		if len(data) != 4 {
			return nil, fmt.Errorf("%w: solid form has %d body bytes", ErrMalformed, len(data))
		}
		b := model.Block(binary.LittleEndian.Uint32(data))
		out := make([]model.Block, n)
		for i := range out {
			out[i] = b
		}
		return out, nil
	}

	if len(data) != count*6 {
		return nil, fmt.Errorf("%w: %d runs need %d bytes, have %d", ErrMalformed, count, count*6, len(data))
	}
	out := make([]model.Block, 0, n)
	for k := 0; k < count; k++ {
		off := k * 6
		run := int(binary.LittleEndian.Uint16(data[off : off+2]))
		b := model.Block(binary.LittleEndian.Uint32(data[off+2 : off+6]))
		if run == 0 {
			return nil, fmt.Errorf("%w: zero-length run %d", ErrMalformed, k)
		}
		if len(out)+run > n {
			return nil, fmt.Errorf("%w: runs exceed %d blocks", ErrMalformed, n)
		}
		for j := 0; j < run; j++ {
			out = append(out, b)
		}
	}
	if len(out) != n {
		return nil, fmt.Errorf("%w: decoded %d blocks, want %d", ErrMalformed, len(out), n)
	}
	return out, nil
}

// AppendLengthPrefixed writes each buffer as u16 length + bytes.
func AppendLengthPrefixed(dst []byte, bufs [][]byte) ([]byte, error) {
	var tmp [2]byte
	for i, b := range bufs {
		if len(b) > 0xFFFF {
			return nil, fmt.Errorf("buffer %d too large: %d bytes", i, len(b))
		}
		binary.LittleEndian.PutUint16(tmp[:], uint16(len(b)))
		dst = append(dst, tmp[:]...)
		dst = append(dst, b...)
	}
	return dst, nil
}

// ReadLengthPrefixed reads count u16-length-prefixed buffers from data and
// returns them along with the unread remainder. The returned buffers alias data.
func ReadLengthPrefixed(data []byte, count int) ([][]byte, []byte, error) {
	out := make([][]byte, count)
	for i := 0; i < count; i++ {
		if len(data) < 2 {
			return nil, nil, fmt.Errorf("%w: buffer %d missing length", ErrMalformed, i)
		}
		l := int(binary.LittleEndian.Uint16(data[0:2]))
		data = data[2:]
		if len(data) < l {
			return nil, nil, fmt.Errorf("%w: buffer %d truncated (%d/%d)", ErrMalformed, i, len(data), l)
		}
		out[i] = data[:l:l]
		data = data[l:]
	}
	return out, data, nil
}

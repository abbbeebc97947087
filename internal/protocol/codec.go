package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"voxelcore.ai/internal/sim/world/kernel/model"
)

// ErrMalformed marks a frame that cannot be decoded. The stream is out of sync
// and the connection must be closed.
var ErrMalformed = errors.New("malformed message")

// MaxColumnsPerMessage bounds Subscribe and Unsubscribe lists.
const MaxColumnsPerMessage = 0xFFFF

// Encode serializes m as its tag byte followed by a little-endian body.
func Encode(m Message) ([]byte, error) {
	out := []byte{byte(m.Tag())}
	var err error
	switch v := m.(type) {
	case Hello:
		out = binary.LittleEndian.AppendUint16(out, v.Version)
		out, err = appendString(out, v.Name)
	case Welcome:
		out = append(out, v.SessionID[:]...)
		out = binary.LittleEndian.AppendUint64(out, uint64(v.Seed))
		out = append(out, v.ViewRadius)
	case ChunkColumn:
		if len(v.BlockData) != model.WorldHeightChunks {
			return nil, fmt.Errorf("chunk column %v: %d levels, want %d", v.Pos, len(v.BlockData), model.WorldHeightChunks)
		}
		out = appendPos(out, v.Pos)
		for i, b := range v.BlockData {
			if len(b) > 0xFFFF {
				return nil, fmt.Errorf("chunk column %v: level %d is %d bytes", v.Pos, i, len(b))
			}
			out = binary.LittleEndian.AppendUint16(out, uint16(len(b)))
			out = append(out, b...)
		}
	case SetBlock:
		out = binary.LittleEndian.AppendUint32(out, uint32(v.X))
		out = binary.LittleEndian.AppendUint32(out, uint32(v.Y))
		out = binary.LittleEndian.AppendUint32(out, uint32(v.Z))
		out = binary.LittleEndian.AppendUint32(out, uint32(v.Block))
	case Subscribe:
		out, err = appendPositions(out, v.Columns)
	case Unsubscribe:
		out, err = appendPositions(out, v.Columns)
	case Disconnect:
		out, err = appendString(out, v.Code)
	default:
		return nil, fmt.Errorf("encode: unsupported message %T", m)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Tag(), err)
	}
	return out, nil
}

// Decode parses one frame. Any failure wraps ErrMalformed.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformed)
	}
	tag := Tag(data[0])
	r := &reader{b: data[1:]}
	var m Message
	switch tag {
	case TagHello:
		m = Hello{Version: r.u16(), Name: r.str()}
	case TagWelcome:
		var w Welcome
		copy(w.SessionID[:], r.take(16))
		w.Seed = int64(r.u64())
		w.ViewRadius = r.u8()
		m = w
	case TagChunkColumn:
		c := ChunkColumn{Pos: r.pos(), BlockData: make([][]byte, model.WorldHeightChunks)}
		for i := range c.BlockData {
			n := int(r.u16())
			c.BlockData[i] = append([]byte(nil), r.take(n)...)
		}
		m = c
	case TagSetBlock:
		m = SetBlock{
			X:     int32(r.u32()),
			Y:     int32(r.u32()),
			Z:     int32(r.u32()),
			Block: model.Block(r.u32()),
		}
	case TagSubscribe:
		m = Subscribe{Columns: r.positions()}
	case TagUnsubscribe:
		m = Unsubscribe{Columns: r.positions()}
	case TagDisconnect:
		m = Disconnect{Code: r.str()}
	default:
		return nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrMalformed, byte(tag))
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, tag, r.err)
	}
	if len(r.b) != 0 {
		return nil, fmt.Errorf("%w: %s: %d trailing bytes", ErrMalformed, tag, len(r.b))
	}
	return m, nil
}

func appendString(out []byte, s string) ([]byte, error) {
	if len(s) > 0xFFFF {
		return nil, fmt.Errorf("string of %d bytes", len(s))
	}
	out = binary.LittleEndian.AppendUint16(out, uint16(len(s)))
	return append(out, s...), nil
}

func appendPos(out []byte, p model.ChunkColumnPos) []byte {
	out = binary.LittleEndian.AppendUint16(out, uint16(p.X))
	return binary.LittleEndian.AppendUint16(out, uint16(p.Y))
}

func appendPositions(out []byte, ps []model.ChunkColumnPos) ([]byte, error) {
	if len(ps) > MaxColumnsPerMessage {
		return nil, fmt.Errorf("%d columns", len(ps))
	}
	out = binary.LittleEndian.AppendUint16(out, uint16(len(ps)))
	for _, p := range ps {
		out = appendPos(out, p)
	}
	return out, nil
}

// reader consumes a body and remembers the first short read.
type reader struct {
	b   []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = fmt.Errorf("need %d bytes, have %d", n, len(r.b))
		r.b = nil
		return nil
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) str() string {
	n := int(r.u16())
	return string(r.take(n))
}

func (r *reader) pos() model.ChunkColumnPos {
	return model.ChunkColumnPos{X: int16(r.u16()), Y: int16(r.u16())}
}

func (r *reader) positions() []model.ChunkColumnPos {
	n := int(r.u16())
	if r.err == nil && len(r.b) < 4*n {
		r.err = fmt.Errorf("%d columns need %d bytes, have %d", n, 4*n, len(r.b))
		return nil
	}
	out := make([]model.ChunkColumnPos, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.pos())
	}
	return out
}

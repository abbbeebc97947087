package protocol

import (
	"github.com/google/uuid"

	"voxelcore.ai/internal/sim/world/kernel/model"
)

// Version is the wire protocol version carried in Hello.
const Version uint16 = 1

// Tag is the discriminant byte that starts every frame.
type Tag byte

const (
	TagHello       Tag = 0x00
	TagWelcome     Tag = 0x01
	TagChunkColumn Tag = 0x02
	TagSetBlock    Tag = 0x03
	TagSubscribe   Tag = 0x04
	TagUnsubscribe Tag = 0x05
	TagDisconnect  Tag = 0x06
)

func (t Tag) String() string {
	switch t {
	case TagHello:
		return "HELLO"
	case TagWelcome:
		return "WELCOME"
	case TagChunkColumn:
		return "CHUNK_COLUMN"
	case TagSetBlock:
		return "SET_BLOCK"
	case TagSubscribe:
		return "SUBSCRIBE"
	case TagUnsubscribe:
		return "UNSUBSCRIBE"
	case TagDisconnect:
		return "DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// Message is one of the types below and nothing else.
type Message interface {
	Tag() Tag
	isMessage()
}

// Hello (client -> server)
type Hello struct {
	Version uint16
	Name    string
}

// Welcome (server -> client)
type Welcome struct {
	SessionID  uuid.UUID
	Seed       int64
	ViewRadius uint8
}

// ChunkColumn (server -> client) carries one RLE buffer per height level.
type ChunkColumn struct {
	Pos       model.ChunkColumnPos
	BlockData [][]byte
}

// SetBlock (both directions). From a client it is a request; from the server
// it is the applied edit.
type SetBlock struct {
	X, Y, Z int32
	Block   model.Block
}

// Subscribe (client -> server)
type Subscribe struct {
	Columns []model.ChunkColumnPos
}

// Unsubscribe (client -> server)
type Unsubscribe struct {
	Columns []model.ChunkColumnPos
}

// Disconnect (server -> client) precedes closing the connection.
type Disconnect struct {
	Code string
}

func (Hello) Tag() Tag       { return TagHello }
func (Welcome) Tag() Tag     { return TagWelcome }
func (ChunkColumn) Tag() Tag { return TagChunkColumn }
func (SetBlock) Tag() Tag    { return TagSetBlock }
func (Subscribe) Tag() Tag   { return TagSubscribe }
func (Unsubscribe) Tag() Tag { return TagUnsubscribe }
func (Disconnect) Tag() Tag  { return TagDisconnect }

func (Hello) isMessage()       {}
func (Welcome) isMessage()     {}
func (ChunkColumn) isMessage() {}
func (SetBlock) isMessage()    {}
func (Subscribe) isMessage()   {}
func (Unsubscribe) isMessage() {}
func (Disconnect) isMessage()  {}

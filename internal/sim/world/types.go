package world

import (
	"time"

	"github.com/google/uuid"

	"voxelcore.ai/internal/protocol"
)

type Config struct {
	Seed             int64
	Generator        string
	SeaLevel         int
	ViewRadius       int
	MaxSubscriptions int
	TickRateHz       int
	SaveInterval     time.Duration

	// MetaDir receives world.json on every save. Empty disables it.
	MetaDir string
	// GameTime resumes the clock from a previous run.
	GameTime uint64

	RateLimits RateLimitConfig
}

type RateLimitConfig struct {
	SetBlockPerSec  float64
	SetBlockBurst   int
	SubscribePerSec float64
	SubscribeBurst  int
}

// JoinRequest registers a connection. Out receives encoded frames; Kick
// receives a disconnect code when the world drops the session on its own.
type JoinRequest struct {
	Name string
	Out  chan []byte
	Kick chan string
	Resp chan JoinResponse
}

type JoinResponse struct {
	SessionID uuid.UUID
	Welcome   protocol.Welcome
}

// Envelope is one decoded client message.
type Envelope struct {
	SessionID uuid.UUID
	Msg       protocol.Message
}

// EditEntry is the audit record of one applied block edit.
type EditEntry struct {
	Time     string `json:"time"`
	GameTime uint64 `json:"gametime"`
	Session  string `json:"session"`
	Name     string `json:"name"`
	Pos      [3]int `json:"pos"`
	From     uint32 `json:"from"`
	To       uint32 `json:"to"`
	Touched  int    `json:"touched_chunks"`
}

type EditLogger interface {
	WriteEdit(entry EditEntry) error
}

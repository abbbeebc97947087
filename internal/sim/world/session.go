package world

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"voxelcore.ai/internal/protocol"
	"voxelcore.ai/internal/sim/world/kernel/model"
)

type session struct {
	id   uuid.UUID
	name string
	out  chan []byte
	kick chan string

	subs map[model.ChunkColumnPos]struct{}

	editLimiter *rate.Limiter
	subLimiter  *rate.Limiter
}

func limiter(perSec float64, burst int) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}

func (w *World) handleJoin(req JoinRequest) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "player"
	}
	s := &session{
		id:          uuid.New(),
		name:        name,
		out:         req.Out,
		kick:        req.Kick,
		subs:        map[model.ChunkColumnPos]struct{}{},
		editLimiter: limiter(w.cfg.RateLimits.SetBlockPerSec, w.cfg.RateLimits.SetBlockBurst),
		subLimiter:  limiter(w.cfg.RateLimits.SubscribePerSec, w.cfg.RateLimits.SubscribeBurst),
	}
	w.sessions[s.id] = s
	w.logger.Printf("join session=%s name=%s", s.id, s.name)

	resp := JoinResponse{
		SessionID: s.id,
		Welcome: protocol.Welcome{
			SessionID:  s.id,
			Seed:       w.cfg.Seed,
			ViewRadius: uint8(w.cfg.ViewRadius),
		},
	}
	if req.Resp != nil {
		select {
		case req.Resp <- resp:
		default:
			w.logger.Printf("warn: join response for %s not delivered", s.id)
		}
	}
}

func (w *World) handleLeave(id uuid.UUID) {
	s := w.sessions[id]
	if s == nil {
		return
	}
	w.logger.Printf("leave session=%s name=%s", s.id, s.name)
	w.dropSession(s)
}

// kick drops a session and tells its connection why.
func (w *World) kick(s *session, code string) {
	if _, ok := w.sessions[s.id]; !ok {
		return
	}
	w.logger.Printf("kick session=%s name=%s code=%s", s.id, s.name, code)
	w.counters.kicks++
	if s.kick != nil {
		select {
		case s.kick <- code:
		default:
		}
	}
	w.dropSession(s)
}

func (w *World) dropSession(s *session) {
	delete(w.sessions, s.id)
	for _, p := range sortedPositions(s.subs) {
		w.unsubscribe(s, p)
	}
}

func (w *World) handleMessage(env Envelope) {
	s := w.sessions[env.SessionID]
	if s == nil {
		return
	}
	switch m := env.Msg.(type) {
	case protocol.Subscribe:
		if !s.subLimiter.Allow() {
			w.kick(s, protocol.ErrRateLimit)
			return
		}
		for _, p := range m.Columns {
			if _, ok := s.subs[p]; ok {
				continue
			}
			if len(s.subs) >= w.cfg.MaxSubscriptions {
				w.kick(s, protocol.ErrTooManyCols)
				return
			}
			w.subscribe(s, p)
			if _, ok := w.sessions[s.id]; !ok {
				return
			}
		}
	case protocol.Unsubscribe:
		for _, p := range m.Columns {
			if _, ok := s.subs[p]; ok {
				w.unsubscribe(s, p)
			}
		}
	case protocol.SetBlock:
		w.handleSetBlock(s, m)
	default:
		w.logger.Printf("warn: session=%s sent %s after handshake", s.id, env.Msg.Tag())
		w.kick(s, protocol.ErrProtoBadRequest)
	}
}

// send queues a frame without blocking. A session that cannot keep up is
// reported to the caller so it can be dropped once iteration is done.
func (w *World) send(s *session, frame []byte) bool {
	select {
	case s.out <- frame:
		return true
	default:
		return false
	}
}

func (w *World) broadcast(p model.ChunkColumnPos, frame []byte) {
	var slow []*session
	for _, s := range w.subscribers[p] {
		if !w.send(s, frame) {
			slow = append(slow, s)
		}
	}
	for _, s := range slow {
		w.kick(s, protocol.ErrSlowClient)
	}
}

package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"voxelcore.ai/internal/protocol"
	"voxelcore.ai/internal/sim/world"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
	readTimeout      = 60 * time.Second
)

type ServerConfig struct {
	// OutQueue is the per-session frame queue. A session whose queue fills
	// is dropped by the world as a slow client.
	OutQueue int
}

type Server struct {
	world *world.World
	log   *log.Logger
	cfg   ServerConfig

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, cfg ServerConfig, logger *log.Logger) *Server {
	if cfg.OutQueue <= 0 {
		cfg.OutQueue = 1024
	}
	return &Server{
		world: w,
		log:   logger,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		out := make(chan []byte, s.cfg.OutQueue)
		kick := make(chan string, 1)
		resp, ok := s.handshake(ctx, conn, out, kick)
		if !ok {
			return
		}
		id := resp.SessionID

		// Writer goroutine. It owns every write after the handshake.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case code := <-kick:
					s.log.Printf("disconnect session=%s code=%s", id, code)
					writeDisconnect(conn, code)
					_ = conn.Close()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Reader loop.
		failed := false
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			typ, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if typ != websocket.BinaryMessage {
				fail(kick, protocol.ErrProtoBadRequest)
				failed = true
				break
			}
			msg, err := protocol.Decode(data)
			if err != nil {
				s.log.Printf("warn: session=%s: %v", id, err)
				fail(kick, protocol.ErrProtoBadRequest)
				failed = true
				break
			}
			select {
			case s.world.Inbox() <- world.Envelope{SessionID: id, Msg: msg}:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}

		// Let a pending Disconnect reach the peer before closing.
		if !failed {
			cancel()
		}
		select {
		case <-writerDone:
		case <-time.After(writeTimeout):
			cancel()
		}
		select {
		case s.world.Leave() <- id:
		case <-time.After(writeTimeout):
			s.log.Printf("warn: leave for session=%s not delivered", id)
		}
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn, out chan []byte, kick chan string) (world.JoinResponse, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return world.JoinResponse{}, false
	}
	msg, err := protocol.Decode(data)
	if err != nil {
		writeDisconnect(conn, protocol.ErrProtoBadRequest)
		return world.JoinResponse{}, false
	}
	hello, ok := msg.(protocol.Hello)
	if !ok {
		writeDisconnect(conn, protocol.ErrProtoBadRequest)
		return world.JoinResponse{}, false
	}
	if hello.Version != protocol.Version {
		s.log.Printf("reject name=%s version=%d", hello.Name, hello.Version)
		writeDisconnect(conn, protocol.ErrProtoVersion)
		return world.JoinResponse{}, false
	}

	jctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	resp, err := s.world.JoinWithContext(jctx, world.JoinRequest{
		Name: hello.Name,
		Out:  out,
		Kick: kick,
	})
	if err != nil {
		writeDisconnect(conn, protocol.ErrShutdown)
		return world.JoinResponse{}, false
	}
	frame, err := protocol.Encode(resp.Welcome)
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err = conn.WriteMessage(websocket.BinaryMessage, frame)
	}
	if err != nil {
		// The world already holds the session.
		s.world.Leave() <- resp.SessionID
		return world.JoinResponse{}, false
	}
	return resp, true
}

// fail hands code to the writer unless the world already queued a kick.
func fail(kick chan string, code string) {
	select {
	case kick <- code:
	default:
	}
}

// writeDisconnect sends a Disconnect frame followed by a close frame.
func writeDisconnect(conn *websocket.Conn, code string) {
	if frame, err := protocol.Encode(protocol.Disconnect{Code: code}); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = conn.WriteMessage(websocket.BinaryMessage, frame)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code),
		time.Now().Add(time.Second))
}

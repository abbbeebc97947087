package ws

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"voxelcore.ai/internal/protocol"
)

// ErrDisconnected is returned by Client.Run when the server sent Disconnect.
var ErrDisconnected = errors.New("disconnected by server")

// Client is one player connection. Server messages after Welcome arrive on
// Inbound, which is closed when the connection ends.
type Client struct {
	conn    *websocket.Conn
	log     *log.Logger
	welcome protocol.Welcome
	in      chan protocol.Message
}

// Dial connects to url and performs the Hello/Welcome handshake.
func Dial(ctx context.Context, url, name string, logger *log.Logger) (*Client, error) {
	d := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		ReadBufferSize:   64 * 1024,
		WriteBufferSize:  64 * 1024,
	}
	conn, _, err := d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{conn: conn, log: logger, in: make(chan protocol.Message, 1024)}
	if err := c.write(protocol.Hello{Version: protocol.Version, Name: name}); err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	msg, err := c.read()
	if err != nil {
		conn.Close()
		return nil, err
	}
	switch m := msg.(type) {
	case protocol.Welcome:
		c.welcome = m
	case protocol.Disconnect:
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrDisconnected, m.Code)
	default:
		conn.Close()
		return nil, fmt.Errorf("expected Welcome, got %s", msg.Tag())
	}
	return c, nil
}

func (c *Client) Welcome() protocol.Welcome { return c.welcome }

func (c *Client) Inbound() <-chan protocol.Message { return c.in }

func (c *Client) Close() error { return c.conn.Close() }

// Run pumps messages until ctx ends, outbound is closed, or the connection
// fails. A Disconnect is delivered on Inbound before Run returns
// ErrDisconnected.
func (c *Client) Run(ctx context.Context, outbound <-chan protocol.Message) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErr := make(chan error, 1)
	go func() {
		defer close(c.in)
		readErr <- c.readLoop(ctx)
		cancel()
	}()

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case m, ok := <-outbound:
			if !ok {
				break loop
			}
			if werr := c.write(m); werr != nil {
				err = werr
				break loop
			}
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.conn.Close()
	if rerr := <-readErr; errors.Is(rerr, ErrDisconnected) {
		return rerr
	}
	return err
}

func (c *Client) readLoop(ctx context.Context) error {
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		msg, err := c.read()
		if err != nil {
			return err
		}
		select {
		case c.in <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
		if d, ok := msg.(protocol.Disconnect); ok {
			if c.log != nil {
				c.log.Printf("server disconnect code=%s", d.Code)
			}
			return fmt.Errorf("%w: %s", ErrDisconnected, d.Code)
		}
	}
}

func (c *Client) read() (protocol.Message, error) {
	typ, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if typ != websocket.BinaryMessage {
		return nil, fmt.Errorf("%w: non-binary frame", protocol.ErrMalformed)
	}
	return protocol.Decode(data)
}

func (c *Client) write(m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

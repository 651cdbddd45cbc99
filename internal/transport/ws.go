package transport

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/distirc/internal/proto"
)

// WSDialer connects to a core exposing the protocol over WebSocket.
// Each WebSocket text message carries one envelope.
type WSDialer struct {
	Timeout time.Duration
	Path    string
	Secure  bool
}

// Dial opens ws://addr/path (or wss://).
func (d *WSDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	scheme := "ws"
	if d.Secure {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: addr, Path: d.Path}

	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(proto.MaxFrameSize)
	return &WSConn{conn: conn}, nil
}

// WSConn adapts a websocket.Conn to Conn.
type WSConn struct {
	conn *websocket.Conn
}

// NewWSConn wraps an accepted or dialed WebSocket.
func NewWSConn(conn *websocket.Conn) *WSConn {
	conn.SetReadLimit(proto.MaxFrameSize)
	return &WSConn{conn: conn}
}

// ReadFrame reads one message and decodes its envelope. Cancelling ctx closes
// the WebSocket, as coder/websocket does for any interrupted read.
func (c *WSConn) ReadFrame(ctx context.Context) (proto.Frame, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		return proto.Frame{}, fmt.Errorf("read frame: %w", err)
	}
	if typ != websocket.MessageText {
		return proto.Frame{}, fmt.Errorf("%w: unexpected binary message", proto.ErrMalformedFrame)
	}
	return proto.DecodeEnvelope(data)
}

// WriteFrame sends f as a JSON text message.
func (c *WSConn) WriteFrame(ctx context.Context, f proto.Frame) error {
	if err := wsjson.Write(ctx, c.conn, f); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close performs a normal closure.
func (c *WSConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

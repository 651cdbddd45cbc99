package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/vovakirdan/distirc/internal/proto"
)

// TCPDialer connects to a core speaking length-prefixed frames over TCP.
type TCPDialer struct {
	Timeout time.Duration
	// TLS enables TLS when non-nil.
	TLS *tls.Config
}

// Dial connects to addr within the dialer timeout.
func (d *TCPDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	nd := &net.Dialer{Timeout: d.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if d.TLS != nil {
		conn, err = (&tls.Dialer{NetDialer: nd, Config: d.TLS}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = nd.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return NewStreamConn(conn), nil
}

// StreamConn frames a net.Conn with the proto stream codec.
type StreamConn struct {
	conn net.Conn

	rmu sync.Mutex
	dec *proto.Decoder

	wmu sync.Mutex
	enc *proto.Encoder
}

// NewStreamConn wraps an established connection.
func NewStreamConn(conn net.Conn) *StreamConn {
	return &StreamConn{
		conn: conn,
		dec:  proto.NewDecoder(conn),
		enc:  proto.NewEncoder(conn),
	}
}

// ReadFrame reads the next frame. The context deadline becomes the socket
// read deadline; cancelling ctx unblocks a pending read immediately. A frame
// interrupted half-way stays buffered for the next call.
func (c *StreamConn) ReadFrame(ctx context.Context) (proto.Frame, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return proto.Frame{}, fmt.Errorf("set read deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	f, err := c.dec.Decode()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return proto.Frame{}, fmt.Errorf("read frame: %w", ctxErr)
		}
		return proto.Frame{}, fmt.Errorf("read frame: %w", err)
	}
	return f, nil
}

// WriteFrame writes one frame.
func (c *StreamConn) WriteFrame(ctx context.Context, f proto.Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := c.enc.Encode(f); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("write frame: %w", ctxErr)
		}
		return err
	}
	return nil
}

// Close closes the socket, failing any blocked read or write.
func (c *StreamConn) Close() error {
	return c.conn.Close()
}

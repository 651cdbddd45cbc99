// Package transport moves protocol frames between the client and the core.
//
// Two transports exist: a plain (optionally TLS) TCP stream carrying
// length-prefixed frames, and a WebSocket carrying one JSON envelope per
// message. Both honor context cancellation on blocking reads, which is how
// the session worker aborts an in-flight read on shutdown.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/vovakirdan/distirc/internal/config"
	"github.com/vovakirdan/distirc/internal/proto"
)

// Conn is an established connection to the core.
type Conn interface {
	// ReadFrame blocks until a frame arrives, ctx is done or the connection fails.
	ReadFrame(ctx context.Context) (proto.Frame, error)
	// WriteFrame sends a frame. It is safe to call concurrently with ReadFrame
	// and with other writers.
	WriteFrame(ctx context.Context, f proto.Frame) error
	Close() error
}

// Dialer opens connections to a core at addr (host:port).
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// New returns the dialer for the configured transport.
func New(core config.Core, connectTimeout time.Duration) (Dialer, error) {
	switch core.Transport {
	case config.TransportTCP, "":
		d := &TCPDialer{Timeout: connectTimeout}
		if core.TLS {
			d.TLS = &tls.Config{ServerName: core.Host, MinVersion: tls.VersionTLS12}
		}
		return d, nil
	case config.TransportWS, config.TransportWSS:
		return &WSDialer{
			Timeout: connectTimeout,
			Path:    core.Path,
			Secure:  core.Transport == config.TransportWSS,
		}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", core.Transport)
	}
}

package session

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/vovakirdan/distirc/internal/config"
	applog "github.com/vovakirdan/distirc/internal/log"
	"github.com/vovakirdan/distirc/internal/model"
	"github.com/vovakirdan/distirc/internal/proto"
	"github.com/vovakirdan/distirc/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testWait = 5 * time.Second

// mockCore is a scripted core listening on loopback.
type mockCore struct {
	ln    net.Listener
	conns chan *coreConn
	done  chan struct{}
}

type coreConn struct {
	net.Conn
	at  time.Time
	enc *proto.Encoder
	dec *proto.Decoder
}

func startCore(t *testing.T) *mockCore {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	core := &mockCore{ln: ln, conns: make(chan *coreConn, 16), done: make(chan struct{})}

	var accepted []net.Conn
	var mu sync.Mutex
	go func() {
		defer close(core.done)
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			accepted = append(accepted, c)
			mu.Unlock()
			core.conns <- &coreConn{Conn: c, at: time.Now(), enc: proto.NewEncoder(c), dec: proto.NewDecoder(c)}
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		<-core.done
		mu.Lock()
		defer mu.Unlock()
		for _, c := range accepted {
			_ = c.Close()
		}
	})
	return core
}

func (m *mockCore) creds() config.Credentials {
	addr := m.ln.Addr().(*net.TCPAddr)
	return config.Credentials{Host: addr.IP.String(), Port: addr.Port, User: "alice", Pass: "secret"}
}

func testCredentials() config.Credentials {
	return config.Credentials{Host: "127.0.0.1", Port: 1, User: "alice", Pass: "secret"}
}

func (m *mockCore) accept(t *testing.T) *coreConn {
	t.Helper()
	select {
	case c := <-m.conns:
		return c
	case <-time.After(testWait):
		t.Fatalf("no connection from worker")
		return nil
	}
}

func (m *mockCore) expectNoConn(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case c := <-m.conns:
		t.Fatalf("unexpected connection at %s", c.at.Format(time.RFC3339Nano))
	case <-time.After(d):
	}
}

func (c *coreConn) expect(t *testing.T, typ string) proto.Frame {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(testWait))
	f, err := c.dec.Decode()
	if err != nil {
		t.Fatalf("read %s: %v", typ, err)
	}
	if f.Type != typ {
		t.Fatalf("frame type = %q, want %q", f.Type, typ)
	}
	return f
}

func (c *coreConn) send(t *testing.T, typ string, data any) {
	t.Helper()
	f, err := proto.NewFrame(typ, data)
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	if err := c.enc.Encode(f); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// login reads the auth frame and accepts it.
func (c *coreConn) login(t *testing.T, token string) proto.AuthData {
	t.Helper()
	var auth proto.AuthData
	if err := c.expect(t, proto.TypeAuth).Decode(&auth); err != nil {
		t.Fatalf("decode auth: %v", err)
	}
	c.send(t, proto.TypeAuthResult, proto.AuthResultData{OK: true, Token: token})
	return auth
}

func (c *coreConn) sendLine(t *testing.T, channel, from, text string) {
	t.Helper()
	c.send(t, proto.TypeLine, proto.LineDeltaData{
		Target: proto.Target{Kind: "channel", Name: channel},
		Line:   proto.LineData{TS: time.Now().UnixMilli(), Type: proto.LineMessage, From: from, Text: text},
	})
}

func testSession() config.Session {
	cfg := config.DefaultSession()
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ReadTimeout = testWait
	cfg.KeepaliveInterval = 0
	cfg.BackoffMin = 200 * time.Millisecond
	cfg.BackoffMax = time.Second
	cfg.AuthRetries = 0
	cfg.CommandRate = 0
	return cfg
}

type harness struct {
	w      *Worker
	reg    *model.Registry
	states chan State
	stop   func() error
}

func newHarness(t *testing.T, cfg config.Session, creds config.Credentials, opts ...Option) *harness {
	t.Helper()
	reg := model.NewRegistry()
	_, status := reg.Get(model.StatusKey())
	logger := applog.NewBuffer(status, "info")

	h := &harness{reg: reg, states: make(chan State, 256)}
	opts = append([]Option{
		WithBackoffSeed(1),
		WithStateHook(func(s State) {
			select {
			case h.states <- s:
			default:
			}
		}),
	}, opts...)
	h.w = NewWorker(cfg, creds, &transport.TCPDialer{Timeout: time.Second}, reg, logger, opts...)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.w.Run(ctx) }()

	var once sync.Once
	var result error
	h.stop = func() error {
		once.Do(func() {
			cancel()
			select {
			case result = <-done:
			case <-time.After(testWait):
				t.Errorf("worker did not stop")
			}
		})
		return result
	}
	t.Cleanup(func() { _ = h.stop() })
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	timeout := time.After(testWait)
	for {
		select {
		case s := <-h.states:
			if s == want {
				return
			}
		case <-timeout:
			t.Fatalf("worker never reached %s (now %s)", want, h.w.State())
		}
	}
}

// statusTexts returns the text of every status buffer line.
func (h *harness) statusTexts() []string {
	snap, _ := h.reg.Snapshot(model.StatusKey())
	var out []string
	for _, l := range snap.Lines {
		if m, ok := l.Data.(model.Message); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (h *harness) countStatus(substr string) int {
	n := 0
	for _, s := range h.statusTexts() {
		if strings.Contains(s, substr) {
			n++
		}
	}
	return n
}

func bufferTexts(reg *model.Registry, key model.BufKey) []string {
	snap, ok := reg.Snapshot(key)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		if m, ok := l.Data.(model.Message); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testWait)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

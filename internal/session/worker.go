package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/distirc/internal/config"
	"github.com/vovakirdan/distirc/internal/model"
	"github.com/vovakirdan/distirc/internal/proto"
	"github.com/vovakirdan/distirc/internal/transport"
)

const archiveTimeout = 2 * time.Second

// Archive persists lines routed into buffers.
type Archive interface {
	SaveLine(ctx context.Context, key model.BufKey, line model.Line) error
}

// Option customizes a Worker.
type Option func(*Worker)

// WithArchive stores every routed line in a.
func WithArchive(a Archive) Option {
	return func(w *Worker) { w.archive = a }
}

// WithStateHook calls fn on every state transition, from the worker goroutine.
// fn must not block.
func WithStateHook(fn func(State)) Option {
	return func(w *Worker) { w.hook = fn }
}

// WithBackoffSeed makes reconnect jitter reproducible.
func WithBackoffSeed(seed uint64) Option {
	return func(w *Worker) { w.backoff = NewBackoff(w.cfg.BackoffMin, w.cfg.BackoffMax, seed) }
}

// Worker owns the connection to the core. It routes inbound lines into the
// registry and forwards queued commands once the session is ready.
type Worker struct {
	// Commands receives user commands. Closing it shuts the worker down.
	Commands chan Command

	cfg      config.Session
	dialer   transport.Dialer
	reg      *model.Registry
	log      *zerolog.Logger
	archive  Archive
	hook     func(State)
	clientID string
	limiter  *rate.Limiter
	backoff  *Backoff
	retry    chan struct{}

	mu         sync.Mutex
	creds      config.Credentials
	state      State
	serverName string

	// Owned by Run; the Ready goroutines only touch them while Run waits.
	pending      []Command
	authFailures int
	token        string
	lastNotice   string
	archiveErr   string
}

// NewWorker prepares a worker. Nothing happens until Run is called.
func NewWorker(cfg config.Session, creds config.Credentials, dialer transport.Dialer, reg *model.Registry, logger *zerolog.Logger, opts ...Option) *Worker {
	queue := cfg.CommandQueue
	if queue < 1 {
		queue = 1
	}
	limit := rate.Inf
	if cfg.CommandRate > 0 {
		limit = rate.Limit(cfg.CommandRate)
	}
	burst := cfg.CommandBurst
	if burst < 1 {
		burst = 1
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	w := &Worker{
		Commands: make(chan Command, queue),
		cfg:      cfg,
		dialer:   dialer,
		reg:      reg,
		log:      logger,
		clientID: uuid.NewString(),
		limiter:  rate.NewLimiter(limit, burst),
		backoff:  NewBackoff(cfg.BackoffMin, cfg.BackoffMax, uint64(time.Now().UnixNano())),
		retry:    make(chan struct{}, 1),
		creds:    creds,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns the current state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// ServerName returns the network name announced by the core, if any.
func (w *Worker) ServerName() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.serverName
}

// Submit queues a command without blocking. Submit must not be called after
// Commands has been closed.
func (w *Worker) Submit(cmd Command) error {
	select {
	case w.Commands <- cmd:
		return nil
	default:
		w.log.Warn().Str("target", cmd.Target.String()).Msg("command queue full, dropping command")
		return ErrQueueFull
	}
}

// Reconnect replaces the credentials, resets the authentication retry budget
// and wakes the worker if it is parked or backing off.
func (w *Worker) Reconnect(creds config.Credentials) {
	w.mu.Lock()
	w.creds = creds
	w.mu.Unlock()

	select {
	case w.retry <- struct{}{}:
	default:
	}
}

// Run drives the state machine until ctx is cancelled or Commands is closed,
// both of which return nil. A non-nil error means client state is corrupt.
func (w *Worker) Run(ctx context.Context) error {
	defer w.setState(StateShutdown)
	w.setState(StateDisconnected)

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := w.connect(ctx)
		if errors.Is(err, errShutdown) || ctx.Err() != nil {
			return nil
		}

		kind, _ := kindOf(err)
		switch kind {
		case KindLocalState:
			w.log.Error().Err(err).Msg("client state corrupted, stopping session")
			return err
		case KindAuth:
			if errors.Is(err, ErrTokenRejected) {
				w.log.Info().Msg("session token rejected, logging in with password")
				continue
			}
			if w.authRejected(err) {
				w.setState(StateDisconnected)
				if !w.wait(ctx, nil) {
					return nil
				}
				continue
			}
		default:
			w.reportFailure(err)
		}

		delay := w.backoff.Next()
		w.setState(StateBackoff)
		w.log.Debug().Dur("delay", delay).Int("attempt", w.backoff.Attempt()).Msg("reconnecting after delay")

		timer := time.NewTimer(delay)
		ok := w.wait(ctx, timer.C)
		timer.Stop()
		if !ok {
			return nil
		}
	}
}

// wait parks until wake fires or Reconnect is called, queueing commands
// meanwhile. It returns false on shutdown.
func (w *Worker) wait(ctx context.Context, wake <-chan time.Time) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case cmd, ok := <-w.Commands:
			if !ok {
				return false
			}
			w.enqueue(cmd)
		case <-wake:
			return true
		case <-w.retry:
			w.authFailures = 0
			w.backoff.Reset()
			return true
		}
	}
}

func (w *Worker) enqueue(cmd Command) {
	if len(w.pending) >= cap(w.Commands) {
		w.log.Warn().Str("target", cmd.Target.String()).Msg("not connected and command queue is full, dropping command")
		return
	}
	w.pending = append(w.pending, cmd)
}

// authRejected reports one rejection and returns true once automatic retries
// are exhausted.
func (w *Worker) authRejected(err error) bool {
	w.authFailures++
	w.lastNotice = ""
	if w.authFailures > w.cfg.AuthRetries {
		w.log.Error().Msg(err.Error() + "; automatic retry disabled until credentials change")
		return true
	}
	w.log.Warn().Int("attempt", w.authFailures).Int("retries", w.cfg.AuthRetries).Msg(err.Error())
	return false
}

// reportFailure logs a connection failure, demoting repeats of the previous
// notice to debug.
func (w *Worker) reportFailure(err error) {
	msg := err.Error()
	if msg == w.lastNotice {
		w.log.Debug().Err(err).Msg("connection attempt failed again")
		return
	}
	w.lastNotice = msg

	kind, _ := kindOf(err)
	ev := w.log.Warn().Err(err)
	if kind == KindProtocol {
		ev.Msg("protocol error from core")
		return
	}
	ev.Msg("connection to core failed")
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	prev := w.state
	w.state = s
	w.mu.Unlock()

	if prev != s {
		w.log.Trace().Stringer("from", prev).Stringer("to", s).Msg("state change")
	}
	if w.hook != nil {
		w.hook(s)
	}
}

func (w *Worker) credentials() config.Credentials {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.creds
}

// connect runs one connection attempt through to its end.
func (w *Worker) connect(ctx context.Context) error {
	creds := w.credentials()
	w.setState(StateConnecting)
	w.log.Debug().Str("addr", creds.Addr()).Msg("connecting to core")

	dctx, cancel := context.WithTimeout(ctx, w.cfg.ConnectTimeout)
	conn, err := w.dialer.Dial(dctx, creds.Addr())
	cancel()
	if err != nil {
		return w.connErr(ctx, "connect", err)
	}
	defer conn.Close()

	w.setState(StateAuthenticating)
	if err := w.authenticate(ctx, conn, creds); err != nil {
		return err
	}

	w.backoff.Reset()
	w.authFailures = 0
	w.lastNotice = ""
	select {
	case <-w.retry:
	default:
	}
	w.setState(StateReady)
	w.log.Info().Str("addr", creds.Addr()).Msg("connected to core")

	return w.ready(ctx, conn)
}

func (w *Worker) connErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return errShutdown
	}
	return classify(op, err)
}

func (w *Worker) authenticate(ctx context.Context, conn transport.Conn, creds config.Credentials) error {
	actx, cancel := context.WithTimeout(ctx, w.cfg.ConnectTimeout)
	defer cancel()

	withToken := tokenUsable(w.token, time.Now())
	data := proto.AuthData{User: creds.User, Protocol: proto.ProtocolVersion, ClientID: w.clientID}
	if withToken {
		data.Token = w.token
	} else {
		data.Pass = creds.Pass
	}
	frame, err := proto.NewFrame(proto.TypeAuth, data)
	if err != nil {
		return &Error{Kind: KindProtocol, Op: "encode auth", Err: err}
	}
	if err := conn.WriteFrame(actx, frame); err != nil {
		return w.connErr(ctx, "send auth", err)
	}

	for {
		f, err := conn.ReadFrame(actx)
		if err != nil {
			return w.connErr(ctx, "await auth result", err)
		}

		switch f.Type {
		case proto.TypeAuthResult:
			var res proto.AuthResultData
			if err := f.Decode(&res); err != nil {
				return malformed("decode auth result", err)
			}
			if res.OK {
				w.token = res.Token
				return nil
			}
			reason := res.Reason
			if reason == "" {
				reason = "no reason given"
			}
			if withToken {
				w.token = ""
				return &Error{Kind: KindAuth, Op: "resume session", Err: fmt.Errorf("%w: %s", ErrTokenRejected, reason)}
			}
			return &Error{Kind: KindAuth, Op: "authenticate " + creds.User, Err: fmt.Errorf("%w: %s", ErrAuthRejected, reason)}
		case proto.TypeControl:
			// keepalives may arrive before the result
			continue
		case proto.TypeAuth, proto.TypeSubscribe, proto.TypeLine, proto.TypeCommand:
			return classify("authenticate", fmt.Errorf("%w %q before auth result", ErrUnexpectedFrame, f.Type))
		default:
			w.log.Debug().Str("type", f.Type).Msg("ignoring frame before auth result")
		}
	}
}

// ready runs the reader and the writer until either fails.
func (w *Worker) ready(ctx context.Context, conn transport.Conn) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.readLoop(gctx, conn) })
	g.Go(func() error { return w.writeLoop(gctx, conn) })

	err := g.Wait()
	if ctx.Err() != nil {
		return errShutdown
	}
	return err
}

func (w *Worker) readLoop(ctx context.Context, conn transport.Conn) error {
	for {
		rctx, cancel := context.WithTimeout(ctx, w.cfg.ReadTimeout)
		f, err := conn.ReadFrame(rctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return classify("read", err)
		}
		if err := w.dispatch(ctx, conn, f); err != nil {
			return err
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, conn transport.Conn, f proto.Frame) error {
	switch f.Type {
	case proto.TypeLine:
		var delta proto.LineDeltaData
		if err := f.Decode(&delta); err != nil {
			return malformed("decode line", err)
		}
		key, err := targetToKey(delta.Target)
		if err != nil {
			return classify("route line", err)
		}
		line, ok := lineFromWire(delta.Line)
		if !ok {
			w.log.Debug().Str("type", delta.Line.Type).Msg("skipping unknown line type")
			return nil
		}
		_, bs := w.reg.Get(key)
		if err := bs.SendBack(line); err != nil {
			return &Error{Kind: KindLocalState, Op: "route line to " + key.String(), Err: err}
		}
		w.archiveLine(ctx, key, line)
	case proto.TypeControl:
		return w.control(ctx, conn, f)
	default:
		w.log.Debug().Str("type", f.Type).Msg("ignoring frame")
	}
	return nil
}

func (w *Worker) control(ctx context.Context, conn transport.Conn, f proto.Frame) error {
	var ctl proto.ControlData
	if err := f.Decode(&ctl); err != nil {
		return malformed("decode control", err)
	}

	switch ctl.Kind {
	case proto.ControlPing:
		pong, err := proto.NewFrame(proto.TypeControl, proto.ControlData{Kind: proto.ControlPong, Value: ctl.Value})
		if err != nil {
			return classify("encode pong", err)
		}
		return w.write(ctx, conn, "pong", pong)
	case proto.ControlSession:
		w.mu.Lock()
		w.serverName = ctl.Name
		w.mu.Unlock()
		_, bs := w.reg.Get(model.ServerKey())
		if err := bs.SetName(ctl.Name); err != nil {
			return &Error{Kind: KindLocalState, Op: "name server buffer", Err: err}
		}
	case proto.ControlBuffer:
		if ctl.Target == nil {
			return classify("buffer control", fmt.Errorf("%w: missing target", ErrUnexpectedFrame))
		}
		key, err := targetToKey(*ctl.Target)
		if err != nil {
			return classify("buffer control", err)
		}
		_, bs := w.reg.Get(key)
		if err := bs.SetName(ctl.Name); err != nil {
			return &Error{Kind: KindLocalState, Op: "name buffer " + key.String(), Err: err}
		}
	case proto.ControlPong:
	default:
		w.log.Debug().Str("kind", ctl.Kind).Msg("ignoring control")
	}
	return nil
}

func (w *Worker) archiveLine(ctx context.Context, key model.BufKey, line model.Line) {
	if w.archive == nil {
		return
	}
	actx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()
	if err := w.archive.SaveLine(actx, key, line); err != nil {
		if msg := err.Error(); msg != w.archiveErr {
			w.archiveErr = msg
			w.log.Warn().Err(err).Str("buffer", key.String()).Msg("failed to archive line")
		}
		return
	}
	w.archiveErr = ""
}

func (w *Worker) writeLoop(ctx context.Context, conn transport.Conn) error {
	if err := w.subscribe(ctx, conn); err != nil {
		return err
	}

	for len(w.pending) > 0 {
		if err := w.send(ctx, conn, w.pending[0]); err != nil {
			return err
		}
		w.pending = w.pending[1:]
	}
	w.pending = nil

	var keepalive <-chan time.Time
	if w.cfg.KeepaliveInterval > 0 {
		ticker := time.NewTicker(w.cfg.KeepaliveInterval)
		defer ticker.Stop()
		keepalive = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-w.Commands:
			if !ok {
				return errShutdown
			}
			if err := w.send(ctx, conn, cmd); err != nil {
				// resend after reconnecting
				w.pending = append(w.pending, cmd)
				return err
			}
		case <-keepalive:
			ping, err := proto.NewFrame(proto.TypeControl, proto.ControlData{Kind: proto.ControlPing})
			if err != nil {
				return classify("encode ping", err)
			}
			if err := w.write(ctx, conn, "ping", ping); err != nil {
				return err
			}
		}
	}
}

// subscribe asks the core for deltas of every buffer we already know.
func (w *Worker) subscribe(ctx context.Context, conn transport.Conn) error {
	var targets []proto.Target
	for _, key := range w.reg.Keys() {
		if key.Kind == model.BufStatus {
			continue
		}
		targets = append(targets, keyToTarget(key))
	}
	if len(targets) == 0 {
		return nil
	}
	frame, err := proto.NewFrame(proto.TypeSubscribe, proto.SubscribeData{Targets: targets})
	if err != nil {
		return classify("encode subscribe", err)
	}
	return w.write(ctx, conn, "subscribe", frame)
}

func (w *Worker) send(ctx context.Context, conn transport.Conn, cmd Command) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}
	frame, err := proto.NewFrame(proto.TypeCommand, proto.CommandData{
		ID:     uuid.NewString(),
		Target: keyToTarget(cmd.Target),
		Text:   cmd.Text,
	})
	if err != nil {
		return classify("encode command", err)
	}
	return w.write(ctx, conn, "send command", frame)
}

func (w *Worker) write(ctx context.Context, conn transport.Conn, op string, f proto.Frame) error {
	wctx, cancel := context.WithTimeout(ctx, w.cfg.ConnectTimeout)
	defer cancel()
	if err := conn.WriteFrame(wctx, f); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return classify(op, err)
	}
	return nil
}

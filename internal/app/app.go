package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/distirc/internal/config"
	applog "github.com/vovakirdan/distirc/internal/log"
	"github.com/vovakirdan/distirc/internal/model"
	"github.com/vovakirdan/distirc/internal/session"
	"github.com/vovakirdan/distirc/internal/store"
	"github.com/vovakirdan/distirc/internal/store/sqlite"
	"github.com/vovakirdan/distirc/internal/transport"
)

// App wires together the buffer registry, the archive and the session worker.
type App struct {
	reg    *model.Registry
	worker *session.Worker
	store  store.LineStore
	log    *zerolog.Logger

	mu    sync.Mutex
	creds config.Credentials
}

// New constructs the application. Archived scrollback is replayed into reg
// before New returns, so the worker subscribes to those buffers on its first
// connection.
func New(ctx context.Context, cfg config.Config, reg *model.Registry, logger *zerolog.Logger) (*App, error) {
	dialer, err := transport.New(cfg.Core, cfg.Session.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("init transport: %w", err)
	}

	a := &App{
		reg:   reg,
		creds: cfg.Core.Credentials(),
		log:   applog.Component(logger, "app"),
	}

	var opts []session.Option
	if cfg.History.Path != "" {
		st, err := sqlite.New(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		a.store = st
		a.log.Debug().Str("path", cfg.History.Path).Msg("archive opened")

		if err := a.restore(ctx, cfg.History.Restore); err != nil {
			a.cleanup()
			return nil, err
		}
		opts = append(opts, session.WithArchive(st))
	}

	a.worker = session.NewWorker(cfg.Session, a.creds, dialer, reg, applog.Component(logger, "session"), opts...)
	return a, nil
}

// restore replays the newest limit lines of every archived buffer.
func (a *App) restore(ctx context.Context, limit int) error {
	if limit <= 0 {
		return nil
	}
	keys, err := a.store.ListBuffers(ctx)
	if err != nil {
		return fmt.Errorf("list archived buffers: %w", err)
	}

	total := 0
	for _, key := range keys {
		recs, err := a.store.ListLines(ctx, key, limit, nil)
		if err != nil {
			return fmt.Errorf("restore %s: %w", key, err)
		}
		_, bs := a.reg.Get(key)
		for _, rec := range recs {
			if err := bs.SendBack(rec.Line); err != nil {
				return fmt.Errorf("restore %s: %w", key, err)
			}
		}
		total += len(recs)
	}
	if total > 0 {
		a.log.Info().Int("lines", total).Int("buffers", len(keys)).Msg("scrollback restored")
	}
	return nil
}

// Run drives the session worker until ctx is cancelled. It returns the
// worker's fatal error, if any.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()
	return a.worker.Run(ctx)
}

// Snapshot returns a copy of the buffer identified by key.
func (a *App) Snapshot(key model.BufKey) (model.Snapshot, bool) {
	return a.reg.Snapshot(key)
}

// Buffers lists known buffers in display order.
func (a *App) Buffers() []model.BufKey {
	return a.reg.Keys()
}

// Submit hands a command to the worker without blocking.
func (a *App) Submit(cmd session.Command) error {
	return a.worker.Submit(cmd)
}

// Reconnect retries now, re-arming a worker parked after rejected logins.
func (a *App) Reconnect() {
	a.mu.Lock()
	creds := a.creds
	a.mu.Unlock()
	a.worker.Reconnect(creds)
}

// State reports the worker's connection state.
func (a *App) State() session.State {
	return a.worker.State()
}

// ApplyConfig takes a reloaded configuration. Changed credentials are handed
// to the worker, which uses them on its next connection attempt. Transport
// and tuning changes need a restart.
func (a *App) ApplyConfig(cfg config.Config) {
	creds := cfg.Core.Credentials()
	a.mu.Lock()
	changed := creds != a.creds
	a.creds = creds
	a.mu.Unlock()
	if !changed {
		return
	}
	a.log.Info().Str("core", creds.String()).Msg("credentials changed, reconnecting")
	a.worker.Reconnect(creds)
}

// cleanup closes the archive.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Debug().Msg("archive closed")
		}
	}
}

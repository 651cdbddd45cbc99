package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/distirc/internal/app"
	"github.com/vovakirdan/distirc/internal/config"
	applog "github.com/vovakirdan/distirc/internal/log"
	"github.com/vovakirdan/distirc/internal/model"
)

type options struct {
	configPath string
	overrides  config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "distirc:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "distirc",
		Short: "Terminal client for a distributed IRC core",
		Long: `distirc connects to an IRC core, keeps per-conversation buffers in memory
and reconnects on its own when the link drops.

Lines typed at the prompt go to the current buffer. Commands:
  /buffer <name>   switch buffer (status, server, #channel or nick)
  /buffers         list buffers
  /join <#chan>    join a channel
  /reconnect       retry now, also after rejected logins
  /quit            exit`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/distirc/config.yaml)")
	f.StringVar(&opts.overrides.LogLevel, "log-level", "", "log level: trace, debug, info, warn or error")
	f.StringVar(&opts.overrides.Core.Host, "host", "", "core host")
	f.IntVarP(&opts.overrides.Core.Port, "port", "p", 0, "core port")
	f.StringVarP(&opts.overrides.Core.User, "user", "u", "", "core user")
	f.StringVar(&opts.overrides.Core.Transport, "transport", "", "tcp, ws or wss")
	f.StringVar(&opts.overrides.History.Path, "history", "", "scrollback archive (sqlite file)")

	return cmd
}

func run(ctx context.Context, opts options) error {
	boot := applog.New("info")
	cfg, path, err := config.Load(boot, opts.configPath)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(opts.overrides)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	reg := model.NewRegistry()
	_, status := reg.Get(model.StatusKey())
	logger, err := applog.Init(status, cfg.LogLevel)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, reg, logger)
	if err != nil {
		return err
	}

	u := newUI(a, os.Stdout, applog.Component(logger, "ui"))
	watcher, err := config.NewWatcher(path, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("config reload disabled")
	} else {
		defer watcher.Close()
		u.watch(watcher, func(next config.Config) {
			next.UpdateFrom(opts.overrides)
			a.ApplyConfig(next)
		})
	}
	logger.Info().Str("core", cfg.Core.Credentials().String()).Str("config", path).Msg("starting")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return u.run(gctx, os.Stdin)
	})
	return g.Wait()
}

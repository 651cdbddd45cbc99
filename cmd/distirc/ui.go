package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/distirc/internal/config"
	"github.com/vovakirdan/distirc/internal/model"
	"github.com/vovakirdan/distirc/internal/session"
)

const (
	redrawInterval = 100 * time.Millisecond
	// backlog is how many lines are printed when switching to a buffer.
	backlog = 50
)

type frontend interface {
	Snapshot(key model.BufKey) (model.Snapshot, bool)
	Buffers() []model.BufKey
	Submit(cmd session.Command) error
	Reconnect()
}

type configSource interface {
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Relevant(ev fsnotify.Event) bool
	Reload() (config.Config, error)
}

// ui is a line-mode front end: it prints new lines of the current buffer and
// turns input into commands.
type ui struct {
	fe  frontend
	out io.Writer
	log *zerolog.Logger

	current model.BufKey
	shown   int

	cfg   configSource
	apply func(config.Config)
}

func newUI(fe frontend, out io.Writer, logger *zerolog.Logger) *ui {
	return &ui{fe: fe, out: out, log: logger, current: model.StatusKey()}
}

// watch makes run reload the configuration when src reports a change.
func (u *ui) watch(src configSource, apply func(config.Config)) {
	u.cfg = src
	u.apply = apply
}

// run serves input until /quit, end of input or ctx cancellation.
func (u *ui) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
	}()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if u.cfg != nil {
		events, errs = u.cfg.Events(), u.cfg.Errors()
	}

	ticker := time.NewTicker(redrawInterval)
	defer ticker.Stop()

	u.redraw()
	for {
		select {
		case <-ctx.Done():
			u.redraw()
			return nil
		case line, ok := <-lines:
			if !ok {
				u.redraw()
				return nil
			}
			if u.handle(line) {
				return nil
			}
			u.redraw()
		case <-ticker.C:
			u.redraw()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if u.cfg.Relevant(ev) {
				u.reloadConfig()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			u.log.Warn().Err(err).Msg("config watcher failed")
		}
	}
}

// handle processes one input line and reports whether the user asked to quit.
func (u *ui) handle(input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return false
	}
	if !strings.HasPrefix(input, "/") {
		u.say(input)
		return false
	}

	name, arg, _ := strings.Cut(input[1:], " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "quit":
		return true
	case "buffers":
		u.listBuffers()
	case "buffer":
		if arg == "" {
			u.notef("usage: /buffer <name>")
			return false
		}
		key := model.ParseBufKey(arg)
		if _, ok := u.fe.Snapshot(key); !ok {
			u.notef("no buffer %s", arg)
			return false
		}
		u.switchTo(key)
	case "join":
		if !strings.HasPrefix(arg, "#") && !strings.HasPrefix(arg, "&") {
			u.notef("usage: /join <#channel>")
			return false
		}
		u.submit(session.Command{Target: model.ServerKey(), Text: "JOIN " + arg})
		u.switchTo(model.ChannelKey(arg))
	case "reconnect":
		u.fe.Reconnect()
		u.notef("reconnecting")
	default:
		u.notef("unknown command /%s", name)
	}
	return false
}

func (u *ui) say(text string) {
	if u.current.Kind == model.BufStatus {
		u.notef("the status buffer does not take input, switch with /buffer")
		return
	}
	u.submit(session.Command{Target: u.current, Text: text})
}

func (u *ui) submit(cmd session.Command) {
	// a full queue is already reported in the status buffer
	if err := u.fe.Submit(cmd); err != nil {
		u.notef("not sent: %v", err)
	}
}

func (u *ui) switchTo(key model.BufKey) {
	u.current = key
	u.shown = 0
	u.notef("now in %s", key.DisplayName())
}

func (u *ui) listBuffers() {
	for _, key := range u.fe.Buffers() {
		snap, _ := u.fe.Snapshot(key)
		mark := " "
		if key == u.current {
			mark = "*"
		}
		label := key.DisplayName()
		if snap.Name != "" && snap.Name != label {
			label += " (" + snap.Name + ")"
		}
		u.notef("%s %s %d lines", mark, label, len(snap.Lines))
	}
}

// redraw prints the lines of the current buffer not printed yet.
func (u *ui) redraw() {
	snap, ok := u.fe.Snapshot(u.current)
	if !ok {
		return
	}
	lines := snap.Lines
	if u.current.Kind == model.BufStatus {
		// log lines are inserted at the front
		lines = slices.Clone(lines)
		slices.Reverse(lines)
	}

	if u.shown == 0 && len(lines) > backlog {
		u.shown = len(lines) - backlog
	}
	if u.shown >= len(lines) {
		return
	}
	for _, l := range lines[u.shown:] {
		fmt.Fprintln(u.out, l.String())
	}
	u.shown = len(lines)
}

func (u *ui) reloadConfig() {
	cfg, err := u.cfg.Reload()
	if err != nil {
		u.log.Warn().Err(err).Msg("config reload failed")
		return
	}
	u.log.Info().Msg("config reloaded")
	if u.apply != nil {
		u.apply(cfg)
	}
}

func (u *ui) notef(format string, args ...any) {
	fmt.Fprintf(u.out, "-!- "+format+"\n", args...)
}

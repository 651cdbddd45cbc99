package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/distirc/internal/model"
)

// ComponentField tags log records with the emitting component.
const ComponentField = "component"

// statusFrom is the sender shown on log lines in the status buffer.
const statusFrom = "status"

var (
	ErrAlreadyInitialized = errors.New("log sink already initialized")
	ErrNotInitialized     = errors.New("log sink not initialized")
)

// FrontSender is the part of a buffer sender the sink needs.
type FrontSender interface {
	SendFront(line model.Line) error
}

var global struct {
	mu     sync.Mutex
	logger *zerolog.Logger
}

// Init binds the process logger to the status buffer. It may be called once;
// later calls return ErrAlreadyInitialized and leave the first binding intact.
func Init(bs FrontSender, level string) (*zerolog.Logger, error) {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.logger != nil {
		return nil, ErrAlreadyInitialized
	}
	global.logger = NewBuffer(bs, level)
	return global.logger, nil
}

// Get returns the logger bound by Init.
func Get() (*zerolog.Logger, error) {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.logger == nil {
		return nil, ErrNotInitialized
	}
	return global.logger, nil
}

// NewBuffer builds a logger whose records land at the top of the buffer behind bs.
func NewBuffer(bs FrontSender, level string) *zerolog.Logger {
	return NewWithWriter(NewBufferWriter(bs), level)
}

// BufferWriter converts zerolog JSON records into status lines inserted with
// SendFront. A poisoned buffer is fatal: the error is handed to the fatal
// hook, which panics unless replaced.
type BufferWriter struct {
	bs    FrontSender
	fatal func(error)
}

// NewBufferWriter returns a writer targeting bs.
func NewBufferWriter(bs FrontSender) *BufferWriter {
	return &BufferWriter{
		bs:    bs,
		fatal: func(err error) { panic(err) },
	}
}

func (w *BufferWriter) Write(p []byte) (int, error) {
	line := model.StatusLine(statusFrom, FormatRecord(p))
	if err := w.bs.SendFront(line); err != nil {
		err = fmt.Errorf("write status line: %w", err)
		w.fatal(err)
		return 0, err
	}
	return len(p), nil
}

// FormatRecord renders one zerolog JSON record as "LEVEL component message key=value...".
func FormatRecord(p []byte) string {
	var rec map[string]any
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return strings.TrimSpace(string(p))
	}

	level := strings.ToUpper(stringField(rec, zerolog.LevelFieldName))
	var b strings.Builder
	fmt.Fprintf(&b, "%5s", level)
	if c := stringField(rec, ComponentField); c != "" {
		b.WriteString(" " + c)
	}
	if msg := stringField(rec, zerolog.MessageFieldName); msg != "" {
		b.WriteString(" " + msg)
	}

	keys := make([]string, 0, len(rec))
	for k := range rec {
		switch k {
		case zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.TimestampFieldName, ComponentField:
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, rec[k])
	}
	return b.String()
}

func stringField(rec map[string]any, key string) string {
	s, _ := rec[key].(string)
	return s
}

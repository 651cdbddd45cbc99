package session

import (
	"errors"
	"fmt"

	"github.com/vovakirdan/distirc/internal/model"
	"github.com/vovakirdan/distirc/internal/proto"
)

// ErrorKind classifies session failures.
type ErrorKind int

const (
	// KindTransport covers DNS, connect, read and write failures.
	KindTransport ErrorKind = iota
	// KindAuth means the core rejected our credentials or token.
	KindAuth
	// KindProtocol means the core sent something we cannot trust.
	KindProtocol
	// KindLocalState means client state is inconsistent. Not recoverable.
	KindLocalState
)

var kindNames = [...]string{
	KindTransport:  "transport",
	KindAuth:       "auth",
	KindProtocol:   "protocol",
	KindLocalState: "local state",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

var (
	ErrQueueFull       = errors.New("command queue full")
	ErrAuthRejected    = errors.New("authentication rejected")
	ErrTokenRejected   = errors.New("session token rejected")
	ErrUnexpectedFrame = errors.New("unexpected frame")

	// errShutdown unwinds the state machine on a stop request.
	errShutdown = errors.New("session shutting down")
)

// Error wraps a session failure with its kind and the operation that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the worker may retry after this error.
func (e *Error) Recoverable() bool {
	return e.Kind != KindLocalState
}

// classify wraps err with the kind implied by its cause.
func classify(op string, err error) *Error {
	kind := KindTransport
	switch {
	case errors.Is(err, proto.ErrMalformedFrame), errors.Is(err, proto.ErrFrameTooLarge), errors.Is(err, ErrUnexpectedFrame):
		kind = KindProtocol
	case errors.Is(err, model.ErrPoisoned):
		kind = KindLocalState
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// malformed reports a payload that failed to decode.
func malformed(op string, err error) *Error {
	return &Error{Kind: KindProtocol, Op: op, Err: fmt.Errorf("%w: %v", proto.ErrMalformedFrame, err)}
}

func kindOf(err error) (ErrorKind, bool) {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind, true
	}
	return 0, false
}

package model

import (
	"errors"
	"slices"
	"sync"
)

// ErrPoisoned is returned by every mutation on a buffer whose lock was held by
// a mutation that panicked. The buffer contents can no longer be trusted.
var ErrPoisoned = errors.New("buffer lock poisoned by an earlier panic")

// Buffer is the ordered line store for one conversation target.
// Lines are only mutated through a BufSender; readers take snapshots.
type Buffer struct {
	key BufKey

	mu       sync.RWMutex
	name     string
	lines    []Line
	scroll   int
	poisoned bool
}

// Snapshot is a point-in-time copy of a buffer.
type Snapshot struct {
	Key    BufKey
	Name   string
	Scroll int
	Lines  []Line
}

// NewBuffer creates an empty buffer and its first sender.
// Buffers shared between goroutines should come from a Registry.
func NewBuffer(key BufKey) (*Buffer, *BufSender) {
	b := &Buffer{key: key, name: key.DisplayName()}
	return b, &BufSender{buf: b}
}

// Key returns the identity of the buffer.
func (b *Buffer) Key() BufKey {
	return b.key
}

// Name returns the current display name.
func (b *Buffer) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

// Len returns the number of lines.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lines)
}

// Snapshot copies the buffer state. The read lock is held only for the copy.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		Key:    b.key,
		Name:   b.name,
		Scroll: b.scroll,
		Lines:  slices.Clone(b.lines),
	}
}

// Tail copies the lines from index from to the end. It returns nil when
// from is past the end.
func (b *Buffer) Tail(from int) []Line {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if from < 0 {
		from = 0
	}
	if from >= len(b.lines) {
		return nil
	}
	return slices.Clone(b.lines[from:])
}

// Sender returns a new write handle for the buffer.
func (b *Buffer) Sender() *BufSender {
	return &BufSender{buf: b}
}

// BufSender is a write handle bound to one Buffer. It is safe for concurrent
// use and may be copied freely; all handles for a buffer share its lock.
type BufSender struct {
	buf *Buffer
}

// Key returns the identity of the target buffer.
func (s *BufSender) Key() BufKey {
	return s.buf.key
}

// SendBack appends line to the end of the buffer.
func (s *BufSender) SendBack(line Line) error {
	return s.mutate(func(b *Buffer) {
		b.lines = append(b.lines, line)
	})
}

// SendFront inserts line at index 0. Status and log lines use it so that they
// show up immediately, at the cost of arrival order.
func (s *BufSender) SendFront(line Line) error {
	return s.mutate(func(b *Buffer) {
		b.lines = slices.Insert(b.lines, 0, line)
	})
}

// SetName changes the buffer's display name.
func (s *BufSender) SetName(name string) error {
	return s.mutate(func(b *Buffer) {
		b.name = name
	})
}

// Poison marks the buffer as corrupted, as a panic inside a mutation would.
// Every later mutation through any sender fails with ErrPoisoned.
func (s *BufSender) Poison() {
	b := s.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	b.poisoned = true
}

// SetScroll sets the scroll offset counted in lines from the bottom.
func (s *BufSender) SetScroll(offset int) error {
	if offset < 0 {
		offset = 0
	}
	return s.mutate(func(b *Buffer) {
		b.scroll = offset
	})
}

func (s *BufSender) mutate(fn func(b *Buffer)) error {
	b := s.buf
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.poisoned {
		return ErrPoisoned
	}
	defer func() {
		if r := recover(); r != nil {
			b.poisoned = true
			panic(r)
		}
	}()

	fn(b)
	return nil
}

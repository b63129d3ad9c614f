package capture

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/HrishitaRaj/smriti-ai/common/spec/memory"
)

// EntryKind is the type of a session log line.
type EntryKind int

const (
	// EntryMemory is the optimistic "Saved memory" line shown as soon as a
	// save starts.
	EntryMemory EntryKind = iota
	// EntryNotice is informational, e.g. the remote store was unreachable.
	EntryNotice
	// EntryError is a visible, non-blocking failure.
	EntryError
)

// Entry is one line of the caller-visible session log.
type Entry struct {
	Seq     uint64
	Kind    EntryKind
	Text    string
	At      time.Time
	TraceID string
	// Record is set on EntryMemory lines.
	Record *memory.Record
}

// SessionLog is the in-memory, append-only log a chat surface renders.
// Observers run synchronously after the entry has been stored, outside the
// lock, in subscription order.
type SessionLog struct {
	logger *slog.Logger

	mu        sync.Mutex
	entries   []Entry
	seq       uint64
	observers map[uint64]func(Entry)
	nextObs   uint64
}

// NewSessionLog returns an empty log. A nil logger uses slog.Default().
func NewSessionLog(logger *slog.Logger) *SessionLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionLog{logger: logger, observers: make(map[uint64]func(Entry))}
}

// Append stores e, assigning Seq and (when zero) At.
func (l *SessionLog) Append(e Entry) Entry {
	l.mu.Lock()
	l.seq++
	e.Seq = l.seq
	if e.At.IsZero() {
		e.At = time.Now()
	}
	l.entries = append(l.entries, e)
	ids := make([]uint64, 0, len(l.observers))
	for id := range l.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Entry), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.observers[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		l.deliver(fn, e)
	}
	return e
}

// Entries returns a copy of every entry so far.
func (l *SessionLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Subscribe registers fn and returns a function that removes it.
func (l *SessionLog) Subscribe(fn func(Entry)) (unsubscribe func()) {
	l.mu.Lock()
	id := l.nextObs
	l.nextObs++
	l.observers[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.observers, id)
		l.mu.Unlock()
	}
}

func (l *SessionLog) deliver(fn func(Entry), e Entry) {
	defer func() {
		if p := recover(); p != nil {
			l.logger.Error("session log observer panicked", "panic", p, "seq", e.Seq)
		}
	}()
	fn(e)
}

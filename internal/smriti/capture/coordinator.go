// Package capture turns an utterance into a stored memory. The Coordinator
// resolves the memory's timestamp, shows it in the session log straight
// away, makes one attempt at the remote store and always appends it to the
// local durable cache, then reports how far the save got.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HrishitaRaj/smriti-ai/common/spec/memory"
	"github.com/HrishitaRaj/smriti-ai/common/trace"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/observability"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/temporal"
)

// ErrEmptyMemory is returned by AddMemory for blank text.
var ErrEmptyMemory = errors.New("capture: memory text is empty")

// RemoteStore is the remote memory store port. *remote.Client satisfies it.
type RemoteStore interface {
	AddMemory(ctx context.Context, rec memory.Record) error
}

// LocalCache is the local durable cache port. *cache.MemoryLog satisfies it.
// Append must not lose concurrent writes.
type LocalCache interface {
	Append(ctx context.Context, rec memory.Record) error
}

// Coordinator is safe for concurrent use. AddMemory calls do not exclude each
// other; every call produces its own record.
type Coordinator struct {
	remote   RemoteStore
	local    LocalCache
	resolver *temporal.Resolver
	now      func() time.Time
	loc      *time.Location
	newID    func() string
	log      *SessionLog
	logger   *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithResolver sets the date resolver (day-first by default).
func WithResolver(r *temporal.Resolver) Option {
	return func(c *Coordinator) { c.resolver = r }
}

// WithLocation sets the wall-clock zone relative dates and bare clock times
// are read in. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(c *Coordinator) { c.loc = loc }
}

// WithSessionLog shares a session log with the chat surface.
func WithSessionLog(l *SessionLog) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithIDGenerator replaces the uuid record ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) { c.newID = fn }
}

// NewCoordinator wires the two stores. Either may be nil, in which case
// writes to it fail and are reported through the Outcome.
func NewCoordinator(remote RemoteStore, local LocalCache, opts ...Option) *Coordinator {
	c := &Coordinator{
		remote:   remote,
		local:    local,
		resolver: temporal.New(temporal.DayFirst),
		now:      time.Now,
		loc:      time.Local,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.log == nil {
		c.log = NewSessionLog(c.logger)
	}
	return c
}

// Log returns the session log the coordinator writes to.
func (c *Coordinator) Log() *SessionLog { return c.log }

// AddMemory saves text as a memory. The only error is ErrEmptyMemory; store
// failures are folded into the Outcome. The remote write and the cache
// append run side by side and AddMemory returns once both have finished, so
// the cache copy exists before the outcome is reported.
func (c *Coordinator) AddMemory(ctx context.Context, text string, emotion memory.Emotion) (Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Outcome{}, ErrEmptyMemory
	}

	captured := c.now().In(c.loc)
	ts, resolved := c.resolver.Resolve(text, captured)
	if !resolved {
		ts = captured
	}
	rec := memory.Record{
		ID:        c.newID(),
		Text:      text,
		Timestamp: ts.UTC(),
		Emotion:   emotion,
	}

	ctx, traceID := trace.Ensure(ctx, trace.Capture)
	logger := observability.WithTrace(ctx, c.logger).With("memory_id", rec.ID)

	c.log.Append(Entry{
		Kind:    EntryMemory,
		Text:    "Saved memory: " + text,
		TraceID: traceID,
		Record:  &rec,
	})

	var (
		wg        sync.WaitGroup
		remoteErr error
		localErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		remoteErr = c.writeRemote(ctx, rec)
	}()
	go func() {
		defer wg.Done()
		// The cache copy is the fallback record; it is written even when
		// the caller has given up waiting.
		localErr = c.writeLocal(context.WithoutCancel(ctx), rec)
	}()
	wg.Wait()

	out := Outcome{
		Kind:         classify(remoteErr, localErr),
		Record:       rec,
		TraceID:      traceID,
		DateResolved: resolved,
		RemoteErr:    remoteErr,
		LocalErr:     localErr,
	}

	if localErr != nil {
		logger.Debug("capture: local cache append failed", "err", localErr)
	}
	switch out.Kind {
	case PersistedRemoteAndLocal:
		logger.Info("capture: memory saved", "timestamp", rec.Timestamp, "date_resolved", resolved)
	case PersistedLocalOnly:
		logger.Warn("capture: remote write failed, kept locally", "err", remoteErr)
		c.log.Append(Entry{
			Kind:    EntryNotice,
			Text:    "Memory service unreachable; saved on this device.",
			TraceID: traceID,
		})
	case RecoverableFailure:
		logger.Error("capture: memory not persisted", "remote_err", remoteErr, "local_err", localErr)
		c.log.Append(Entry{
			Kind:    EntryError,
			Text:    "Could not save this memory. Please try again.",
			TraceID: traceID,
		})
	}
	return out, nil
}

func (c *Coordinator) writeRemote(ctx context.Context, rec memory.Record) (err error) {
	if c.remote == nil {
		return fmt.Errorf("capture: no remote store configured")
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("capture: remote store panicked: %v", p)
		}
	}()
	return c.remote.AddMemory(ctx, rec)
}

func (c *Coordinator) writeLocal(ctx context.Context, rec memory.Record) (err error) {
	if c.local == nil {
		return fmt.Errorf("capture: no local cache configured")
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("capture: local cache panicked: %v", p)
		}
	}()
	return c.local.Append(ctx, rec)
}

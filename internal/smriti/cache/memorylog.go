package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/HrishitaRaj/smriti-ai/common/spec/memory"
)

// DefaultKey is the cache key memories are stored under.
const DefaultKey = "smriti_local_memories"

// MemoryLog is the append-only list of captured memories kept in the cache.
type MemoryLog struct {
	cache  *Cache
	key    string
	logger *slog.Logger
}

// NewMemoryLog stores memories under key (DefaultKey when empty).
func NewMemoryLog(c *Cache, key string, logger *slog.Logger) *MemoryLog {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryLog{cache: c, key: key, logger: logger}
}

// Key returns the cache key in use.
func (l *MemoryLog) Key() string { return l.key }

// Append adds rec to the end of the list. A corrupt list is left untouched
// and ErrCorrupt is returned.
func (l *MemoryLog) Append(ctx context.Context, rec memory.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cache: marshal record: %w", err)
	}
	return l.cache.Modify(ctx, l.key, func(items []json.RawMessage) ([]json.RawMessage, error) {
		return append(items, b), nil
	})
}

// Entries returns the cached memories in stored order. Elements that are not
// memory records are skipped.
func (l *MemoryLog) Entries(ctx context.Context) ([]memory.Record, error) {
	items, err := l.cache.Read(ctx, l.key)
	if err != nil {
		return nil, err
	}
	return l.records(items), nil
}

// Replace overwrites the list with recs. It also recovers a corrupt list.
func (l *MemoryLog) Replace(ctx context.Context, recs []memory.Record) error {
	items, err := encodeRecords(recs)
	if err != nil {
		return err
	}
	return l.cache.Overwrite(ctx, l.key, items)
}

// Merge folds recs (a fresh list from the remote store) into the cached list
// in one read-modify-write and returns the result, newest first. Cached
// entries the remote list lacks are kept, including any appended while the
// remote list was being fetched. A corrupt list is replaced by recs.
func (l *MemoryLog) Merge(ctx context.Context, recs []memory.Record) ([]memory.Record, error) {
	var merged []memory.Record
	err := l.cache.Modify(ctx, l.key, func(items []json.RawMessage) ([]json.RawMessage, error) {
		merged = memory.Merge(recs, l.records(items))
		memory.SortNewestFirst(merged)
		return encodeRecords(merged)
	})
	if errors.Is(err, ErrCorrupt) {
		l.logger.Warn("cache: replacing corrupt list with remote memories", "key", l.key, "err", err)
		merged = append([]memory.Record(nil), recs...)
		memory.SortNewestFirst(merged)
		return merged, l.Replace(ctx, merged)
	}
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// Delete removes every cached entry with the given timestamp and text and
// reports how many were removed. Only the local copy is affected.
func (l *MemoryLog) Delete(ctx context.Context, ts time.Time, text string) (int, error) {
	removed := 0
	err := l.cache.Modify(ctx, l.key, func(items []json.RawMessage) ([]json.RawMessage, error) {
		kept := items[:0]
		target := memory.Record{Text: text, Timestamp: ts}
		for _, raw := range items {
			var rec memory.Record
			if err := json.Unmarshal(raw, &rec); err == nil && rec.Same(target) {
				removed++
				continue
			}
			kept = append(kept, raw)
		}
		return kept, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Export writes the cached memories to w as an indented JSON array.
func (l *MemoryLog) Export(ctx context.Context, w io.Writer) error {
	recs, err := l.Entries(ctx)
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []memory.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(recs); err != nil {
		return fmt.Errorf("cache: export: %w", err)
	}
	return nil
}

func encodeRecords(recs []memory.Record) ([]json.RawMessage, error) {
	items := make([]json.RawMessage, 0, len(recs))
	for _, rec := range recs {
		b, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("cache: marshal record: %w", err)
		}
		items = append(items, b)
	}
	return items, nil
}

func (l *MemoryLog) records(items []json.RawMessage) []memory.Record {
	out := make([]memory.Record, 0, len(items))
	for i, raw := range items {
		var rec memory.Record
		if err := json.Unmarshal(raw, &rec); err != nil || !rec.Valid() {
			l.logger.Warn("cache: skip malformed entry", "key", l.key, "index", i)
			continue
		}
		out = append(out, rec)
	}
	return out
}

package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/HrishitaRaj/smriti-ai/common/spec/memory"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/cache"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/store"
)

type fakeReader struct {
	recs []memory.Record
	err  error
}

func (f fakeReader) ListMemories(context.Context) ([]memory.Record, error) { return f.recs, f.err }

type fakeMirror struct {
	recs     []memory.Record
	err      error
	mergeErr error
	merged   []memory.Record
}

func (f *fakeMirror) Entries(context.Context) ([]memory.Record, error) { return f.recs, f.err }
func (f *fakeMirror) Merge(_ context.Context, recs []memory.Record) ([]memory.Record, error) {
	if f.mergeErr != nil {
		return nil, f.mergeErr
	}
	f.merged = memory.Merge(recs, f.recs)
	f.recs = f.merged
	return f.merged, nil
}

func at(day, hour int) time.Time {
	return time.Date(2024, time.March, day, hour, 0, 0, 0, time.UTC)
}

func TestLoadTimeline_RemoteRefreshesCacheAndKeepsOfflineRecords(t *testing.T) {
	remote := fakeReader{recs: []memory.Record{
		{ID: "a", Text: "server one", Timestamp: at(1, 9)},
		{ID: "b", Text: "server two", Timestamp: at(3, 9)},
	}}
	local := &fakeMirror{recs: []memory.Record{
		{ID: "a", Text: "server one", Timestamp: at(1, 9)},
		{Text: "offline only", Timestamp: at(2, 9)},
	}}

	tl, err := LoadTimeline(context.Background(), remote, local)
	if err != nil {
		t.Fatalf("LoadTimeline: %v", err)
	}
	if tl.FromCache || tl.FetchErr != nil {
		t.Errorf("unexpected cache fallback: %+v", tl)
	}
	if len(tl.Records) != 3 {
		t.Fatalf("records = %+v", tl.Records)
	}
	if tl.Records[0].ID != "b" || tl.Records[1].Text != "offline only" || tl.Records[2].ID != "a" {
		t.Errorf("order = %+v", tl.Records)
	}
	if len(local.merged) != 3 {
		t.Errorf("cache refreshed with %d records", len(local.merged))
	}
}

// appendingReader saves rec to the cache while the remote list is in flight.
type appendingReader struct {
	log  *cache.MemoryLog
	recs []memory.Record
	rec  memory.Record
}

func (r appendingReader) ListMemories(ctx context.Context) ([]memory.Record, error) {
	if err := r.log.Append(ctx, r.rec); err != nil {
		return nil, err
	}
	return r.recs, nil
}

func newMemoryLog(t *testing.T) *cache.MemoryLog {
	t.Helper()
	s, err := store.New(t.TempDir()+"/timeline.db", nil)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return cache.NewMemoryLog(cache.New(s), "", nil)
}

func TestLoadTimeline_EmptyRemoteKeepsAppendDuringFetch(t *testing.T) {
	ctx := context.Background()
	log := newMemoryLog(t)
	late := memory.Record{Text: "saved while loading", Timestamp: at(4, 9)}
	remote := appendingReader{log: log, recs: []memory.Record{}, rec: late}
	tl, err := LoadTimeline(ctx, remote, log)
	if err != nil {
		t.Fatalf("LoadTimeline: %v", err)
	}
	if len(tl.Records) != 1 || tl.Records[0].Text != late.Text {
		t.Errorf("timeline = %+v", tl.Records)
	}
	got, err := log.Entries(ctx)
	if err != nil || len(got) != 1 || got[0].Text != late.Text {
		t.Errorf("cache after refresh = %+v, %v", got, err)
	}
}

func TestLoadTimeline_KeepsAppendDuringFetch(t *testing.T) {
	ctx := context.Background()
	log := newMemoryLog(t)
	if err := log.Append(ctx, memory.Record{ID: "a", Text: "synced", Timestamp: at(1, 9)}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	remote := appendingReader{
		log:  log,
		recs: []memory.Record{{ID: "a", Text: "synced", Timestamp: at(1, 9)}, {ID: "b", Text: "from phone", Timestamp: at(2, 9)}},
		rec:  memory.Record{Text: "offline note", Timestamp: at(3, 9)},
	}

	tl, err := LoadTimeline(ctx, remote, log)
	if err != nil {
		t.Fatalf("LoadTimeline: %v", err)
	}
	if len(tl.Records) != 3 || tl.Records[0].Text != "offline note" {
		t.Errorf("timeline = %+v", tl.Records)
	}
	got, _ := log.Entries(ctx)
	if len(got) != 3 {
		t.Errorf("cache = %+v", got)
	}
}

func TestLoadTimeline_FailedRefreshShowsRemote(t *testing.T) {
	remote := fakeReader{recs: []memory.Record{
		{ID: "a", Text: "first", Timestamp: at(1, 9)},
		{ID: "b", Text: "second", Timestamp: at(2, 9)},
	}}
	local := &fakeMirror{mergeErr: errors.New("disk full")}

	tl, err := LoadTimeline(context.Background(), remote, local)
	if err != nil {
		t.Fatalf("LoadTimeline: %v", err)
	}
	if tl.FromCache || len(tl.Records) != 2 || tl.Records[0].ID != "b" {
		t.Errorf("timeline = %+v", tl)
	}
}

func TestLoadTimeline_FallsBackToCache(t *testing.T) {
	fetchErr := errors.New("offline")
	local := &fakeMirror{recs: []memory.Record{
		{Text: "old", Timestamp: at(1, 9)},
		{Text: "new", Timestamp: at(5, 9)},
	}}

	tl, err := LoadTimeline(context.Background(), fakeReader{err: fetchErr}, local)
	if err != nil {
		t.Fatalf("LoadTimeline: %v", err)
	}
	if !tl.FromCache || !errors.Is(tl.FetchErr, fetchErr) {
		t.Errorf("timeline = %+v", tl)
	}
	if tl.Records[0].Text != "new" {
		t.Errorf("not newest first: %+v", tl.Records)
	}
	if local.merged != nil {
		t.Error("cache should not be rewritten on fallback")
	}
	// The cache slice itself is not reordered.
	if local.recs[0].Text != "old" {
		t.Error("fallback sorted the cache slice in place")
	}
}

func TestLoadTimeline_BothFail(t *testing.T) {
	cacheErr := errors.New("corrupt")
	_, err := LoadTimeline(context.Background(), fakeReader{err: errors.New("offline")}, &fakeMirror{err: cacheErr})
	if !errors.Is(err, cacheErr) {
		t.Errorf("err = %v", err)
	}
	if _, err := LoadTimeline(context.Background(), nil, nil); err == nil {
		t.Error("expected error with no sources")
	}
}

func TestGroupByDay(t *testing.T) {
	recs := []memory.Record{
		{Text: "Morning walk", Timestamp: at(1, 7)},
		{Text: "Tea with Meena", Timestamp: at(2, 16), Emotion: memory.EmotionHappy},
		{Text: "Evening walk", Timestamp: at(1, 18)},
		{Text: "Doctor visit", Timestamp: at(2, 9), Emotion: memory.EmotionAnxious},
	}

	groups := GroupByDay(recs, "", time.UTC)
	if len(groups) != 2 {
		t.Fatalf("groups = %d", len(groups))
	}
	if groups[0].Day.Day() != 2 || groups[0].Records[0].Text != "Tea with Meena" {
		t.Errorf("first group = %+v", groups[0])
	}
	if groups[1].Label != "Friday, 1 March 2024" {
		t.Errorf("label = %q", groups[1].Label)
	}
	if groups[1].Records[0].Text != "Evening walk" {
		t.Errorf("within-day order = %+v", groups[1].Records)
	}

	walks := GroupByDay(recs, "WALK", time.UTC)
	if len(walks) != 1 || len(walks[0].Records) != 2 {
		t.Errorf("filtered = %+v", walks)
	}

	anxious := GroupByDay(recs, "anxious", time.UTC)
	if len(anxious) != 1 || anxious[0].Records[0].Text != "Doctor visit" {
		t.Errorf("emotion filter = %+v", anxious)
	}
}

func TestGroupByDay_UsesLocation(t *testing.T) {
	// 20:00 UTC on 1 March is already 2 March in IST.
	recs := []memory.Record{{Text: "late call", Timestamp: at(1, 20)}}
	groups := GroupByDay(recs, "", time.FixedZone("IST", 19800))
	if groups[0].Day.Day() != 2 {
		t.Errorf("day = %v", groups[0].Day)
	}
}

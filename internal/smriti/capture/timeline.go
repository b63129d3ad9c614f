package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/HrishitaRaj/smriti-ai/common/spec/memory"
)

// RemoteReader lists memories held by the remote store.
type RemoteReader interface {
	ListMemories(ctx context.Context) ([]memory.Record, error)
}

// LocalMirror is the local cache as seen by the timeline view. Merge must fold
// recs into the stored list in one atomic step and return the result, so an
// Append racing with a refresh is kept. *cache.MemoryLog satisfies it.
type LocalMirror interface {
	Entries(ctx context.Context) ([]memory.Record, error)
	Merge(ctx context.Context, recs []memory.Record) ([]memory.Record, error)
}

// Timeline is the list shown on the memories page, newest first.
type Timeline struct {
	Records []memory.Record
	// FromCache is true when the remote fetch failed and Records came from
	// the local cache alone.
	FromCache bool
	// FetchErr is the remote error when FromCache is set.
	FetchErr error
}

// LoadTimeline fetches the remote list and refreshes the local cache with it.
// Cached records the remote store does not have (saved while offline) are
// kept in both the result and the cache. When the fetch fails the cached
// list is returned with FromCache set. An error is returned only when
// neither source can be read.
func LoadTimeline(ctx context.Context, remote RemoteReader, local LocalMirror) (Timeline, error) {
	var (
		remoteRecs []memory.Record
		fetchErr   error
	)
	if remote == nil {
		fetchErr = fmt.Errorf("capture: no remote store configured")
	} else {
		remoteRecs, fetchErr = remote.ListMemories(ctx)
	}

	if fetchErr != nil {
		if local == nil {
			return Timeline{}, fmt.Errorf("capture: load timeline: remote: %w; no local cache configured", fetchErr)
		}
		cached, err := local.Entries(ctx)
		if err != nil {
			return Timeline{}, fmt.Errorf("capture: load timeline: remote: %v; cache: %w", fetchErr, err)
		}
		recs := append([]memory.Record(nil), cached...)
		memory.SortNewestFirst(recs)
		return Timeline{Records: recs, FromCache: true, FetchErr: fetchErr}, nil
	}

	recs := append([]memory.Record(nil), remoteRecs...)
	if local != nil {
		merged, err := local.Merge(context.WithoutCancel(ctx), remoteRecs)
		if err == nil {
			recs = merged
		}
		// A failed refresh leaves the previous cache in place and shows the
		// remote list alone.
	}
	memory.SortNewestFirst(recs)
	return Timeline{Records: recs}, nil
}

// DayGroup is one calendar day of the timeline.
type DayGroup struct {
	// Day is local midnight.
	Day     time.Time
	Label   string
	Records []memory.Record
}

// GroupByDay filters records by a case-insensitive substring of their text
// (or exact emotion name), then groups them by calendar day in loc. Days and
// the records within them are newest first.
func GroupByDay(records []memory.Record, query string, loc *time.Location) []DayGroup {
	if loc == nil {
		loc = time.Local
	}
	q := strings.ToLower(strings.TrimSpace(query))

	filtered := make([]memory.Record, 0, len(records))
	for _, r := range records {
		if q == "" || strings.Contains(strings.ToLower(r.Text), q) || string(r.Emotion) == q {
			filtered = append(filtered, r)
		}
	}
	memory.SortNewestFirst(filtered)

	var groups []DayGroup
	for _, r := range filtered {
		local := r.Timestamp.In(loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		if n := len(groups); n > 0 && groups[n-1].Day.Equal(day) {
			groups[n-1].Records = append(groups[n-1].Records, r)
			continue
		}
		groups = append(groups, DayGroup{
			Day:     day,
			Label:   day.Format("Monday, 2 January 2006"),
			Records: []memory.Record{r},
		})
	}
	return groups
}

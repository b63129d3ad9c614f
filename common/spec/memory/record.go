// Package memory defines the memory record exchanged between the companion
// and the recall service and kept in the local cache.
package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Emotion is the optional feeling a patient attached to a memory.
type Emotion string

const (
	EmotionNone    Emotion = ""
	EmotionCalm    Emotion = "calm"
	EmotionHappy   Emotion = "happy"
	EmotionAnxious Emotion = "anxious"
	EmotionNeutral Emotion = "neutral"
	EmotionSad     Emotion = "sad"
	EmotionExcited Emotion = "excited"
	EmotionAngry   Emotion = "angry"
)

// Emotions lists every recognised emotion in display order.
var Emotions = []Emotion{
	EmotionCalm,
	EmotionHappy,
	EmotionAnxious,
	EmotionNeutral,
	EmotionSad,
	EmotionExcited,
	EmotionAngry,
}

// ParseEmotion normalises s into an Emotion. The empty string is EmotionNone.
func ParseEmotion(s string) (Emotion, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return EmotionNone, nil
	}
	for _, e := range Emotions {
		if string(e) == s {
			return e, nil
		}
	}
	return EmotionNone, fmt.Errorf("memory: unknown emotion %q", s)
}

// Record is a single captured memory. Records are immutable once created;
// Timestamp is always UTC.
type Record struct {
	ID        string    `json:"id,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Emotion   Emotion   `json:"emotion,omitempty"`
}

// Same reports whether two records describe the same memory. IDs are not
// compared because cached entries written by older clients carry none.
func (r Record) Same(o Record) bool {
	return r.Text == o.Text && r.Timestamp.Equal(o.Timestamp)
}

// Valid reports whether the record has the fields every store requires.
func (r Record) Valid() bool {
	return strings.TrimSpace(r.Text) != "" && !r.Timestamp.IsZero()
}

// SortNewestFirst orders records by timestamp, newest first. Records with the
// same timestamp keep their relative order.
func SortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
}

// Merge returns primary plus every record of extra that primary does not
// already hold, matched by ID or by Same.
func Merge(primary, extra []Record) []Record {
	out := make([]Record, 0, len(primary)+len(extra))
	out = append(out, primary...)
	ids := make(map[string]struct{}, len(primary))
	for _, r := range primary {
		if r.ID != "" {
			ids[r.ID] = struct{}{}
		}
	}
outer:
	for _, r := range extra {
		if r.ID != "" {
			if _, ok := ids[r.ID]; ok {
				continue
			}
		}
		for _, p := range primary {
			if p.Same(r) {
				continue outer
			}
		}
		out = append(out, r)
	}
	return out
}

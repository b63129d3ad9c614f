// Package speech defines the recognition-event envelope exchanged between a
// speech recogniser and the transcript reconciler, plus the response shape
// of the batch transcription endpoint.
package speech

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Result is one recognition event delivered during an active session.
type Result struct {
	// SessionID identifies the recognition session the event belongs to.
	// Optional; recognisers that run a single session may leave it empty.
	SessionID string `json:"session_id,omitempty"`

	// Finals holds the segments the recogniser has committed to in this
	// event. Zero or more.
	Finals []string `json:"finals,omitempty"`

	// Interim is the current non-final segment, if any. It is still subject
	// to revision and is replaced wholesale by the next event.
	Interim *string `json:"interim,omitempty"`

	// TS is when the recogniser produced the event.
	TS time.Time `json:"ts"`
}

// Final builds a Result carrying committed segments only.
func Final(segments ...string) Result {
	return Result{Finals: segments, TS: time.Now().UTC()}
}

// Partial builds a Result carrying a single interim segment.
func Partial(text string) Result {
	return Result{Interim: &text, TS: time.Now().UTC()}
}

// InterimText returns the interim segment or "" when there is none.
func (r *Result) InterimText() string {
	if r == nil || r.Interim == nil {
		return ""
	}
	return *r.Interim
}

// Empty reports whether the event carries no text at all.
func (r *Result) Empty() bool {
	for _, f := range r.Finals {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return strings.TrimSpace(r.InterimText()) == ""
}

// Validate checks that a Result is structurally valid.
func (r *Result) Validate() error {
	if r == nil {
		return fmt.Errorf("result must not be nil")
	}
	if r.TS.IsZero() {
		return fmt.Errorf("ts must not be zero")
	}
	return nil
}

// ParseResult decodes a JSON-encoded Result and validates it.
func ParseResult(data []byte) (*Result, error) {
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("speech parse: %w", err)
	}
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("speech validate: %w", err)
	}
	return &res, nil
}

// BatchResponse is the body returned by the batch transcription endpoint:
// either {"transcript": "..."} or {"error": "..."}.
type BatchResponse struct {
	Transcript string `json:"transcript,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Err converts an error body into a Go error. A response with neither field
// set is reported as an empty transcript.
func (b *BatchResponse) Err() error {
	if b.Error != "" {
		return fmt.Errorf("transcription failed: %s", b.Error)
	}
	if strings.TrimSpace(b.Transcript) == "" {
		return fmt.Errorf("transcription returned no text")
	}
	return nil
}

// AsResult presents a batch transcript as a single finalized segment.
func (b *BatchResponse) AsResult() Result {
	return Final(strings.TrimSpace(b.Transcript))
}

// Package recall defines the HTTP contract of the recall service, the
// remote memory store the companion writes to and asks questions of.
//
//	POST /add-memory  AddMemoryRequest  -> AddMemoryResponse
//	GET  /memories                       -> MemoriesResponse
//	POST /ask         AskRequest        -> AskResponse
//	GET  /health                         -> HealthResponse
package recall

import (
	"time"

	"github.com/HrishitaRaj/smriti-ai/common/spec/memory"
)

// AddMemoryRequest is the body of POST /add-memory. Timestamp defaults to the
// server's receive time when omitted. ID lets a client that already assigned
// one make the write idempotent.
type AddMemoryRequest struct {
	ID        string         `json:"id,omitempty"`
	Text      string         `json:"text"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Emotion   memory.Emotion `json:"emotion,omitempty"`
}

// FromRecord builds the request for rec.
func FromRecord(rec memory.Record) AddMemoryRequest {
	ts := rec.Timestamp.UTC()
	return AddMemoryRequest{
		ID:        rec.ID,
		Text:      rec.Text,
		Timestamp: &ts,
		Emotion:   rec.Emotion,
	}
}

// AddMemoryResponse acknowledges a stored memory.
type AddMemoryResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

// MemoriesResponse is the body of GET /memories, newest first.
type MemoriesResponse struct {
	Memories []memory.Record `json:"memories"`
}

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Question string `json:"question"`
}

// ContextItem is one memory the answer was grounded on.
type ContextItem struct {
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
	Emotion   memory.Emotion `json:"emotion,omitempty"`
}

// AskResponse carries the answer, or a null answer when no memories exist.
type AskResponse struct {
	Answer  *string       `json:"answer"`
	Context []ContextItem `json:"context"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Memories int    `json:"memories"`
}

// ErrorResponse is returned on any 4xx/5xx.
type ErrorResponse struct {
	Error string `json:"error"`
}

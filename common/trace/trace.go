// Package trace generates correlation IDs and carries them through
// context.Context, so that one memory save can be followed from the chat
// message through the remote write and the cache append.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Prefixes used across Smriti.
const (
	// Capture marks a memory save started on the companion.
	Capture = "c"
	// Request marks an inbound HTTP request on the recall service.
	Request = "r"
)

type traceKey struct{}

// GenerateID returns prefix + "_" + 32 hex characters.
func GenerateID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return prefix + "_" + hex.EncodeToString(b)
}

// WithTraceID returns a child context carrying the given trace ID.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// FromContext extracts the trace ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}

// Ensure returns ctx unchanged when it already carries a trace ID, and
// otherwise attaches a new one with the given prefix.
func Ensure(ctx context.Context, prefix string) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := GenerateID(prefix)
	return WithTraceID(ctx, id), id
}

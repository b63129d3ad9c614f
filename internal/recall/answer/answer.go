// Package answer answers questions about stored memories: it retrieves the
// most relevant memories and asks an LLM to reply gently from them.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/HrishitaRaj/smriti-ai/common/spec/memory"
	"github.com/HrishitaRaj/smriti-ai/common/spec/recall"
	"github.com/HrishitaRaj/smriti-ai/internal/recall/embed"
	"github.com/HrishitaRaj/smriti-ai/internal/recall/llm"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/observability"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/store"
)

// DefaultTopK is how many memories ground an answer.
const DefaultTopK = 3

// Retriever reads memories. *store.Store satisfies it.
type Retriever interface {
	SearchByEmbedding(ctx context.Context, query []float32, topK int) ([]store.ScoredMemory, error)
	ListMemories(ctx context.Context, limit int) ([]store.Memory, error)
}

// Answerer answers questions from memories.
type Answerer struct {
	store    Retriever
	embedder embed.Embedder
	provider llm.Provider
	topK     int
	logger   *slog.Logger
}

// Option configures an Answerer.
type Option func(*Answerer)

// WithTopK overrides DefaultTopK.
func WithTopK(k int) Option {
	return func(a *Answerer) {
		if k > 0 {
			a.topK = k
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Answerer) { a.logger = l }
}

// New returns an Answerer. A nil embedder retrieves by recency; a nil
// provider makes Answer fail with llm.ErrNotConfigured once memories exist.
func New(r Retriever, e embed.Embedder, p llm.Provider, opts ...Option) *Answerer {
	if e == nil {
		e = embed.Noop{}
	}
	a := &Answerer{store: r, embedder: e, provider: p, topK: DefaultTopK, logger: slog.Default()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Retrieve returns up to topK memories for question: the most similar by
// embedding when any are embedded, otherwise the most recent.
func (a *Answerer) Retrieve(ctx context.Context, question string) ([]memory.Record, error) {
	logger := observability.WithTrace(ctx, a.logger)

	vec, err := a.embedder.Embed(ctx, question)
	if err != nil {
		logger.Warn("answer: embed question failed, using recent memories", "err", err)
		vec = nil
	}
	if vec != nil {
		scored, err := a.store.SearchByEmbedding(ctx, vec, a.topK)
		if err != nil {
			return nil, fmt.Errorf("answer: search: %w", err)
		}
		if len(scored) > 0 {
			out := make([]memory.Record, len(scored))
			for i, s := range scored {
				out[i] = s.Record
			}
			return out, nil
		}
	}

	recent, err := a.store.ListMemories(ctx, a.topK)
	if err != nil {
		return nil, fmt.Errorf("answer: list recent: %w", err)
	}
	out := make([]memory.Record, len(recent))
	for i, m := range recent {
		out[i] = m.Record
	}
	return out, nil
}

// Answer retrieves context for question and asks the provider. With no
// memories stored the answer is nil and the context empty.
func (a *Answerer) Answer(ctx context.Context, question string) (*recall.AskResponse, error) {
	recs, err := a.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	resp := &recall.AskResponse{Context: make([]recall.ContextItem, 0, len(recs))}
	if len(recs) == 0 {
		return resp, nil
	}
	for _, r := range recs {
		resp.Context = append(resp.Context, recall.ContextItem{Text: r.Text, Timestamp: r.Timestamp, Emotion: r.Emotion})
	}

	if a.provider == nil {
		return nil, llm.ErrNotConfigured
	}
	out, err := a.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: BuildPrompt(question, recs)},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("answer: complete: %w", err)
	}
	text := strings.TrimSpace(out.Content)
	if text == "" {
		return nil, fmt.Errorf("answer: provider returned an empty answer")
	}
	resp.Answer = &text
	return resp, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/HrishitaRaj/smriti-ai/common/spec/memory"
)

// Memory is a stored memory record plus its optional embedding.
type Memory struct {
	memory.Record
	Embedding []float32
	CreatedAt time.Time
}

// ScoredMemory pairs a memory with its cosine similarity to a query.
type ScoredMemory struct {
	Memory
	Score float64
}

// InsertMemory stores m. A row with the same ID is left untouched and
// inserted is false, so a client resending a save does not duplicate it.
func (s *Store) InsertMemory(ctx context.Context, m Memory) (inserted bool, err error) {
	if m.ID == "" {
		return false, fmt.Errorf("store: insert memory: empty id")
	}
	var embeddingJSON []byte
	if m.Embedding != nil {
		embeddingJSON, err = json.Marshal(m.Embedding)
		if err != nil {
			return false, fmt.Errorf("store: marshal embedding: %w", err)
		}
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO memories (id, text, timestamp, emotion, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.Text,
		m.Timestamp.UTC().Format(tsLayout),
		string(m.Emotion),
		nullableJSON(embeddingJSON),
		createdAt.UTC().Format(tsLayout),
	)
	if err != nil {
		return false, fmt.Errorf("store: insert memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: insert memory: %w", err)
	}
	return n > 0, nil
}

// ListMemories returns memories newest first. limit <= 0 returns all.
func (s *Store) ListMemories(ctx context.Context, limit int) ([]Memory, error) {
	q := `SELECT id, text, timestamp, emotion, embedding, created_at FROM memories ORDER BY timestamp DESC, created_at DESC`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list memories: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			s.logger.Warn("store: skip malformed memory row", "err", err)
			continue
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate memories: %w", err)
	}
	return out, nil
}

// CountMemories returns the number of stored memories.
func (s *Store) CountMemories(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories").Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count memories: %w", err)
	}
	return n, nil
}

// SearchByEmbedding returns the topK memories most similar to query. Rows
// without an embedding, or with one of a different dimension, are skipped.
// Similarity is computed in Go; modernc.org/sqlite cannot load vector
// extensions and the table is small.
func (s *Store) SearchByEmbedding(ctx context.Context, query []float32, topK int) ([]ScoredMemory, error) {
	if topK <= 0 || len(query) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, timestamp, emotion, embedding, created_at
		FROM memories WHERE embedding IS NOT NULL
		ORDER BY timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: query embeddings: %w", err)
	}
	defer rows.Close()

	var scored []ScoredMemory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			s.logger.Warn("store: skip malformed memory row", "err", err)
			continue
		}
		if len(m.Embedding) != len(query) {
			continue
		}
		scored = append(scored, ScoredMemory{Memory: m, Score: cosineSimilarity(query, m.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate embeddings: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored, nil
}

func scanMemory(rows *sql.Rows) (Memory, error) {
	var (
		m             Memory
		ts, createdAt string
		emotion       string
		embeddingJSON sql.NullString
	)
	if err := rows.Scan(&m.ID, &m.Text, &ts, &emotion, &embeddingJSON, &createdAt); err != nil {
		return Memory{}, fmt.Errorf("scan row: %w", err)
	}
	t, err := time.Parse(tsLayout, ts)
	if err != nil {
		return Memory{}, fmt.Errorf("parse timestamp: %w", err)
	}
	m.Timestamp = t
	m.Emotion = memory.Emotion(emotion)
	if c, err := time.Parse(tsLayout, createdAt); err == nil {
		m.CreatedAt = c
	}
	if embeddingJSON.Valid && embeddingJSON.String != "" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &m.Embedding); err != nil {
			return Memory{}, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	return m, nil
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

// cosineSimilarity returns 0 for empty, mismatched or zero-magnitude vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Package embed turns memory text into vectors for similarity retrieval.
package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder produces a vector for text. A nil vector with a nil error means
// embedding is unavailable and callers should fall back to recency.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Noop disables similarity retrieval.
type Noop struct{}

func (Noop) Embed(context.Context, string) ([]float32, error) { return nil, nil }

var _ Embedder = Noop{}

// DefaultHashingDim is the vector size of a zero-valued Hashing embedder.
const DefaultHashingDim = 256

// Hashing is a local bag-of-words embedder: each lower-cased word is hashed
// into one of Dim buckets and the vector is L2-normalised. It needs no
// network and matches memories that share words with the question.
type Hashing struct {
	Dim int
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "i": {}, "me": {}, "my": {},
	"we": {}, "to": {}, "of": {}, "in": {}, "on": {}, "at": {}, "did": {}, "do": {},
	"was": {}, "is": {}, "what": {}, "when": {}, "where": {}, "who": {}, "with": {},
}

func (h Hashing) Embed(_ context.Context, text string) ([]float32, error) {
	dim := h.Dim
	if dim <= 0 {
		dim = DefaultHashingDim
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	vec := make([]float32, dim)
	n := 0
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		f := fnv.New32a()
		f.Write([]byte(w))
		vec[f.Sum32()%uint32(dim)]++
		n++
	}
	if n == 0 {
		return nil, nil
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

var _ Embedder = Hashing{}

package classifier

import (
	"context"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of name vectors kept when no size is given.
const DefaultCacheSize = 4096

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingSimilarity scores names by cosine similarity of their embeddings.
// Vectors are kept in a bounded LRU cache keyed by text.
type EmbeddingSimilarity struct {
	embedder Embedder
	cache    *lru.Cache[string, []float32]
}

// NewEmbeddingSimilarity wraps an embedder with a cache of DefaultCacheSize.
func NewEmbeddingSimilarity(e Embedder) *EmbeddingSimilarity {
	return NewEmbeddingSimilarityWithCache(e, DefaultCacheSize)
}

// NewEmbeddingSimilarityWithCache wraps an embedder, keeping at most size
// vectors. size <= 0 uses DefaultCacheSize.
func NewEmbeddingSimilarityWithCache(e Embedder, size int) *EmbeddingSimilarity {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &EmbeddingSimilarity{embedder: e, cache: cache}
}

// Similarity implements Similarity.
func (s *EmbeddingSimilarity) Similarity(ctx context.Context, a, b string) (float64, error) {
	vecs, err := s.vectors(ctx, a, b)
	if err != nil {
		return 0, err
	}
	return Cosine(vecs[0], vecs[1]), nil
}

// CacheLen reports how many vectors are cached.
func (s *EmbeddingSimilarity) CacheLen() int {
	return s.cache.Len()
}

func (s *EmbeddingSimilarity) vectors(ctx context.Context, texts ...string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var at []int
	for i, t := range texts {
		if v, ok := s.cache.Get(t); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		at = append(at, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	embedded, err := s.embedder.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(embedded) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(embedded), len(missing))
	}
	for j, t := range missing {
		s.cache.Add(t, embedded[j])
		out[at[j]] = embedded[j]
	}
	return out, nil
}

// Cosine returns the cosine similarity of two vectors, 0 when either is
// empty or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

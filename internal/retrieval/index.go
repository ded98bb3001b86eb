package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// Chunk is one embedded slice of a source document.
type Chunk struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
}

// Index is the on-disk vector index artifact.
type Index struct {
	Model     string  `json:"model"`
	Dimension int     `json:"dimension"`
	Chunks    []Chunk `json:"chunks"`
}

// LoadIndex reads an index file. A missing file yields an error wrapping
// ErrIndexMissing.
func LoadIndex(path string) (*Index, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrIndexMissing, path)
		}
		return nil, fmt.Errorf("failed to read index %s: %w", path, err)
	}
	var idx Index
	if err := json.Unmarshal(b, &idx); err != nil {
		return nil, fmt.Errorf("failed to decode index %s: %w", path, err)
	}
	for i, c := range idx.Chunks {
		if len(c.Embedding) != idx.Dimension {
			return nil, fmt.Errorf("chunk %d has dimension %d, index declares %d", i, len(c.Embedding), idx.Dimension)
		}
	}
	return &idx, nil
}

// Save writes the index atomically.
func (idx *Index) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	b, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return os.Rename(tmp, path)
}

// VectorSearcher runs brute-force cosine search over a loaded index.
type VectorSearcher struct {
	index    *Index
	embedder Embedder
	minScore float64
}

// NewVectorSearcher pairs an index with the embedder that built it. Hits
// scoring below minScore are dropped.
func NewVectorSearcher(index *Index, embedder Embedder, minScore float64) *VectorSearcher {
	return &VectorSearcher{index: index, embedder: embedder, minScore: minScore}
}

// Search embeds query and returns the k most similar chunks.
func (s *VectorSearcher) Search(ctx context.Context, query string, k int) ([]Document, error) {
	if len(s.index.Chunks) == 0 {
		return nil, nil
	}
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(vecs))
	}
	q := vecs[0]
	if len(q) != s.index.Dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(q), s.index.Dimension)
	}

	type scored struct {
		i     int
		score float64
	}
	scoreds := make([]scored, 0, len(s.index.Chunks))
	for i, c := range s.index.Chunks {
		scoreds = append(scoreds, scored{i: i, score: cosine(q, c.Embedding)})
	}
	sort.SliceStable(scoreds, func(a, b int) bool { return scoreds[a].score > scoreds[b].score })

	out := make([]Document, 0, k)
	for _, sc := range scoreds {
		if len(out) >= k || sc.score < s.minScore {
			break
		}
		c := s.index.Chunks[sc.i]
		out = append(out, Document{Content: c.Content, Source: c.Source, Score: sc.score})
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Package retrieval answers knowledge questions from a pre-built vector
// index, with a keyword fallback over a small static document set.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultK is the number of documents returned per query.
const DefaultK = 3

// ErrIndexMissing marks an index artifact that has not been built.
var ErrIndexMissing = errors.New("retrieval index is missing")

// Document is one search hit.
type Document struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher returns up to k documents relevant to query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Document, error)
}

// Format renders hits the way the model expects them.
func Format(docs []Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		source := d.Source
		if source == "" {
			source = "N/A"
		}
		parts = append(parts, fmt.Sprintf("Source: %s\n\nContent: %s", source, d.Content))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

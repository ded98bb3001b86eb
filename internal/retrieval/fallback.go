package retrieval

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve"
	"gopkg.in/yaml.v3"
)

//go:embed fallback_docs.yaml
var defaultFallbackDocs []byte

// StaticDoc is one entry of the fallback document set.
type StaticDoc struct {
	Source  string   `yaml:"source" json:"source"`
	Title   string   `yaml:"title" json:"title"`
	Tags    []string `yaml:"tags" json:"tags"`
	Content string   `yaml:"content" json:"content"`
}

type fallbackFile struct {
	Documents []StaticDoc `yaml:"documents"`
}

// Fallback is an in-memory keyword index over static documents.
type Fallback struct {
	index bleve.Index
	docs  map[string]StaticDoc
}

// ParseStaticDocs decodes a YAML document set.
func ParseStaticDocs(data []byte) ([]StaticDoc, error) {
	var f fallbackFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fallback documents: %w", err)
	}
	return f.Documents, nil
}

// LoadFallback builds a fallback from a YAML file, or from the bundled
// document set when path is empty.
func LoadFallback(path string) (*Fallback, error) {
	data := defaultFallbackDocs
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read fallback documents: %w", err)
		}
		data = b
	}
	docs, err := ParseStaticDocs(data)
	if err != nil {
		return nil, err
	}
	return NewFallback(docs)
}

// NewFallback indexes docs in memory.
func NewFallback(docs []StaticDoc) (*Fallback, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create fallback index: %w", err)
	}
	f := &Fallback{index: index, docs: make(map[string]StaticDoc, len(docs))}
	for i, d := range docs {
		id := strconv.Itoa(i)
		f.docs[id] = d
		if err := index.Index(id, d); err != nil {
			return nil, fmt.Errorf("failed to index fallback document %q: %w", d.Source, err)
		}
	}
	return f, nil
}

// Len returns the number of indexed documents.
func (f *Fallback) Len() int { return len(f.docs) }

// Search runs a match query over title, tags and content.
func (f *Fallback) Search(ctx context.Context, query string, k int) ([]Document, error) {
	if strings.TrimSpace(query) == "" || len(f.docs) == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), k, 0, false)
	res, err := f.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fallback search failed: %w", err)
	}

	out := make([]Document, 0, len(res.Hits))
	for _, hit := range res.Hits {
		d, ok := f.docs[hit.ID]
		if !ok {
			continue
		}
		out = append(out, Document{Content: d.Content, Source: d.Source, Score: hit.Score})
	}
	return out, nil
}

// Close releases the index.
func (f *Fallback) Close() error {
	return f.index.Close()
}

package retrieval

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Chunking defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 150
	defaultBatchSize    = 32
	defaultConcurrency  = 4
)

// SourceDoc is an unchunked input document.
type SourceDoc struct {
	Source  string
	Content string
}

var soilColumns = []string{"district", "Nitrogen", "Phosphorous", "Potassium", "pH"}

// LoadSoilCSVs reads every *.csv in dir, averages the nutrient columns per
// district and renders one sentence per district. A missing directory
// yields no documents.
func LoadSoilCSVs(dir string) ([]SourceDoc, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		log.Warn().Str("dir", dir).Msg("no soil CSV files found")
		return nil, nil
	}

	type sums struct {
		n, p, k, ph float64
		rows        int
	}
	byDistrict := make(map[string]*sums)
	for _, file := range files {
		rows, err := readSoilCSV(file)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			s, ok := byDistrict[r.district]
			if !ok {
				s = &sums{}
				byDistrict[r.district] = s
			}
			s.n += r.values[0]
			s.p += r.values[1]
			s.k += r.values[2]
			s.ph += r.values[3]
			s.rows++
		}
		log.Info().Str("file", file).Int("rows", len(rows)).Msg("loaded soil rows")
	}

	districts := make([]string, 0, len(byDistrict))
	for d := range byDistrict {
		districts = append(districts, d)
	}
	sort.Strings(districts)

	docs := make([]SourceDoc, 0, len(districts))
	for _, d := range districts {
		s := byDistrict[d]
		n := float64(s.rows)
		docs = append(docs, SourceDoc{
			Source: "soil_data",
			Content: fmt.Sprintf("Soil data for %s: N=%s, P=%s, K=%s, pH=%s",
				d, num(s.n/n), num(s.p/n), num(s.k/n), num(s.ph/n)),
		})
	}
	return docs, nil
}

type soilRow struct {
	district string
	values   [4]float64
}

func readSoilCSV(path string) ([]soilRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	idx := make([]int, len(soilColumns))
	for i, name := range soilColumns {
		j, ok := col[name]
		if !ok {
			return nil, fmt.Errorf("%s: missing required column %q", path, name)
		}
		idx[i] = j
	}

	var rows []soilRow
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		row := soilRow{district: strings.TrimSpace(rec[idx[0]])}
		for i := 1; i < len(idx); i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx[i]]), 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: column %s: %w", path, line, soilColumns[i], err)
			}
			row.values[i-1] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// LoadTextDocs reads every .txt and .md file under dir.
func LoadTextDocs(dir string) ([]SourceDoc, error) {
	var docs []SourceDoc
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md":
		default:
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		docs = append(docs, SourceDoc{Source: filepath.ToSlash(rel), Content: string(b)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// SplitText cuts text into chunks of at most size runes, each overlapping
// the previous one by about overlap runes. Cuts prefer paragraph, line and
// word boundaries in the back half of a window.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, strings.TrimSpace(string(runes[start:])))
			break
		}
		end = cutPoint(runes, start, end)
		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			chunks = append(chunks, c)
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		for next < end && !unicode.IsSpace(runes[next-1]) {
			next++
		}
		start = next
	}
	return chunks
}

func cutPoint(runes []rune, start, end int) int {
	window := string(runes[start:end])
	half := len([]rune(window)) / 2
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(window, sep); i >= 0 {
			cut := len([]rune(window[:i])) + len([]rune(sep))
			if cut > half {
				return start + cut
			}
		}
	}
	return end
}

// Builder chunks and embeds documents into an Index.
type Builder struct {
	Embedder    Embedder
	Model       string
	ChunkSize   int
	Overlap     int
	BatchSize   int
	Concurrency int
}

// Build embeds every chunk of docs. Batches run concurrently and the chunk
// order of the result follows the input order.
func (b *Builder) Build(ctx context.Context, docs []SourceDoc) (*Index, error) {
	if b.Embedder == nil {
		return nil, fmt.Errorf("builder has no embedder")
	}
	size, overlap := b.ChunkSize, b.Overlap
	if size <= 0 {
		size, overlap = DefaultChunkSize, DefaultChunkOverlap
	}
	batchSize := b.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	workers := b.Concurrency
	if workers <= 0 {
		workers = defaultConcurrency
	}

	var chunks []Chunk
	for _, d := range docs {
		for i, text := range SplitText(d.Content, size, overlap) {
			chunks = append(chunks, Chunk{
				ID:      fmt.Sprintf("%s#%d", d.Source, i),
				Source:  d.Source,
				Content: text,
			})
		}
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no documents to index")
	}
	log.Info().Int("documents", len(docs)).Int("chunks", len(chunks)).Msg("documents split into chunks")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < len(chunks); lo += batchSize {
		lo, hi := lo, min(lo+batchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, hi-lo)
			for _, c := range chunks[lo:hi] {
				texts = append(texts, c.Content)
			}
			vecs, err := b.Embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed chunks %d-%d: %w", lo, hi, err)
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(texts))
			}
			for i, v := range vecs {
				chunks[lo+i].Embedding = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(chunks[0].Embedding)
	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return nil, fmt.Errorf("inconsistent embedding dimensions: %d and %d", dim, len(c.Embedding))
		}
	}
	return &Index{Model: b.Model, Dimension: dim, Chunks: chunks}, nil
}

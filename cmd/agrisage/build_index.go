package main

import (
	"fmt"

	"github.com/ZanzyTHEbar/agrisage-genkit/internal/retrieval"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func buildIndexCMD(cfgPath *string) *cobra.Command {
	var (
		docsDir, soilDir, out string
		chunkSize, overlap    int
		concurrency           int
	)
	build := &cobra.Command{
		Use:   "build-index",
		Short: "Chunk and embed soil data and documents into the retrieval index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rc := cfg.Retrieval
			if docsDir == "" {
				docsDir = rc.DocsDir
			}
			if soilDir == "" {
				soilDir = rc.SoilDir
			}
			if out == "" {
				out = rc.IndexPath
			}

			soil, err := retrieval.LoadSoilCSVs(soilDir)
			if err != nil {
				return err
			}
			docs, err := retrieval.LoadTextDocs(docsDir)
			if err != nil {
				return err
			}
			log.Info().Int("soil_districts", len(soil)).Int("documents", len(docs)).Msg("sources loaded")

			embedder, err := newEmbedder(ctx, cfg.LLM)
			if err != nil {
				return err
			}
			b := &retrieval.Builder{
				Embedder:    embedder,
				Model:       cfg.LLM.EmbeddingModel,
				ChunkSize:   chunkSize,
				Overlap:     overlap,
				Concurrency: concurrency,
			}
			idx, err := b.Build(ctx, append(soil, docs...))
			if err != nil {
				return err
			}

			if rc.Backend == "qdrant" {
				qs, err := retrieval.NewQdrantSearcher(rc.QdrantAddr, rc.Collection, embedder, float32(rc.MinScore))
				if err != nil {
					return err
				}
				defer qs.Close()
				if err := qs.EnsureCollection(ctx, uint64(idx.Dimension)); err != nil {
					return err
				}
				if err := qs.Upsert(ctx, idx.Chunks); err != nil {
					return err
				}
				log.Info().Str("collection", rc.Collection).Int("chunks", len(idx.Chunks)).Msg("index uploaded")
				return nil
			}

			if err := idx.Save(out); err != nil {
				return fmt.Errorf("save index: %w", err)
			}
			log.Info().Str("path", out).Int("chunks", len(idx.Chunks)).Int("dimension", idx.Dimension).Msg("index written")
			return nil
		},
	}
	build.Flags().StringVar(&docsDir, "docs", "", "directory of .txt/.md documents (default retrieval.docs_dir)")
	build.Flags().StringVar(&soilDir, "soil", "", "directory of soil CSV files (default retrieval.soil_dir)")
	build.Flags().StringVarP(&out, "out", "o", "", "index file path (default retrieval.index_path)")
	build.Flags().IntVar(&chunkSize, "chunk-size", retrieval.DefaultChunkSize, "chunk size in characters")
	build.Flags().IntVar(&overlap, "overlap", retrieval.DefaultChunkOverlap, "chunk overlap in characters")
	build.Flags().IntVar(&concurrency, "concurrency", 4, "parallel embedding batches")
	return build
}

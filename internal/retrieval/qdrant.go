package retrieval

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QdrantSearcher searches, and can populate, a Qdrant collection of chunks
// over the gRPC API.
type QdrantSearcher struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	embedder    Embedder
	minScore    float32
}

// NewQdrantSearcher dials addr (host:6334).
func NewQdrantSearcher(addr, collection string, embedder Embedder, minScore float32) (*QdrantSearcher, error) {
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant at %s: %w", addr, err)
	}
	return &QdrantSearcher{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		embedder:    embedder,
		minScore:    minScore,
	}, nil
}

// EnsureCollection creates the collection with cosine distance when it does
// not exist yet.
func (s *QdrantSearcher) EnsureCollection(ctx context.Context, dimension uint64) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
	}
	return nil
}

// Upsert stores embedded chunks. Point ids are derived from chunk ids so a
// rebuild overwrites instead of duplicating.
func (s *QdrantSearcher) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: uuid.NewSHA1(uuid.NameSpaceURL, []byte(c.ID)).String()},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: c.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				"source":  {Kind: &pb.Value_StringValue{StringValue: c.Source}},
				"content": {Kind: &pb.Value_StringValue{StringValue: c.Content}},
			},
		}
	}
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search embeds query and runs a similarity search in the collection.
func (s *QdrantSearcher) Search(ctx context.Context, query string, k int) ([]Document, error) {
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(vecs))
	}

	threshold := s.minScore
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vecs[0],
		Limit:          uint64(k),
		ScoreThreshold: &threshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	out := make([]Document, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		out = append(out, Document{
			Content: r.GetPayload()["content"].GetStringValue(),
			Source:  r.GetPayload()["source"].GetStringValue(),
			Score:   float64(r.GetScore()),
		})
	}
	return out, nil
}

// Close closes the gRPC connection.
func (s *QdrantSearcher) Close() error {
	return s.conn.Close()
}

package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pinecone "github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/renegade-studio/matrix/internal/config"
)

func structFromMap(m map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(m)
}

func mapFromStruct(s *structpb.Struct) map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return s.AsMap()
}

// pineconeProvider is the managed, serverless alternative to Qdrant
// for deployments that would rather not run their own vector-database
// process (spec.md §3's "pluggable vector-store driver" requirement).
type pineconeProvider struct {
	client *pinecone.Client
	cfg    *config.VectorStoreConfig
	idx    *pinecone.IndexConnection
}

func NewPineconeProvider(cfg *config.VectorStoreConfig) (Provider, error) {
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("pinecone: new client: %w", err)
	}
	return &pineconeProvider{client: client, cfg: cfg}, nil
}

func (p *pineconeProvider) connect(ctx context.Context, collection string) (*pinecone.IndexConnection, error) {
	if p.idx != nil {
		return p.idx, nil
	}
	idx, err := p.client.DescribeIndex(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("pinecone: describe index %s: %w", collection, err)
	}
	conn, err := p.client.Index(pinecone.NewIndexConnParams{Host: idx.Host, Namespace: p.cfg.Namespace})
	if err != nil {
		return nil, fmt.Errorf("pinecone: connect to %s: %w", collection, err)
	}
	p.idx = conn
	return conn, nil
}

func (p *pineconeProvider) CreateCollection(ctx context.Context, collection string, vectorSize uint64) error {
	_, err := p.client.DescribeIndex(ctx, collection)
	if err == nil {
		return nil
	}
	metric := pinecone.Cosine
	_, err = p.client.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:      collection,
		Dimension: int32Ptr(int32(vectorSize)),
		Metric:    &metric,
		Cloud:     pinecone.Aws,
		Region:    "us-east-1",
	})
	if err != nil {
		return fmt.Errorf("pinecone: create index %s: %w", collection, err)
	}
	return nil
}

func int32Ptr(v int32) *int32 { return &v }

func (p *pineconeProvider) Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]any) error {
	if err := p.CreateCollection(ctx, collection, uint64(len(vector))); err != nil {
		return err
	}
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return err
	}

	meta, err := structFromMap(metadata)
	if err != nil {
		return fmt.Errorf("pinecone: convert metadata for %s: %w", id, err)
	}

	vecID := id
	if vecID == "" {
		vecID = uuid.NewString()
	}

	_, err = conn.UpsertVectors(ctx, []*pinecone.Vector{
		{Id: vecID, Values: &vector, Metadata: meta},
	})
	if err != nil {
		return fmt.Errorf("pinecone: upsert %s: %w", id, err)
	}
	return nil
}

func (p *pineconeProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error) {
	return p.SearchWithFilter(ctx, collection, vector, topK, nil)
}

func (p *pineconeProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]SearchResult, error) {
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return nil, err
	}

	req := &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeValues:   true,
		IncludeMetadata: true,
	}
	if len(filter) > 0 {
		f, ferr := structFromMap(filter)
		if ferr == nil {
			req.MetadataFilter = f
		}
	}

	res, err := conn.QueryByVectorValues(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("pinecone: search %s: %w", collection, err)
	}

	results := make([]SearchResult, 0, len(res.Matches))
	for _, m := range res.Matches {
		meta := mapFromStruct(m.Vector.Metadata)
		content, _ := meta["content"].(string)
		results = append(results, SearchResult{
			ID:       m.Vector.Id,
			Score:    m.Score,
			Content:  content,
			Vector:   *m.Vector.Values,
			Metadata: meta,
		})
	}
	return results, nil
}

func (p *pineconeProvider) Delete(ctx context.Context, collection, id string) error {
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return err
	}
	if err := conn.DeleteVectorsById(ctx, []string{id}); err != nil {
		return fmt.Errorf("pinecone: delete %s: %w", id, err)
	}
	return nil
}

func (p *pineconeProvider) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	conn, err := p.connect(ctx, collection)
	if err != nil {
		return err
	}
	f, err := structFromMap(filter)
	if err != nil {
		return fmt.Errorf("pinecone: convert filter: %w", err)
	}
	if err := conn.DeleteVectorsByFilter(ctx, f); err != nil {
		return fmt.Errorf("pinecone: delete by filter in %s: %w", collection, err)
	}
	return nil
}

func (p *pineconeProvider) Close() error {
	if p.idx != nil {
		return p.idx.Close()
	}
	return nil
}

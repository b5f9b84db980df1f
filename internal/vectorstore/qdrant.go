package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/renegade-studio/matrix/internal/config"
)

type qdrantProvider struct {
	client *qdrant.Client
	cfg    *config.VectorStoreConfig
}

func NewQdrantProvider(cfg *config.VectorStoreConfig) (Provider, error) {
	useTLS := false
	if cfg.EnableTLS != nil {
		useTLS = *cfg.EnableTLS
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect to %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &qdrantProvider{client: client, cfg: cfg}, nil
}

func (p *qdrantProvider) CreateCollection(ctx context.Context, collection string, vectorSize uint64) error {
	exists, err := p.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("qdrant: check collection %s: %w", collection, err)
	}
	if exists {
		return nil
	}
	err = p.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("qdrant: create collection %s: %w", collection, err)
	}
	return nil
}

func (p *qdrantProvider) Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]any) error {
	if err := p.CreateCollection(ctx, collection, uint64(len(vector))); err != nil {
		return err
	}

	payload := make(map[string]*qdrant.Value, len(metadata))
	for k, v := range metadata {
		val, err := qdrant.NewValue(v)
		if err != nil {
			return fmt.Errorf("qdrant: convert metadata key %s: %w", k, err)
		}
		payload[k] = val
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(id),
		Vectors: qdrant.NewVectors(vector...),
		Payload: payload,
	}

	_, err := p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert %s: %w", id, err)
	}
	return nil
}

func (p *qdrantProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error) {
	return p.SearchWithFilter(ctx, collection, vector, topK, nil)
}

func (p *qdrantProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]SearchResult, error) {
	req := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	}
	if len(filter) > 0 {
		req.Filter = buildFilter(filter)
	}

	points, err := p.client.GetPointsClient().Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search %s: %w", collection, err)
	}

	results := make([]SearchResult, 0, len(points.GetResult()))
	for _, hit := range points.GetResult() {
		meta := make(map[string]any, len(hit.GetPayload()))
		var content string
		for k, v := range hit.GetPayload() {
			meta[k] = v.AsInterface()
			if k == "content" {
				content, _ = meta[k].(string)
			}
		}
		results = append(results, SearchResult{
			ID:       hit.GetId().GetUuid(),
			Score:    hit.GetScore(),
			Content:  content,
			Vector:   hit.GetVectors().GetVector().GetData(),
			Metadata: meta,
		})
	}
	return results, nil
}

func (p *qdrantProvider) Delete(ctx context.Context, collection, id string) error {
	_, err := p.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(id)),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete %s: %w", id, err)
	}
	return nil
}

func (p *qdrantProvider) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	_, err := p.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: buildFilter(filter)},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete by filter in %s: %w", collection, err)
	}
	return nil
}

func (p *qdrantProvider) Close() error { return nil }

func buildFilter(filter map[string]any) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		conditions = append(conditions, qdrant.NewMatch(k, fmt.Sprintf("%v", v)))
	}
	return &qdrant.Filter{Must: conditions}
}

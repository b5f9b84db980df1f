package vectorstore

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/renegade-studio/matrix/internal/config"
)

// chromemProvider is the embedded, file-persisted vector store used
// for local runs and tests that don't want a network dependency on
// Qdrant or Pinecone (spec.md §3, "no network services required to
// exercise most modules").
type chromemProvider struct {
	mu          sync.Mutex
	db          *chromem.DB
	cfg         *config.VectorStoreConfig
	collections map[string]*chromem.Collection
}

func NewChromemProvider(cfg *config.VectorStoreConfig) (Provider, error) {
	db, err := chromem.NewPersistentDB(cfg.Path, false)
	if err != nil {
		return nil, fmt.Errorf("chromem: open %s: %w", cfg.Path, err)
	}
	return &chromemProvider{db: db, cfg: cfg, collections: make(map[string]*chromem.Collection)}, nil
}

// noopEmbeddingFunc satisfies chromem-go's embedding-function
// requirement; Matrix supplies vectors itself via internal/embedder,
// so the collection never needs chromem to compute its own.
func noopEmbeddingFunc(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("chromem: collection requires a precomputed vector")
}

func (p *chromemProvider) CreateCollection(ctx context.Context, collection string, vectorSize uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.collections[collection]; ok {
		return nil
	}
	col, err := p.db.GetOrCreateCollection(collection, nil, chromem.EmbeddingFunc(noopEmbeddingFunc))
	if err != nil {
		return fmt.Errorf("chromem: create collection %s: %w", collection, err)
	}
	p.collections[collection] = col
	return nil
}

func (p *chromemProvider) collectionFor(collection string) *chromem.Collection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.collections[collection]
}

func (p *chromemProvider) Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]any) error {
	if err := p.CreateCollection(ctx, collection, uint64(len(vector))); err != nil {
		return err
	}
	col := p.collectionFor(collection)

	strMeta := make(map[string]string, len(metadata))
	content := ""
	for k, v := range metadata {
		strMeta[k] = fmt.Sprintf("%v", v)
		if k == "content" {
			content = strMeta[k]
		}
	}

	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Metadata:  strMeta,
		Embedding: vector,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("chromem: upsert %s: %w", id, err)
	}
	return nil
}

func (p *chromemProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]SearchResult, error) {
	return p.SearchWithFilter(ctx, collection, vector, topK, nil)
}

func (p *chromemProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]SearchResult, error) {
	col := p.collectionFor(collection)
	if col == nil {
		return nil, nil
	}

	strFilter := make(map[string]string, len(filter))
	for k, v := range filter {
		strFilter[k] = fmt.Sprintf("%v", v)
	}

	n := topK
	if count := col.Count(); count < n {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	docs, err := col.QueryEmbedding(ctx, vector, n, strFilter, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: search %s: %w", collection, err)
	}

	results := make([]SearchResult, 0, len(docs))
	for _, d := range docs {
		meta := make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			meta[k] = v
		}
		results = append(results, SearchResult{
			ID:       d.ID,
			Score:    d.Similarity,
			Content:  d.Content,
			Metadata: meta,
		})
	}
	return results, nil
}

func (p *chromemProvider) Delete(ctx context.Context, collection, id string) error {
	col := p.collectionFor(collection)
	if col == nil {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("chromem: delete %s: %w", id, err)
	}
	return nil
}

func (p *chromemProvider) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	col := p.collectionFor(collection)
	if col == nil {
		return nil
	}
	strFilter := make(map[string]string, len(filter))
	for k, v := range filter {
		strFilter[k] = fmt.Sprintf("%v", v)
	}
	if err := col.Delete(ctx, strFilter, nil); err != nil {
		return fmt.Errorf("chromem: delete by filter in %s: %w", collection, err)
	}
	return nil
}

func (p *chromemProvider) Close() error { return nil }

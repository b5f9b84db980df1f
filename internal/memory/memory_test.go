package memory

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renegade-studio/matrix/internal/config"
	"github.com/renegade-studio/matrix/internal/vectorstore"
)

// fakeEmbedder returns a fixed vector for every call, unless failAfter
// is reached, after which every subsequent Embed call errors (used to
// drive the embedding-failure-cascade scenario).
type fakeEmbedder struct {
	calls     int
	failAfter int // 0 means never fail
}

func (e *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	e.calls++
	if e.failAfter > 0 && e.calls >= e.failAfter {
		return nil, errors.New("embedder down")
	}
	return []float32{0.1, 0.2, 0.3}, nil
}
func (e *fakeEmbedder) Dimension() int    { return 3 }
func (e *fakeEmbedder) ModelName() string { return "fake" }
func (e *fakeEmbedder) Close() error      { return nil }

// fakeVectorStore is an in-memory stand-in recording every Upsert call
// and returning a scripted set of search results.
type fakeVectorStore struct {
	searchResults []vectorstore.SearchResult
	upserts       []upsertCall
}

type upsertCall struct {
	id       string
	metadata map[string]any
}

func (v *fakeVectorStore) Upsert(_ context.Context, _, id string, _ []float32, metadata map[string]any) error {
	v.upserts = append(v.upserts, upsertCall{id: id, metadata: metadata})
	return nil
}
func (v *fakeVectorStore) Search(_ context.Context, _ string, _ []float32, _ int) ([]vectorstore.SearchResult, error) {
	return v.searchResults, nil
}
func (v *fakeVectorStore) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, _ map[string]any) ([]vectorstore.SearchResult, error) {
	return v.Search(ctx, collection, vector, topK)
}
func (v *fakeVectorStore) Delete(_ context.Context, _, _ string) error                { return nil }
func (v *fakeVectorStore) DeleteByFilter(_ context.Context, _ string, _ map[string]any) error { return nil }
func (v *fakeVectorStore) CreateCollection(_ context.Context, _ string, _ uint64) error { return nil }
func (v *fakeVectorStore) Close() error                                                { return nil }

func newTestPipeline(vecStore *fakeVectorStore, embed *fakeEmbedder) *Pipeline {
	return NewPipeline(vecStore, embed, "test_knowledge", nil, config.MemoryConfig{}, nil)
}

func TestPipeline_FreshADD(t *testing.T) {
	vecStore := &fakeVectorStore{}
	embed := &fakeEmbedder{}
	p := newTestPipeline(vecStore, embed)

	err := p.ProcessFacts(context.Background(), []string{"In Python, def defines a function."}, nil)
	require.NoError(t, err)

	require.Len(t, vecStore.upserts, 1)
	up := vecStore.upserts[0]
	assert.Equal(t, "ADD", up.metadata["event"])
	assert.GreaterOrEqual(t, up.metadata["confidence"].(float64), 0.7)
	tags, ok := up.metadata["tags"].([]string)
	require.True(t, ok)
	assert.Contains(t, tags, "python")
}

func TestPipeline_DuplicateSkip(t *testing.T) {
	vecStore := &fakeVectorStore{searchResults: []vectorstore.SearchResult{
		{ID: "1", Score: 0.95, Content: "In Python, def defines a function."},
	}}
	embed := &fakeEmbedder{}
	p := newTestPipeline(vecStore, embed)

	err := p.ProcessFacts(context.Background(), []string{"In Python, def defines a function."}, nil)
	require.NoError(t, err)

	assert.Empty(t, vecStore.upserts, "NONE decisions must not persist")
}

func TestPipeline_Update(t *testing.T) {
	vecStore := &fakeVectorStore{searchResults: []vectorstore.SearchResult{
		{ID: "1", Score: 0.82, Content: "def defines functions in Python"},
	}}
	embed := &fakeEmbedder{}
	p := newTestPipeline(vecStore, embed)

	err := p.ProcessFacts(context.Background(), []string{"In Python, def defines a function and may specify default args."}, nil)
	require.NoError(t, err)

	require.Len(t, vecStore.upserts, 1)
	up := vecStore.upserts[0]
	assert.Equal(t, "UPDATE", up.metadata["event"])
	assert.Equal(t, "def defines functions in Python", up.metadata["oldMemory"])
	assert.Equal(t, "1", up.id)
}

func TestPipeline_EmbeddingFailureCascade(t *testing.T) {
	vecStore := &fakeVectorStore{}
	embed := &fakeEmbedder{failAfter: 1}
	p := newTestPipeline(vecStore, embed)

	require.True(t, p.EmbeddingsEnabled())
	err := p.ProcessFacts(context.Background(), []string{"first turn's fact"}, nil)
	require.NoError(t, err, "the failure is swallowed into the ADD@0.6 fallback, never returned")
	assert.False(t, p.EmbeddingsEnabled(), "embeddings must be disabled for this pipeline after the first failure")

	require.Len(t, vecStore.upserts, 1)
	assert.Equal(t, "ADD", vecStore.upserts[0].metadata["event"])
	assert.Equal(t, QualitySourceHeuristic, vecStore.upserts[0].metadata["qualitySource"])

	// The session layer (internal/session.runKnowledgeMemory) is the
	// actual enforcement point for "no subsequent insert/update calls
	// on later turns": it checks EmbeddingsEnabled() before ever
	// calling ProcessFacts again.
	assert.False(t, p.EmbeddingsEnabled())
}

func TestPipeline_ProcessFacts_SkipsEmptyStrings(t *testing.T) {
	vecStore := &fakeVectorStore{}
	embed := &fakeEmbedder{}
	p := newTestPipeline(vecStore, embed)

	err := p.ProcessFacts(context.Background(), []string{"", "In Golang, func defines a function.", ""}, nil)
	require.NoError(t, err)
	require.Len(t, vecStore.upserts, 1)
	tags := vecStore.upserts[0].metadata["tags"].([]string)
	assert.Contains(t, tags, "go")
	assert.Equal(t, "func", vecStore.upserts[0].metadata["codePattern"])
}

func TestPipeline_QualitySourceTracksDecisionPath(t *testing.T) {
	vecStore := &fakeVectorStore{}
	embed := &fakeEmbedder{}
	p := newTestPipeline(vecStore, embed)

	err := p.ProcessFacts(context.Background(), []string{"a brand new fact"}, nil)
	require.NoError(t, err)
	require.Len(t, vecStore.upserts, 1)
	assert.Equal(t, QualitySourceSimilarity, vecStore.upserts[0].metadata["qualitySource"])
}

func TestPipeline_IDsAreNumericInKnowledgeRange(t *testing.T) {
	vecStore := &fakeVectorStore{}
	embed := &fakeEmbedder{}
	p := newTestPipeline(vecStore, embed)

	err := p.ProcessFacts(context.Background(), []string{"another fresh fact"}, nil)
	require.NoError(t, err)
	require.Len(t, vecStore.upserts, 1)

	n, err := strconv.Atoi(vecStore.upserts[0].id)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, knowledgeIDMin)
	assert.LessOrEqual(t, n, knowledgeIDMax)
}
